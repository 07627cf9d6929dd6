package slab

import (
	"math"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/slabkit/internal/addr"
)

// noCache marks a cached predecessor count that must not trigger a swap:
// the page is the head or directly follows it.
const noCache = math.MaxUint16

// pageRecord is the header at the base of every slab superpage.
//
// It lives in mapped memory, outside the Go heap, so it holds no Go pointers:
// chain links are raw addresses of other headers. Bitmap and links are
// touched only by the owning thread. remote and pending are the only fields
// written by other threads.
type pageRecord struct {
	prefilled  uint16 // header slots plus unmapped tail slots
	cachedPred uint16 // predecessor's free count when last seen, or noCache
	free       uint16
	owner      uint16
	class      uint8
	_          [7]byte
	bitmap     [addr.BitmapWords]uint64 // set = in use
	back       uintptr
	forward    uintptr
	size       uintptr // bytes mapped

	remote  atomic.Uintptr // remote-free buffer, 0 until the first remote free
	pending atomic.Int32   // remote frees not yet merged
}

const headerSize = unsafe.Sizeof(pageRecord{})

func pageAt(base uintptr) *pageRecord {
	return (*pageRecord)(unsafe.Pointer(base))
}

// headerSlots is the number of leading slots covered by the header.
func headerSlots(class int) int {
	slot := uintptr(addr.SlotSize(class))
	return int((headerSize + slot - 1) / slot)
}

// init prepares a freshly mapped page. The mapping is zero-filled.
func (p *pageRecord) init(owner uint16, class, limit int, size uintptr) {
	head := headerSlots(class)
	usable := addr.UsableEntries(class, limit)

	for s := 0; s < head; s++ {
		w, m := addr.SlotMask(s)
		p.bitmap[w] |= m
	}
	for s := usable; s < addr.PageEntries; s++ {
		w, m := addr.SlotMask(s)
		p.bitmap[w] |= m
	}

	p.prefilled = uint16(head + addr.PageEntries - usable)
	p.free = uint16(usable - head)
	p.cachedPred = noCache
	p.owner = owner
	p.class = uint8(class)
	p.size = size
}

// claim marks the lowest free slot as used and returns its index, or -1.
// It does not touch the free count.
func (p *pageRecord) claim() int {
	for i, w := range p.bitmap {
		if w == math.MaxUint64 {
			continue
		}
		bit := bits.LeadingZeros64(^w)
		p.bitmap[i] = w | (1<<63)>>bit
		return i*64 + bit
	}
	return -1
}

// merge folds pending remote frees into the local bitmap and returns how
// many slots it recovered. Called by the owner only.
func (p *pageRecord) merge() int {
	b := p.remote.Load()
	if b == 0 {
		return 0
	}
	words := bufferWords(b)
	n := 0
	for i := range words {
		ready := atomic.SwapUint64(&words[i], math.MaxUint64)
		p.bitmap[i] &= ready
		n += bits.OnesCount64(^ready)
	}
	if n > 0 {
		p.free += uint16(n)
		p.pending.Add(-int32(n))
	}
	return n
}

// fullyFree reports whether every usable slot is free in the local bitmap.
func (p *pageRecord) fullyFree() bool {
	return int(p.free)+int(p.prefilled) == addr.PageEntries
}

// used counts set bits, including prefilled ones.
func (p *pageRecord) used() int {
	n := 0
	for _, w := range p.bitmap {
		n += bits.OnesCount64(w)
	}
	return n
}
