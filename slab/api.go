package slab

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/internal/buf"
	"github.com/joshuapare/slabkit/internal/vmem"
)

func ptr(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p) //nolint:govet // off-heap address, never a Go heap pointer
}

// Alloc returns size bytes of uninitialised memory, or nil when the request
// exceeds the largest class or a huge mapping is refused. A zero size
// returns a minimum-size slot.
func (t *Thread) Alloc(size int) unsafe.Pointer {
	if size < 0 {
		return nil
	}
	return ptr(t.alloc(uint64(size)))
}

// Free releases p, which may have been allocated by any Thread of the same
// Allocator. Free(nil) is a no-op.
func (t *Thread) Free(p unsafe.Pointer) {
	t.free(uintptr(p))
}

// Realloc resizes p. A nil p allocates; a zero size frees p and returns nil.
// When p's class already holds size, p is returned unchanged; otherwise the
// contents are copied into a new allocation and p is freed.
func (t *Thread) Realloc(p unsafe.Pointer, size int) unsafe.Pointer {
	if p == nil {
		return t.Alloc(size)
	}
	if size <= 0 {
		t.Free(p)
		return nil
	}
	old := uintptr(p)
	oldClass := addr.Decode(old)
	if _, class := addr.Classify(uint64(size)); class <= oldClass {
		return p
	}
	np := t.alloc(uint64(size))
	if np == 0 {
		return nil
	}
	n := min(addr.SlotSize(oldClass), uint64(size))
	copy(unsafe.Slice((*byte)(ptr(np)), n), unsafe.Slice((*byte)(p), n))
	t.free(old)
	return ptr(np)
}

// Calloc allocates zeroed memory for n elements of elem bytes.
func (t *Thread) Calloc(n, elem int) (unsafe.Pointer, error) {
	total, err := buf.CheckArray(n, elem)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOverflow, err)
	}
	p := t.alloc(uint64(total))
	if p == 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}
	// Huge mappings are fresh and already zero.
	if _, class := addr.Classify(uint64(total)); class < t.a.cfg.HugeClass {
		clear(unsafe.Slice((*byte)(ptr(p)), total))
	}
	return ptr(p), nil
}

// AlignedAlloc returns size bytes aligned to align, which must be a power of
// two. Every slot is aligned to its own size, so an alignment larger than
// size is met by allocating align bytes.
func (t *Thread) AlignedAlloc(align, size int) (unsafe.Pointer, error) {
	if align <= 0 || bits.OnesCount(uint(align)) != 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, align)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrTooLarge, size)
	}
	p := t.alloc(uint64(max(size, align)))
	if p == 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, max(size, align))
	}
	return ptr(p), nil
}

// PageAlloc returns size bytes aligned to the OS page size.
func (t *Thread) PageAlloc(size int) (unsafe.Pointer, error) {
	return t.AlignedAlloc(vmem.PageSize(), size)
}

// UsableSize returns the slot size backing p, which is at least the size
// requested for it. It returns 0 for nil.
func UsableSize(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	return int(addr.SlotSize(addr.Decode(uintptr(p))))
}

// Bytes allocates size bytes and returns them as a slice whose capacity is
// the full slot. The memory is off-heap: it must be released with FreeBytes
// and must not hold Go pointers.
func (t *Thread) Bytes(size int) []byte {
	p := t.Alloc(size)
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), UsableSize(p))[:size]
}

// FreeBytes releases a slice returned by Bytes.
func (t *Thread) FreeBytes(b []byte) {
	if cap(b) == 0 {
		return
	}
	t.Free(unsafe.Pointer(unsafe.SliceData(b)))
}
