package slab

import (
	"errors"
	"fmt"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/internal/logger"
	"github.com/joshuapare/slabkit/internal/procmaps"
)

// Allocator is a size-class allocator over memory mapped outside the Go heap.
// All methods are safe for concurrent use; allocation itself goes through an
// attached Thread.
type Allocator struct {
	cfg     Config
	mem     mapper
	res     *reserver
	buffers bufferPool
	slots   slotTable
	stats   counters
}

// New creates an Allocator. A nil cfg selects DefaultConfig.
func New(cfg *Config) (*Allocator, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Prober == nil {
		p, err := procmaps.New()
		if err != nil {
			return nil, fmt.Errorf("slab: address-space prober: %w", err)
		}
		c.Prober = p
	}
	return newAllocator(c, osMapper{}), nil
}

func newAllocator(cfg Config, mem mapper) *Allocator {
	a := &Allocator{
		cfg: cfg,
		mem: mem,
		res: newReserver(cfg.Prober, mem),
	}
	a.buffers.mem = mem
	a.slots.records = make([]threadRecord, cfg.MaxThreads)
	logger.Debug("slab: allocator created",
		"max_threads", cfg.MaxThreads, "huge_class", cfg.HugeClass, "superpage_limit", cfg.SuperpageLimit)
	return a
}

// Config returns the configuration in effect.
func (a *Allocator) Config() Config { return a.cfg }

func (t *Thread) alloc(size uint64) uintptr {
	if t.rec == nil {
		panic(detachedUse)
	}
	slot, class := addr.Classify(size)
	if class >= addr.NumClasses {
		return 0
	}
	if class >= t.a.cfg.HugeClass {
		return t.a.allocHuge(class, uintptr(slot))
	}
	return t.acquire(class)
}

// acquire hands out one slot from the head page of the class chain,
// reserving a superpage when the chain is empty.
func (t *Thread) acquire(class int) uintptr {
	c := &t.rec.chains[class]
	if c.head == 0 {
		base := t.a.newPage(t.id, class)
		c.install(base, pageAt(base))
	}
	base := c.head
	p := pageAt(base)

	p.free--
	if p.free == 0 {
		// The last local slot is about to go; pick up remote frees first.
		if n := p.merge(); n > 0 {
			t.rec.merges.Add(1)
			t.rec.mergedSlots.Add(uint64(n))
		}
	}
	slot := p.claim()
	if debugChecks && slot < 0 {
		invariant("no free slot in head page %#x (free %d)", base, p.free)
	}
	if p.free == 0 {
		c.unlinkHead(p)
	}
	t.rec.allocs.Add(1)
	return base + uintptr(slot)<<(addr.MinSlotShift+class)
}

func (a *Allocator) newPage(owner uint16, class int) uintptr {
	size := addr.MappedSize(class, a.cfg.SuperpageLimit)
	base, err := a.res.reserve(class, addr.SuperpageWidth(class), size)
	if err != nil {
		fatal(err)
	}
	if debugChecks && !addr.Valid(base, class) {
		invariant("superpage %#x does not encode class %d", base, class)
	}
	pageAt(base).init(owner, class, a.cfg.SuperpageLimit, size)
	return base
}

// allocHuge maps one slot-sized region at a class-encoded address.
// It returns 0 when the OS refuses the mapping.
func (a *Allocator) allocHuge(class int, size uintptr) uintptr {
	p, err := a.res.reserve(class, size, size)
	if err != nil {
		if errors.Is(err, ErrAddressSpaceExhausted) {
			fatal(err)
		}
		logger.Warn("slab: huge allocation failed", "class", class, "size", size, "err", err)
		return 0
	}
	a.stats.hugeMaps.Add(1)
	return p
}

func (t *Thread) free(p uintptr) {
	if p == 0 {
		return
	}
	if t.rec == nil {
		panic(detachedUse)
	}
	a := t.a
	class := addr.Decode(p)
	if class >= a.cfg.HugeClass {
		a.freeHuge(p, class)
		return
	}

	base := addr.PageBase(p, class)
	pr := pageAt(base)
	if debugChecks && int(pr.class) != class {
		invariant("pointer %#x decodes to class %d but page %#x holds class %d", p, class, base, pr.class)
	}
	word, mask := addr.SlotMask(addr.SlotIndex(p, class))
	if pr.owner == t.id {
		t.rec.chains[class].release(base, pr, word, mask)
		t.rec.localFrees.Add(1)
		return
	}
	t.rec.remoteFrees.Add(1)
	a.releaseRemote(base, pr, word, mask)
}

func (a *Allocator) freeHuge(p uintptr, class int) {
	size := uintptr(addr.SlotSize(class))
	if debugChecks && p%size != 0 {
		invariant("huge pointer %#x not aligned to %d", p, size)
	}
	if err := a.mem.Unmap(p, size); err != nil {
		fatal(err)
	}
	a.stats.hugeUnmaps.Add(1)
}

// releaseSuperpage unmaps a page no thread can reach any more.
func (a *Allocator) releaseSuperpage(base uintptr, p *pageRecord) {
	a.unmapSuperpage(base, p.size, p.remote.Swap(0))
}

// unmapSuperpage returns the page's remote buffer, if any, to the pool and
// unmaps size bytes at base. It does not touch the header.
func (a *Allocator) unmapSuperpage(base, size, buffer uintptr) {
	if buffer != 0 {
		a.buffers.put(buffer)
	}
	if err := a.mem.Unmap(base, size); err != nil {
		fatal(err)
	}
	a.stats.unmaps.Add(1)
	logger.Debug("slab: released superpage", "addr", base, "size", size)
}
