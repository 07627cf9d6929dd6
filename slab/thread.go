package slab

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/internal/logger"
)

// maxThreadSlots is the number of distinct owner ids a page header can record.
const maxThreadSlots = 1 << 16

// threadRecord is the per-slot state: one page chain per class.
// Chains are touched only by the slot's current occupant.
type threadRecord struct {
	chains [addr.NumClasses]chain
	busy   atomic.Bool

	allocs      atomic.Uint64
	localFrees  atomic.Uint64
	remoteFrees atomic.Uint64
	merges      atomic.Uint64
	mergedSlots atomic.Uint64

	_ cpu.CacheLinePad
}

func (r *threadRecord) hasPages() bool {
	for i := range r.chains {
		if r.chains[i].head != 0 {
			return true
		}
	}
	return false
}

// slotTable assigns thread slots. The mutex serialises the scan so two
// attaching goroutines never contend on the same flag; the flag itself is
// also CASed so a slot can never be handed out twice.
type slotTable struct {
	mu      sync.Mutex
	cursor  int
	records []threadRecord

	attached atomic.Int64
	adopted  atomic.Uint64
}

// Thread is an attached allocator handle. A Thread must be used by one
// goroutine at a time; its pages may be freed from any Thread.
type Thread struct {
	a   *Allocator
	rec *threadRecord
	id  uint16
}

// ID returns the slot this handle occupies.
func (t *Thread) ID() int { return int(t.id) }

const detachedUse = "slab: use of detached Thread"

// record returns the slot record and panics on a detached handle.
func (t *Thread) record() *threadRecord {
	if t.rec == nil {
		panic(detachedUse)
	}
	return t.rec
}

// Attach claims a free thread slot. It is the thread-start hook: call it
// before the goroutine allocates, and Detach when it is done.
//
// Pages left in the slot by a previous occupant are adopted: they are owned
// by the slot, not by the goroutine that created them.
func (a *Allocator) Attach() (*Thread, error) {
	st := &a.slots
	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.records)
	for i := 0; i < n; i++ {
		id := (st.cursor + i) % n
		rec := &st.records[id]
		if !rec.busy.CompareAndSwap(false, true) {
			continue
		}
		st.cursor = (id + 1) % n
		st.attached.Add(1)
		if rec.hasPages() {
			st.adopted.Add(1)
			logger.Debug("slab: attach adopted pages", "slot", id)
		} else {
			logger.Debug("slab: attach", "slot", id)
		}
		return &Thread{a: a, rec: rec, id: uint16(id)}, nil
	}
	return nil, ErrNoThreadSlot
}

// Detach is the thread-exit hook. Fully free pages at the front of each
// chain are unmapped, then the slot is released. Pages still holding live
// slots stay in the slot for the next occupant. Detach is idempotent; the
// handle must not be used afterwards.
func (t *Thread) Detach() {
	if t.rec == nil {
		return
	}
	a := t.a
	released := 0
	for class := 0; class < a.cfg.HugeClass; class++ {
		c := &t.rec.chains[class]
		for c.head != 0 {
			base := c.head
			p := pageAt(base)
			if p.merge() > 0 {
				t.rec.merges.Add(1)
			}
			// A remote freer between its bitmap update and its pending
			// increment still holds the page.
			if !p.fullyFree() || p.pending.Load() != 0 {
				break
			}
			c.unlinkHead(p)
			a.releaseSuperpage(base, p)
			released++
		}
	}
	logger.Debug("slab: detach", "slot", t.id, "released", released)

	rec := t.rec
	t.rec = nil
	a.slots.attached.Add(-1)
	rec.busy.Store(false)
}

// Go runs fn on a new goroutine with its own attached Thread, detaching
// when fn returns. Attach errors are returned to the caller.
func (a *Allocator) Go(fn func(t *Thread)) error {
	t, err := a.Attach()
	if err != nil {
		return err
	}
	go func() {
		defer t.Detach()
		fn(t)
	}()
	return nil
}

// Run attaches a Thread around a synchronous call.
func (a *Allocator) Run(fn func(t *Thread) error) error {
	t, err := a.Attach()
	if err != nil {
		return err
	}
	defer t.Detach()
	return fn(t)
}
