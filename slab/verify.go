package slab

import (
	"fmt"
	"math/bits"

	"github.com/joshuapare/slabkit/internal/addr"
)

// PageInfo describes one linked page of a chain.
type PageInfo struct {
	Base    uintptr
	Free    int
	Pending int
}

// Chain lists the pages linked in this thread's chain for class, head first.
func (t *Thread) Chain(class int) []PageInfo {
	rec := t.record()
	if class < 0 || class >= t.a.cfg.HugeClass {
		return nil
	}
	bases := rec.chains[class].pages()
	out := make([]PageInfo, 0, len(bases))
	for _, b := range bases {
		p := pageAt(b)
		out = append(out, PageInfo{Base: b, Free: int(p.free), Pending: int(p.pending.Load())})
	}
	return out
}

// Inversions counts adjacent pairs, excluding the head, whose free counts
// are out of order. Promotion is a single swap per free against a cached
// predecessor count, so the chain is only approximately sorted and the
// count has no fixed bound.
func Inversions(chain []PageInfo) int {
	n := 0
	for i := 2; i < len(chain); i++ {
		if chain[i].Free > chain[i-1].Free {
			n++
		}
	}
	return n
}

// Verify checks every chain of this thread: links are symmetric, each
// page carries this slot and the chain's class, its free count matches its
// bitmap, and only pages with free slots are linked. It must be called by
// the goroutine that owns the Thread.
func (t *Thread) Verify() error {
	t.record()
	for class := 0; class < t.a.cfg.HugeClass; class++ {
		if err := t.verifyChain(class); err != nil {
			return err
		}
	}
	return nil
}

func (t *Thread) verifyChain(class int) error {
	c := &t.record().chains[class]
	if (c.head == 0) != (c.tail == 0) {
		return fmt.Errorf("%w: class %d head %#x tail %#x", ErrCorrupt, class, c.head, c.tail)
	}
	var prev uintptr
	for b := c.head; b != 0; b = pageAt(b).forward {
		p := pageAt(b)
		switch {
		case !addr.Valid(b, class):
			return fmt.Errorf("%w: page %#x does not encode class %d", ErrCorrupt, b, class)
		case int(p.class) != class:
			return fmt.Errorf("%w: page %#x records class %d in chain %d", ErrCorrupt, b, p.class, class)
		case p.owner != t.id:
			return fmt.Errorf("%w: page %#x owned by %d in slot %d", ErrCorrupt, b, p.owner, t.id)
		case p.back != prev:
			return fmt.Errorf("%w: page %#x back %#x want %#x", ErrCorrupt, b, p.back, prev)
		case p.free == 0:
			return fmt.Errorf("%w: full page %#x is linked", ErrCorrupt, b)
		}
		if used := p.used(); int(p.free) != addr.PageEntries-used {
			return fmt.Errorf("%w: page %#x free %d but bitmap has %d clear", ErrCorrupt, b, p.free, addr.PageEntries-used)
		}
		if p.prefilled < uint16(headerSlots(class)) || bits.LeadingZeros64(^p.bitmap[0]) < headerSlots(class) {
			return fmt.Errorf("%w: page %#x header slots not reserved", ErrCorrupt, b)
		}
		prev = b
	}
	if prev != c.tail {
		return fmt.Errorf("%w: class %d tail %#x but last page %#x", ErrCorrupt, class, c.tail, prev)
	}
	return nil
}
