package slab

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/internal/logger"
	"github.com/joshuapare/slabkit/internal/vmem"
)

// mapper is the OS mapping surface used by the allocator.
type mapper interface {
	MapFixed(addr, size uintptr) error
	Map(size uintptr) (uintptr, error)
	Unmap(addr, size uintptr) error
}

type osMapper struct{}

func (osMapper) MapFixed(addr, size uintptr) error { return vmem.MapFixed(addr, size) }
func (osMapper) Map(size uintptr) (uintptr, error) { return vmem.Map(size) }
func (osMapper) Unmap(addr, size uintptr) error    { return vmem.Unmap(addr, size) }

// reserver hands out class-encoded address ranges.
//
// Each class owns one window per selector: [WindowBase, WindowEnd). The walk
// starts in the class's preferred selector at a per-class cursor and moves one
// stride per conflict. A window that runs out switches to the next selector.
// When every selector of a class has been walked the class is saturated.
//
// Probing and mapping are not atomic together, so the whole walk runs under mu.
type reserver struct {
	mu     sync.Mutex
	next   [addr.NumClasses]uintptr
	tried  [addr.NumClasses]int
	prober RangeProber
	mem    mapper

	reserved  atomic.Uint64
	conflicts atomic.Uint64
}

func newReserver(prober RangeProber, mem mapper) *reserver {
	return &reserver{prober: prober, mem: mem}
}

// reserve maps size bytes at a free address inside the class window, aligned
// to stride. stride is a power of two no larger than the window.
func (r *reserver) reserve(class int, stride, size uintptr) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.tried[class] < addr.Selectors {
		sel := (addr.PreferredSelector(class) + r.tried[class]) % addr.Selectors
		lo, hi := addr.WindowBase(class, sel), addr.WindowEnd(class, sel)

		cand := r.next[class]
		if cand < lo || cand >= hi {
			cand = lo
		}
		if cand < addr.MinCandidate {
			cand = (addr.MinCandidate + stride - 1) &^ (stride - 1)
		}

		for ; cand+size <= hi; cand += stride {
			free, err := r.prober.IsRangeFree(cand, cand+size)
			if err != nil {
				// MAP_FIXED_NOREPLACE still refuses occupied ranges.
				logger.Warn("slab: range probe failed", "class", class, "addr", cand, "err", err)
				free = true
			}
			if !free {
				r.conflicts.Add(1)
				continue
			}
			err = r.mem.MapFixed(cand, size)
			if errors.Is(err, vmem.ErrInUse) {
				r.conflicts.Add(1)
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("%w: class %d at %#x: %w", ErrMapFailed, class, cand, err)
			}
			r.next[class] = cand + stride
			r.reserved.Add(1)
			logger.Debug("slab: reserved superpage", "class", class, "selector", sel, "addr", cand, "size", size)
			return cand, nil
		}

		r.tried[class]++
		r.next[class] = 0
		logger.Info("slab: class window exhausted", "class", class, "selector", sel)
	}
	return 0, fmt.Errorf("%w %d", ErrAddressSpaceExhausted, class)
}
