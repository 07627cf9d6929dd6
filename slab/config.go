package slab

import (
	"fmt"

	"github.com/joshuapare/slabkit/internal/addr"
)

// RangeProber reports whether a byte range of the process address space is
// unmapped. The allocator calls it only while holding its reservation lock.
type RangeProber interface {
	IsRangeFree(begin, end uintptr) (bool, error)
}

// Config controls the shape of an Allocator.
type Config struct {
	// MaxThreads is the number of thread slots (concurrently attached handles).
	MaxThreads int

	// HugeClass is the first class served by a dedicated mapping per request
	// instead of the page cache. The default 17 sends 1 MiB and larger there.
	HugeClass int

	// SuperpageLimit caps superpage size: classes above it map the limit's
	// superpage size and use only the matching prefix of the bitmap.
	SuperpageLimit int

	// Prober checks candidate superpage ranges. Nil selects the /proc/self/maps prober.
	Prober RangeProber
}

// DefaultConfig returns the configuration used when New is given nil.
func DefaultConfig() Config {
	return Config{
		MaxThreads:     128,
		HugeClass:      17,
		SuperpageLimit: 13,
	}
}

// Validate checks that every slab class below HugeClass can hold its page
// header plus at least one slot, and that the limits fit the address layout.
func (c Config) Validate() error {
	if c.MaxThreads < 1 || c.MaxThreads > maxThreadSlots {
		return fmt.Errorf("%w: MaxThreads %d out of range [1,%d]", ErrInvalidConfig, c.MaxThreads, maxThreadSlots)
	}
	// Slab classes must fit at least one superpage inside a class window.
	if c.HugeClass < 1 || c.HugeClass > 30 {
		return fmt.Errorf("%w: HugeClass %d out of range [1,30]", ErrInvalidConfig, c.HugeClass)
	}
	if c.SuperpageLimit < 0 || c.SuperpageLimit >= addr.NumClasses {
		return fmt.Errorf("%w: SuperpageLimit %d out of range", ErrInvalidConfig, c.SuperpageLimit)
	}
	for class := 0; class < c.HugeClass; class++ {
		if addr.UsableEntries(class, c.SuperpageLimit) <= headerSlots(class) {
			return fmt.Errorf("%w: class %d has no room beyond its header under SuperpageLimit %d",
				ErrInvalidConfig, class, c.SuperpageLimit)
		}
	}
	return nil
}

// ClassInfo describes the layout of one size class under a Config.
type ClassInfo struct {
	Class          int
	SlotSize       uint64
	Huge           bool
	SuperpageWidth uintptr // alignment and reservation stride
	MappedSize     uintptr // bytes mapped per superpage (or per huge request)
	HeaderSlots    int     // slots occupied by the page header
	Capacity       int     // slots available to callers per superpage
}

// Classes returns the layout of every encodable class.
func (c Config) Classes() []ClassInfo {
	out := make([]ClassInfo, 0, addr.NumClasses)
	for class := 0; class < addr.NumClasses; class++ {
		ci := ClassInfo{
			Class:    class,
			SlotSize: addr.SlotSize(class),
			Huge:     class >= c.HugeClass,
		}
		if ci.Huge {
			ci.SuperpageWidth = uintptr(ci.SlotSize)
			ci.MappedSize = uintptr(ci.SlotSize)
			ci.Capacity = 1
		} else {
			ci.SuperpageWidth = addr.SuperpageWidth(class)
			ci.MappedSize = addr.MappedSize(class, c.SuperpageLimit)
			ci.HeaderSlots = headerSlots(class)
			ci.Capacity = addr.UsableEntries(class, c.SuperpageLimit) - ci.HeaderSlots
		}
		out = append(out, ci)
	}
	return out
}
