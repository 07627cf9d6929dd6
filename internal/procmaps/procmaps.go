// Package procmaps answers "is this address range unmapped?" for the current
// process by reading its live memory-mapping list.
package procmaps

import "errors"

// ErrUnsupported indicates the platform exposes no mapping list.
var ErrUnsupported = errors.New("procmaps: unsupported platform")

// Region is one mapping of the process address space.
type Region struct {
	Start uintptr
	End   uintptr // exclusive
	Perms string
	Path  string
}

// Overlaps reports whether r intersects [begin, end).
func (r Region) Overlaps(begin, end uintptr) bool {
	return r.Start < end && begin < r.End
}

// Size returns the length of the region in bytes.
func (r Region) Size() uintptr {
	return r.End - r.Start
}

// rangeFree reports whether [begin, end) misses every region.
// regions must be sorted by Start, as the kernel lists them.
func rangeFree(regions []Region, begin, end uintptr) bool {
	for _, r := range regions {
		if end <= r.Start {
			return true
		}
		if r.Overlaps(begin, end) {
			return false
		}
	}
	return true
}
