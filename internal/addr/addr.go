//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

// Package addr implements the address-class codec: the size class of every
// slab allocation is stored in bits 41..45 of the returned address, so the
// class and the owning page header can be recovered from a pointer alone.
//
// # Layout
//
//	bit  46     selector (conflict avoidance)
//	bits 41..45 size class (0..31)
//	bits  0..40 offset within the class window
//
// A superpage for class c is aligned to SuperpageWidth(c) = 4 KiB << c, so
// masking a pointer with that width yields the page header address.
package addr

import "math/bits"

const (
	// MinSlotShift is log2 of the smallest slot size.
	MinSlotShift = 3

	// MinSlotSize is the slot size of class 0.
	MinSlotSize = 1 << MinSlotShift

	// PageEntries is the number of slots tracked by one page bitmap.
	PageEntries = 512

	// BitmapWords is the number of 64-bit words in a page bitmap.
	BitmapWords = PageEntries / 64

	// MinSuperpageSize is the superpage size of class 0.
	MinSuperpageSize = MinSlotSize * PageEntries

	// ClassShift is the lowest address bit holding the class.
	ClassShift = 41

	// ClassBits is the width of the class field.
	ClassBits = 5

	// NumClasses is the number of encodable classes.
	NumClasses = 1 << ClassBits

	// SelectorShift is the lowest address bit holding the selector.
	SelectorShift = ClassShift + ClassBits

	// Selectors is the number of selector values that fit in a 47-bit user address space.
	Selectors = 2

	// WindowSize is the span of addresses sharing one (selector, class) pair.
	WindowSize = 1 << ClassShift

	// MinCandidate is the lowest address handed to the reservation walk.
	// The low 4 GiB hold the program image and the kernel's mmap_min_addr guard.
	MinCandidate = 1 << 32

	classMask = NumClasses - 1
)

// Classify rounds size up to the next power of two, applies the MinSlotSize
// floor, and returns the slot size with its zero-based class.
// A zero size is treated as 1. Sizes beyond 1<<63 return slot 0 and a class
// that is >= NumClasses.
func Classify(size uint64) (slot uint64, class int) {
	if size == 0 {
		size = 1
	}
	shift := bits.Len64(size - 1)
	if shift < MinSlotShift {
		shift = MinSlotShift
	}
	class = shift - MinSlotShift
	if shift >= 64 {
		return 0, class
	}
	return 1 << shift, class
}

// SlotSize returns the slot size of class.
func SlotSize(class int) uint64 {
	return MinSlotSize << class
}

// Decode extracts the class field from p. No memory is touched.
func Decode(p uintptr) int {
	return int(p>>ClassShift) & classMask
}

// Selector extracts the selector field from p.
func Selector(p uintptr) int {
	return int(p >> SelectorShift)
}

// SuperpageWidth is the alignment (and reservation stride) of a class's superpages.
func SuperpageWidth(class int) uintptr {
	return MinSuperpageSize << class
}

// MappedSize is the number of bytes actually mapped for a class's superpage.
// Classes above limit map the limit's size and use fewer bitmap entries.
func MappedSize(class, limit int) uintptr {
	return MinSuperpageSize << min(class, limit)
}

// UsableEntries returns how many bitmap entries of a class's page are backed
// by mapped memory.
func UsableEntries(class, limit int) int {
	if class <= limit {
		return PageEntries
	}
	return PageEntries >> (class - limit)
}

// PageBase masks p down to the base of its superpage.
func PageBase(p uintptr, class int) uintptr {
	return p &^ (SuperpageWidth(class) - 1)
}

// SlotIndex returns the slot number of p within its superpage.
func SlotIndex(p uintptr, class int) int {
	return int((p - PageBase(p, class)) >> (MinSlotShift + class))
}

// SlotMask returns the bitmap word and bit mask for slot. Slot 0 is the most
// significant bit of word 0.
func SlotMask(slot int) (word int, mask uint64) {
	return slot / 64, (1 << 63) >> (slot % 64)
}

// WindowBase is the first address of the (class, selector) window.
func WindowBase(class, selector int) uintptr {
	return uintptr(selector)<<SelectorShift | uintptr(class)<<ClassShift
}

// WindowEnd is one past the last address of the (class, selector) window.
func WindowEnd(class, selector int) uintptr {
	return WindowBase(class, selector) + WindowSize
}

// PreferredSelector is the selector a class's reservations start in.
// Large classes start low, away from the region where shared libraries and
// thread stacks are usually placed.
func PreferredSelector(class int) int {
	if class > 15 {
		return 0
	}
	return 1
}

// Valid reports whether p is a correctly encoded, correctly aligned
// superpage base for class.
func Valid(p uintptr, class int) bool {
	return Decode(p) == class && p%SuperpageWidth(class) == 0
}
