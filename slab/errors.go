package slab

import "errors"

var (
	// ErrInvalidAlignment indicates an alignment that is zero or not a power of two.
	ErrInvalidAlignment = errors.New("slab: alignment must be a power of two")

	// ErrOverflow indicates count * elementSize does not fit in an int.
	ErrOverflow = errors.New("slab: allocation size overflows")

	// ErrTooLarge indicates a request beyond the largest encodable class.
	ErrTooLarge = errors.New("slab: allocation too large")

	// ErrNoThreadSlot indicates every thread slot is occupied.
	ErrNoThreadSlot = errors.New("slab: no free thread slot")

	// ErrAddressSpaceExhausted indicates no selector window of a class has room
	// for another superpage. It is fatal.
	ErrAddressSpaceExhausted = errors.New("slab: address space exhausted for class")

	// ErrMapFailed indicates the OS declined to map memory. It is fatal.
	ErrMapFailed = errors.New("slab: mapping failed")

	// ErrInvalidConfig indicates a Config that cannot be served.
	ErrInvalidConfig = errors.New("slab: invalid config")

	// ErrCorrupt indicates a chain or bitmap inconsistency found by Verify.
	ErrCorrupt = errors.New("slab: corrupt page chain")
)
