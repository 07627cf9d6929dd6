//go:build !linux

package vmem

import "os"

// Map is unavailable without anonymous mmap support.
func Map(size uintptr) (uintptr, error) {
	return 0, ErrUnsupported
}

// MapFixed is unavailable without MAP_FIXED_NOREPLACE.
func MapFixed(addr, size uintptr) error {
	return ErrUnsupported
}

// Unmap is unavailable without anonymous mmap support.
func Unmap(addr, size uintptr) error {
	return ErrUnsupported
}

// PageSize returns the OS page size.
func PageSize() int {
	return os.Getpagesize()
}
