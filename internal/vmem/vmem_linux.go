//go:build linux

package vmem

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	prot  = unix.PROT_READ | unix.PROT_WRITE
	flags = unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
)

// Map maps size bytes at an address of the kernel's choosing.
func Map(size uintptr) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, nil, size, prot, flags)
	if err != nil {
		return 0, mapErr(size, err)
	}
	return uintptr(p), nil
}

// MapFixed maps size bytes at exactly addr without replacing anything
// already mapped there. An occupied range returns ErrInUse.
func MapFixed(addr, size uintptr) error {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size, prot, flags|unix.MAP_FIXED_NOREPLACE)
	if err != nil {
		if errors.Is(err, unix.EEXIST) || errors.Is(err, unix.EPERM) {
			return ErrInUse
		}
		return mapErr(size, err)
	}
	if uintptr(p) != addr {
		// Kernels older than 4.17 ignore MAP_FIXED_NOREPLACE and treat addr as a hint.
		_ = unix.MunmapPtr(p, size)
		return ErrInUse
	}
	return nil
}

// Unmap releases [addr, addr+size).
func Unmap(addr, size uintptr) error {
	err := unix.MunmapPtr(unsafe.Pointer(addr), size)
	if err != nil {
		return fmt.Errorf("vmem: munmap %#x+%d: %w", addr, size, err)
	}
	return nil
}

// PageSize returns the OS page size.
func PageSize() int {
	return unix.Getpagesize()
}

func mapErr(size uintptr, err error) error {
	if errors.Is(err, unix.ENOMEM) {
		return fmt.Errorf("%w: %d bytes", ErrNoMemory, size)
	}
	return fmt.Errorf("vmem: mmap %d bytes: %w", size, err)
}
