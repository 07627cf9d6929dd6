package main

import "unsafe"

// ptrOf converts an allocator address back to a pointer. The memory is off-heap.
func ptrOf(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p) //nolint:govet // off-heap address, never a Go heap pointer
}
