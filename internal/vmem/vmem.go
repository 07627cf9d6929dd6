// Package vmem maps and unmaps anonymous read/write memory outside the Go heap.
package vmem

import "errors"

var (
	// ErrInUse indicates the requested fixed range overlaps an existing mapping.
	ErrInUse = errors.New("vmem: address range in use")

	// ErrNoMemory indicates the kernel declined to map the region.
	ErrNoMemory = errors.New("vmem: out of memory")

	// ErrUnsupported indicates the platform has no anonymous fixed mappings.
	ErrUnsupported = errors.New("vmem: unsupported platform")
)
