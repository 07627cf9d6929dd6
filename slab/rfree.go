package slab

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/internal/logger"
)

const (
	// bufferSize is one remote-free buffer: a bitmap-shaped array of words.
	bufferSize = addr.BitmapWords * 8

	// poolBlockSize is the mapping the pool grows by.
	poolBlockSize = 4096
)

// bufferPool is a free list of remote-free buffers shared by every thread.
// It grows a block at a time and never returns memory to the OS.
// Free buffers are linked through their first word.
type bufferPool struct {
	mu     sync.Mutex
	head   uintptr
	mem    mapper
	blocks int
	inUse  int
}

func bufferWords(b uintptr) *[addr.BitmapWords]uint64 {
	return (*[addr.BitmapWords]uint64)(unsafe.Pointer(b))
}

// get returns a buffer with every bit set (nothing pending).
func (bp *bufferPool) get() (uintptr, error) {
	bp.mu.Lock()
	if bp.head == 0 {
		if err := bp.grow(); err != nil {
			bp.mu.Unlock()
			return 0, err
		}
	}
	b := bp.head
	words := bufferWords(b)
	bp.head = uintptr(words[0])
	bp.inUse++
	bp.mu.Unlock()

	for i := range words {
		words[i] = ^uint64(0)
	}
	return b, nil
}

func (bp *bufferPool) put(b uintptr) {
	bp.mu.Lock()
	bufferWords(b)[0] = uint64(bp.head)
	bp.head = b
	bp.inUse--
	bp.mu.Unlock()
}

func (bp *bufferPool) grow() error {
	block, err := bp.mem.Map(poolBlockSize)
	if err != nil {
		return fmt.Errorf("%w: remote-free pool: %w", ErrMapFailed, err)
	}
	for off := uintptr(poolBlockSize - bufferSize); ; off -= bufferSize {
		b := block + off
		bufferWords(b)[0] = uint64(bp.head)
		bp.head = b
		if off == 0 {
			break
		}
	}
	bp.blocks++
	logger.Debug("slab: remote-free pool grew", "blocks", bp.blocks)
	return nil
}

func (bp *bufferPool) counts() (blocks, inUse int) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.blocks, bp.inUse
}
