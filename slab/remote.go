package slab

import (
	"sync/atomic"

	"github.com/joshuapare/slabkit/internal/addr"
)

// releaseRemote records a free issued by a thread that does not own the page.
//
// The owner's bitmap is never touched here. The slot's bit is cleared in the
// page's remote buffer and the pending count goes up; the owner folds both in
// when its head page runs dry. If every usable slot is pending, the owner
// holds nothing in the page (it is full and unlinked) and this thread
// unmaps it.
//
// Once pending is incremented another freer or the owner's Detach may unmap
// the page, so the header is not read after the increment.
func (a *Allocator) releaseRemote(base uintptr, p *pageRecord, word int, mask uint64) {
	prefilled := int(p.prefilled)
	size := p.size
	b := p.remote.Load()
	if b == 0 {
		nb, err := a.buffers.get()
		if err != nil {
			fatal(err)
		}
		if p.remote.CompareAndSwap(0, nb) {
			b = nb
		} else {
			a.buffers.put(nb)
			b = p.remote.Load()
		}
	}

	atomic.AndUint64(&bufferWords(b)[word], ^mask)
	if int(p.pending.Add(1))+prefilled == addr.PageEntries {
		a.stats.remoteUnmaps.Add(1)
		a.unmapSuperpage(base, size, b)
	}
}
