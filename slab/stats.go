package slab

import "sync/atomic"

type counters struct {
	unmaps       atomic.Uint64
	remoteUnmaps atomic.Uint64
	hugeMaps     atomic.Uint64
	hugeUnmaps   atomic.Uint64
}

// Stats is a point-in-time snapshot of allocator activity. Per-thread
// counters are summed over every slot, attached or not.
type Stats struct {
	Allocs      uint64 // slab slots handed out
	LocalFrees  uint64 // frees by the owning slot
	RemoteFrees uint64 // frees recorded in a remote buffer
	Merges      uint64 // remote buffers folded into a local bitmap
	MergedSlots uint64 // slots recovered by merges

	Superpages      uint64 // superpages reserved (slab and huge)
	Conflicts       uint64 // candidate ranges found occupied
	Unmaps          uint64 // slab superpages returned to the OS
	RemoteUnmaps    uint64 // of Unmaps, those drained by remote frees
	HugeAllocs      uint64
	HugeFrees       uint64
	PoolBlocks      int // mapped remote-free pool blocks
	PoolBuffersUsed int // remote buffers attached to pages

	AttachedThreads int
	Adoptions       uint64 // attaches that inherited pages
	MaxThreads      int
}

// Stats collects a snapshot. Counters are read individually, so a snapshot
// taken under load is not a consistent cut.
func (a *Allocator) Stats() Stats {
	s := Stats{
		Superpages:      a.res.reserved.Load(),
		Conflicts:       a.res.conflicts.Load(),
		Unmaps:          a.stats.unmaps.Load(),
		RemoteUnmaps:    a.stats.remoteUnmaps.Load(),
		HugeAllocs:      a.stats.hugeMaps.Load(),
		HugeFrees:       a.stats.hugeUnmaps.Load(),
		AttachedThreads: int(a.slots.attached.Load()),
		Adoptions:       a.slots.adopted.Load(),
		MaxThreads:      a.cfg.MaxThreads,
	}
	s.PoolBlocks, s.PoolBuffersUsed = a.buffers.counts()
	for i := range a.slots.records {
		r := &a.slots.records[i]
		s.Allocs += r.allocs.Load()
		s.LocalFrees += r.localFrees.Load()
		s.RemoteFrees += r.remoteFrees.Load()
		s.Merges += r.merges.Load()
		s.MergedSlots += r.mergedSlots.Load()
	}
	return s
}

// LiveSuperpages is the number of superpages currently mapped, slab and huge.
func (s Stats) LiveSuperpages() uint64 {
	return s.Superpages - s.Unmaps - s.HugeFrees
}
