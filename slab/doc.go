// Package slab provides a size-class allocator over memory mapped outside
// the Go heap, built for many goroutines allocating and freeing small
// objects with little cross-thread contention.
//
// # Overview
//
// Every request is rounded up to a power of two (8 bytes minimum) and served
// from a slot of that size class. The class is encoded in bits 41..45 of the
// returned address, so Free recovers the class, and from it the page header,
// from the pointer alone. No side table is consulted.
//
// # Threads
//
// Allocation goes through a Thread, an attached handle that owns one slot of
// the allocator's thread table:
//
//	a, err := slab.New(nil)
//	if err != nil {
//	    return err
//	}
//	t, err := a.Attach()
//	if err != nil {
//	    return err
//	}
//	defer t.Detach()
//
//	p := t.Alloc(48)   // 64-byte slot
//	t.Free(p)
//
// A Thread must be used by one goroutine at a time. Any Thread may free any
// pointer from the same Allocator; frees of pages owned by another slot take
// the remote path. Allocator.Go and Allocator.Run wrap the Attach/Detach pair.
//
// # Pages and Chains
//
// Each slot keeps, per class, a chain of superpages with free slots. A
// superpage starts with a header holding a 512-bit slot bitmap; the header
// itself occupies the first slots. Allocation always takes the lowest free
// slot of the head page. A page that fills up leaves the chain and rejoins
// at the tail on its next free. Each local free may swap a page one place
// toward the head, so the chain stays roughly sorted by free count at a
// constant cost per free.
//
// # Remote Frees
//
// A free from a non-owning Thread never touches the owner's bitmap. It
// clears the slot's bit in a small buffer attached to the page and bumps a
// pending count, both atomically. The owner folds the buffer into its bitmap
// when the head page runs out. If remote frees drain a page completely, the
// last freer unmaps it.
//
// # Size Classes
//
// With DefaultConfig:
//
//	Class  0:      8 bytes     superpage   4 KiB
//	Class  4:    128 bytes     superpage  64 KiB
//	Class 10:      8 KiB       superpage   4 MiB
//	Class 13:     64 KiB       superpage  32 MiB
//	Class 14..16: 128-512 KiB  32 MiB mapped, 256..64 slots
//	Class 17+:     1 MiB+      one mapping per allocation
//
// Config.Classes lists the full table.
//
// # Failure
//
// Running out of address space for a class, or the OS refusing to map a
// superpage, is fatal: the allocator logs and panics. Bad arguments to
// Calloc and AlignedAlloc return errors. Build with -tags slabdebug to
// enable internal invariant checks.
package slab
