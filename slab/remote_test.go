//go:build linux

package slab

import (
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/slabkit/internal/addr"
)

func Test_Remote_FreeMergedWhenHeadRunsDry(t *testing.T) {
	a, _ := newTestAllocator(t, func(c *Config) { c.MaxThreads = 2 })
	owner := attach(t, a)
	defer owner.Detach()
	other := attach(t, a)
	defer other.Detach()

	const class = 4
	size := addr.SlotSize(class)
	capacity := addr.PageEntries - headerSlots(class)

	ptrs := fill(owner, size, capacity-11)
	for _, p := range ptrs[:100] {
		other.free(p)
	}
	chain := owner.Chain(class)
	require.Len(t, chain, 1)
	assert.Equal(t, 11, chain[0].Free, "remote frees leave the owner's count alone")
	assert.Equal(t, 100, chain[0].Pending)

	// Ten more allocations drain the local slots; the eleventh merges.
	fill(owner, size, 11)

	chain = owner.Chain(class)
	require.Len(t, chain, 1)
	assert.Equal(t, 100, chain[0].Free)
	assert.Zero(t, chain[0].Pending)

	st := a.Stats()
	assert.Equal(t, uint64(1), st.Merges)
	assert.Equal(t, uint64(100), st.MergedSlots)
	assert.Equal(t, uint64(100), st.RemoteFrees)

	// Merged slots are reused lowest first; the merging allocation took ptrs[0].
	assert.Equal(t, ptrs[1], owner.alloc(size))
	require.NoError(t, owner.Verify())
}

func Test_Remote_DrainToZeroUnmaps(t *testing.T) {
	a, m := newTestAllocator(t, func(c *Config) { c.MaxThreads = 2 })
	owner := attach(t, a)
	defer owner.Detach()
	other := attach(t, a)
	defer other.Detach()

	const class = 4
	capacity := addr.PageEntries - headerSlots(class)
	ptrs := fill(owner, addr.SlotSize(class), capacity)
	require.Empty(t, owner.Chain(class))

	before := m.unmaps.Load()
	for _, p := range ptrs[:capacity-1] {
		other.free(p)
	}
	assert.Equal(t, before, m.unmaps.Load())
	st := a.Stats()
	assert.Equal(t, 1, st.PoolBuffersUsed)

	other.free(ptrs[capacity-1])
	assert.Equal(t, before+1, m.unmaps.Load())

	st = a.Stats()
	assert.Equal(t, uint64(1), st.RemoteUnmaps)
	assert.Zero(t, st.PoolBuffersUsed, "buffer returns to the pool with its page")
	assert.Equal(t, 1, st.PoolBlocks)
	assert.Zero(t, st.LiveSuperpages())
}

func Test_Remote_ConcurrentDrainUnmapsOnce(t *testing.T) {
	const (
		workers = 4
		rounds  = 200
		class   = 0
	)
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(max(workers, runtime.GOMAXPROCS(0))))

	a, m := newTestAllocator(t, func(c *Config) { c.MaxThreads = workers + 1 })
	owner := attach(t, a)
	defer owner.Detach()

	capacity := addr.PageEntries - headerSlots(class)
	before := m.unmaps.Load()
	for round := 0; round < rounds; round++ {
		ptrs := fill(owner, addr.SlotSize(class), capacity)
		require.Empty(t, owner.Chain(class), "round %d: page left the chain", round)

		var start sync.WaitGroup
		start.Add(1)
		var g errgroup.Group
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				return a.Run(func(th *Thread) error {
					start.Wait()
					for i := w; i < len(ptrs); i += workers {
						th.free(ptrs[i])
					}
					return nil
				})
			})
		}
		start.Done()
		require.NoError(t, g.Wait())
	}

	assert.Equal(t, before+rounds, m.unmaps.Load())
	st := a.Stats()
	assert.Equal(t, uint64(rounds), st.RemoteUnmaps)
	assert.Zero(t, st.PoolBuffersUsed)
	assert.Zero(t, st.LiveSuperpages())
}

func Test_Remote_BufferAttachedOnce(t *testing.T) {
	const workers = 8
	a, _ := newTestAllocator(t, func(c *Config) { c.MaxThreads = workers + 1 })
	owner := attach(t, a)
	defer owner.Detach()

	const class = 3
	ptrs := fill(owner, addr.SlotSize(class), workers*16)

	var start sync.WaitGroup
	start.Add(1)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		mine := ptrs[w*16 : (w+1)*16]
		g.Go(func() error {
			return a.Run(func(th *Thread) error {
				start.Wait()
				for _, p := range mine {
					th.free(p)
				}
				return nil
			})
		})
	}
	start.Done()
	require.NoError(t, g.Wait())

	chain := owner.Chain(class)
	require.Len(t, chain, 1)
	assert.Equal(t, workers*16, chain[0].Pending)
	assert.Equal(t, 1, a.Stats().PoolBuffersUsed)
}

func Test_Remote_ConcurrentExchange(t *testing.T) {
	const (
		workers = 6
		rounds  = 4000
	)
	a, _ := newTestAllocator(t, func(c *Config) { c.MaxThreads = workers })

	// Each worker allocates, hands some pointers to its neighbour, and frees
	// whatever it receives.
	inbox := make([]chan uintptr, workers)
	for i := range inbox {
		inbox[i] = make(chan uintptr, 1024)
	}

	var sent sync.WaitGroup
	sent.Add(workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return a.Run(func(th *Thread) error {
				r := rand.New(rand.NewSource(uint64(w) + 1))
				var local []uintptr
				for i := 0; i < rounds; i++ {
					p := th.alloc(uint64(1 + r.Intn(2048)))
					*(*uint64)(ptr(p)) = uint64(w)
					if r.Intn(2) == 0 {
						select {
						case inbox[(w+1)%workers] <- p:
						default:
							local = append(local, p)
						}
					} else {
						local = append(local, p)
					}
					if len(local) > 64 {
						th.free(local[0])
						local = local[1:]
					}
					select {
					case q := <-inbox[w]:
						th.free(q)
					default:
					}
				}
				for _, p := range local {
					th.free(p)
				}
				sent.Done()
				sent.Wait()
				for {
					select {
					case q := <-inbox[w]:
						th.free(q)
					default:
						return th.Verify()
					}
				}
			})
		})
	}
	require.NoError(t, g.Wait())

	st := a.Stats()
	assert.Equal(t, st.Allocs, st.LocalFrees+st.RemoteFrees)
	assert.NotZero(t, st.RemoteFrees)
	assert.Zero(t, st.AttachedThreads)
}

func Test_PageRecord_MergeIsIdempotent(t *testing.T) {
	p := new(pageRecord)
	p.init(0, 0, 13, 0)
	for i := 0; i < 40; i++ {
		p.claim()
	}
	p.free -= 40

	buf := new([addr.BitmapWords]uint64)
	for i := range buf {
		buf[i] = ^uint64(0)
	}
	p.remote.Store(uintptr(unsafe.Pointer(buf)))

	for _, s := range []int{15, 16, 20} {
		w, m := addr.SlotMask(s)
		buf[w] &^= m
		p.pending.Add(1)
	}

	freeBefore := p.free
	assert.Equal(t, 3, p.merge())
	assert.Equal(t, freeBefore+3, p.free)
	assert.Zero(t, p.pending.Load())
	assert.Equal(t, addr.PageEntries-int(p.free), p.used())

	assert.Zero(t, p.merge())
	assert.Equal(t, freeBefore+3, p.free)
	runtime.KeepAlive(buf)
}
