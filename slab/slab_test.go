//go:build linux

package slab

import (
	"slices"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/joshuapare/slabkit/internal/addr"
)

func Test_Alloc_SmallSizesShareClassZero(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	p1 := th.Alloc(1)
	p8 := th.Alloc(8)
	require.NotNil(t, p1)
	require.NotNil(t, p8)
	assert.NotEqual(t, p1, p8)
	assert.Equal(t, 0, addr.Decode(uintptr(p1)))
	assert.Equal(t, 0, addr.Decode(uintptr(p8)))
	assert.Equal(t, 8, UsableSize(p1))
	assert.Equal(t, 8, UsableSize(th.Alloc(0)))
}

func Test_Alloc_PointersEncodeClass(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	for class := 0; class < a.cfg.HugeClass; class++ {
		size := int(addr.SlotSize(class))
		p := th.Alloc(size)
		require.NotNil(t, p, "class %d", class)
		u := uintptr(p)
		assert.Equal(t, class, addr.Decode(u), "class %d", class)
		assert.Zero(t, u%uintptr(size), "class %d slot alignment", class)
		assert.GreaterOrEqual(t, u, uintptr(addr.MinCandidate))

		b := unsafe.Slice((*byte)(p), size)
		b[0], b[size-1] = 0xAA, 0x55
		assert.Equal(t, byte(0xAA), b[0])
		th.Free(p)
	}
	require.NoError(t, th.Verify())
}

func Test_Alloc_FirstSlotFollowsHeader(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	p := uintptr(th.Alloc(8))
	base := addr.PageBase(p, 0)
	assert.Equal(t, headerSlots(0), addr.SlotIndex(p, 0))
	assert.Equal(t, base+uintptr(headerSlots(0))*8, p)

	q := uintptr(th.Alloc(8))
	assert.Equal(t, p+8, q, "slots are handed out lowest first")
}

func Test_Alloc_HugeMapsAndUnmapsOnce(t *testing.T) {
	a, m := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	p := th.Alloc(1_000_000)
	require.NotNil(t, p)
	assert.Equal(t, 17, addr.Decode(uintptr(p)))
	assert.Equal(t, 1<<20, UsableSize(p))
	assert.Zero(t, uintptr(p)%(1<<20))

	b := unsafe.Slice((*byte)(p), 1<<20)
	b[0], b[len(b)-1] = 1, 2

	before := m.unmaps.Load()
	th.Free(p)
	assert.Equal(t, before+1, m.unmaps.Load())

	st := a.Stats()
	assert.Equal(t, uint64(1), st.HugeAllocs)
	assert.Equal(t, uint64(1), st.HugeFrees)
	assert.Zero(t, st.Allocs, "huge requests bypass the page cache")
}

func Test_Alloc_BeyondLargestClass(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	assert.Nil(t, th.Alloc(1<<40))
	assert.Nil(t, th.Alloc(-1))
}

func Test_Free_NilIsNoop(t *testing.T) {
	a, m := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	th.Free(nil)
	assert.Zero(t, m.unmaps.Load())
	assert.Equal(t, Stats{MaxThreads: a.cfg.MaxThreads, AttachedThreads: 1}, a.Stats())
}

func Test_Alloc_FullPageLeavesChain(t *testing.T) {
	a, m := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	const class = 4
	capacity := addr.PageEntries - headerSlots(class)
	ptrs := fill(th, addr.SlotSize(class), capacity)

	assert.Empty(t, th.Chain(class), "a full page is unlinked")
	assert.Equal(t, int64(1), m.fixed.Load())

	seen := make(map[uintptr]bool, len(ptrs))
	base := addr.PageBase(ptrs[0], class)
	for _, p := range ptrs {
		assert.Equal(t, base, addr.PageBase(p, class))
		assert.False(t, seen[p], "slot %#x handed out twice", p)
		seen[p] = true
	}

	next := th.alloc(addr.SlotSize(class))
	assert.NotEqual(t, base, addr.PageBase(next, class))
	assert.Equal(t, int64(2), m.fixed.Load())
	require.NoError(t, th.Verify())
}

func Test_Free_FullPageRejoinsAtTail(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	const class = 4
	capacity := addr.PageEntries - headerSlots(class)
	p1 := fill(th, addr.SlotSize(class), capacity)
	p2 := th.alloc(addr.SlotSize(class))

	th.free(p1[7])
	chain := th.Chain(class)
	require.Len(t, chain, 2)
	assert.Equal(t, addr.PageBase(p2, class), chain[0].Base)
	assert.Equal(t, addr.PageBase(p1[0], class), chain[1].Base)
	assert.Equal(t, 1, chain[1].Free)

	// The freed slot is the only one available on that page.
	th.free(p2)
	require.NoError(t, th.Verify())
}

func Test_Chain_SingleSwapPromotion(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	const class = 4
	size := addr.SlotSize(class)
	capacity := addr.PageEntries - headerSlots(class)
	require.Equal(t, 511, capacity)

	p1 := fill(th, size, capacity)
	p2 := fill(th, size, capacity)
	_ = fill(th, size, capacity)
	p4 := th.alloc(size)

	th.free(p1[0])
	th.free(p2[0])
	th.free(p2[1])

	chain := th.Chain(class)
	assert.Equal(t, []uintptr{
		addr.PageBase(p4, class),
		addr.PageBase(p2[0], class),
		addr.PageBase(p1[0], class),
	}, bases(chain))
	assert.Equal(t, []int{510, 2, 1}, frees(chain))
	assert.Zero(t, Inversions(chain))
	require.NoError(t, th.Verify())
}

func Test_Chain_LocalFreeMovesPageAtMostOneStep(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	const class = 4
	size := addr.SlotSize(class)
	capacity := addr.PageEntries - headerSlots(class)
	live := fill(th, size, 30*capacity)
	require.Empty(t, th.Chain(class))

	r := rand.New(rand.NewSource(7))
	swaps := 0
	for i := 0; i < 20000; i++ {
		if r.Intn(3) == 0 || len(live) == 0 {
			live = append(live, th.alloc(size))
			continue
		}
		j := r.Intn(len(live))
		p := live[j]
		live[j] = live[len(live)-1]
		live = live[:len(live)-1]

		base := addr.PageBase(p, class)
		before := bases(th.Chain(class))
		cached := pageAt(base).cachedPred
		th.free(p)
		chain := th.Chain(class)
		after := bases(chain)

		idx := slices.Index(before, base)
		switch {
		case idx < 0:
			require.Equal(t, append(before, base), after, "a full page rejoins at the tail")
			continue
		case idx <= 1:
			require.Equal(t, before, after, "the head and its successor stay put")
			continue
		}

		pFree := int(pageAt(base).free)
		predFree := int(pageAt(before[idx-1]).free)
		swapped := slices.Clone(before)
		swapped[idx-1], swapped[idx] = swapped[idx], swapped[idx-1]
		if slices.Equal(swapped, after) {
			require.Greater(t, pFree, predFree, "page moved ahead of a fuller page")
			swaps++
			continue
		}
		require.Equal(t, before, after, "a local free moves a page by at most one position")
		if cached != noCache && pFree > int(cached) {
			require.LessOrEqual(t, pFree, predFree, "promotion checked the live predecessor count")
		}
	}
	assert.Positive(t, swaps)
	require.NoError(t, th.Verify())
	t.Logf("swaps %d, inversions at end %d", swaps, Inversions(th.Chain(class)))
}

func Test_Chain_HeadNeverDisplaced(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	const class = 4
	size := addr.SlotSize(class)
	capacity := addr.PageEntries - headerSlots(class)

	p1 := fill(th, size, capacity)
	head := th.alloc(size)
	for _, p := range p1 {
		th.free(p)
	}

	chain := th.Chain(class)
	require.Len(t, chain, 2)
	assert.Equal(t, addr.PageBase(head, class), chain[0].Base)
	assert.Equal(t, []int{capacity - 1, capacity}, frees(chain))
	require.NoError(t, th.Verify())
}

func Test_Alloc_RandomWorkloadKeepsChainsConsistent(t *testing.T) {
	a, _ := newTestAllocator(t, nil)
	th := attach(t, a)
	defer th.Detach()

	r := rand.New(rand.NewSource(42))
	live := make(map[uintptr]uint64)
	var order []uintptr

	for i := 0; i < 20000; i++ {
		if len(order) > 0 && r.Intn(3) == 0 {
			j := r.Intn(len(order))
			p := order[j]
			order[j] = order[len(order)-1]
			order = order[:len(order)-1]
			require.Equal(t, live[p], *(*uint64)(ptr(p)), "contents of %#x clobbered", p)
			delete(live, p)
			th.free(p)
			continue
		}
		size := uint64(8 << r.Intn(8))
		p := th.alloc(size)
		require.NotZero(t, p)
		_, exists := live[p]
		require.False(t, exists, "slot %#x handed out twice", p)
		tag := uint64(i)<<8 | size
		*(*uint64)(ptr(p)) = tag
		live[p] = tag
		order = append(order, p)
	}
	require.NoError(t, th.Verify())

	for _, p := range order {
		th.free(p)
	}
	require.NoError(t, th.Verify())
	st := a.Stats()
	assert.Equal(t, st.Allocs, st.LocalFrees)
}
