//go:build linux

package slab

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// freeProber reports every range as free and leaves conflicts to MAP_FIXED_NOREPLACE.
type freeProber struct{}

func (freeProber) IsRangeFree(begin, end uintptr) (bool, error) { return true, nil }

// countingMapper maps real memory and counts calls.
type countingMapper struct {
	osMapper
	fixed  atomic.Int64
	maps   atomic.Int64
	unmaps atomic.Int64
}

func (m *countingMapper) MapFixed(addr, size uintptr) error {
	err := m.osMapper.MapFixed(addr, size)
	if err == nil {
		m.fixed.Add(1)
	}
	return err
}

func (m *countingMapper) Map(size uintptr) (uintptr, error) {
	m.maps.Add(1)
	return m.osMapper.Map(size)
}

func (m *countingMapper) Unmap(addr, size uintptr) error {
	m.unmaps.Add(1)
	return m.osMapper.Unmap(addr, size)
}

func newTestAllocator(tb testing.TB, mutate func(*Config)) (*Allocator, *countingMapper) {
	tb.Helper()
	cfg := DefaultConfig()
	cfg.Prober = freeProber{}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(tb, cfg.Validate())
	m := &countingMapper{}
	return newAllocator(cfg, m), m
}

func attach(tb testing.TB, a *Allocator) *Thread {
	tb.Helper()
	th, err := a.Attach()
	require.NoError(tb, err)
	return th
}

// fill allocates n slots of size and returns their addresses.
func fill(th *Thread, size uint64, n int) []uintptr {
	out := make([]uintptr, n)
	for i := range out {
		out[i] = th.alloc(size)
	}
	return out
}

func frees(pages []PageInfo) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p.Free
	}
	return out
}

func bases(pages []PageInfo) []uintptr {
	out := make([]uintptr, len(pages))
	for i, p := range pages {
		out[i] = p.Base
	}
	return out
}

const (
	timeout = 5 * time.Second
	tick    = 5 * time.Millisecond
)
