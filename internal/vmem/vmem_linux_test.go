//go:build linux

package vmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMapWriteUnmap(t *testing.T) {
	p, err := Map(4096)
	require.NoError(t, err)
	require.NotZero(t, p)

	b := unsafe.Slice((*byte)(unsafe.Pointer(p)), 4096)
	for _, v := range b {
		require.Zero(t, v, "fresh anonymous mapping must be zeroed")
	}
	b[0], b[4095] = 0xde, 0xad

	require.NoError(t, Unmap(p, 4096))
}

func TestMapFixedNoReplace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fixed mapping test in short mode")
	}
	// Let the kernel pick a free spot, release it, then claim it exactly.
	p, err := Map(8192)
	require.NoError(t, err)
	require.NoError(t, Unmap(p, 8192))

	require.NoError(t, MapFixed(p, 8192))
	defer func() {
		require.NoError(t, Unmap(p, 8192))
	}()

	err = MapFixed(p+4096, 4096)
	require.ErrorIs(t, err, ErrInUse)
}

func TestPageSize(t *testing.T) {
	require.Positive(t, PageSize())
}
