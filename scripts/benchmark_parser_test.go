package main

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `goos: linux
BenchmarkCompare_AllocFree/slab/64-8      	50000000	        20.0 ns/op	       0 B/op	       0 allocs/op
BenchmarkCompare_AllocFree/goheap/64-8    	20000000	        50.0 ns/op	      64 B/op	       1 allocs/op
BenchmarkCompare_AllocFree/slab/4096-8    	10000000	       100.0 ns/op	       0 B/op	       0 allocs/op
BenchmarkCompare_AllocFree/goheap/4096-8  	 5000000	        80.0 ns/op	    4096 B/op	       1 allocs/op
{"Action":"output","Output":"BenchmarkCompare_Remote/slab/32-8  1000000  150.0 ns/op  0 B/op  0 allocs/op\n"}
PASS
`

func TestParseBenchmarks(t *testing.T) {
	results := parseBenchmarks(bufio.NewScanner(strings.NewReader(sampleOutput)))
	require.Len(t, results, 5)

	r := results[1]
	assert.Equal(t, "AllocFree", r.Operation)
	assert.Equal(t, "goheap", r.Impl)
	assert.Equal(t, "64", r.Size)
	assert.Equal(t, 50.0, r.NsPerOp)
	assert.Equal(t, int64(64), r.BytesPerOp)
	assert.Equal(t, int64(1), r.AllocsPerOp)

	assert.Equal(t, "Remote", results[4].Operation)
	assert.Equal(t, "32", results[4].Size)
}

func TestGenerateComparisons(t *testing.T) {
	comps := generateComparisons(parseBenchmarks(bufio.NewScanner(strings.NewReader(sampleOutput))))
	require.Len(t, comps, 3)

	assert.Equal(t, "64", comps[0].Size, "numeric sizes sort numerically")
	assert.InDelta(t, 2.5, comps[0].Speedup, 1e-9)
	assert.Equal(t, "4096", comps[1].Size)
	assert.InDelta(t, 0.8, comps[1].Speedup, 1e-9)
	assert.True(t, comps[2].SlabOnly)
}

func TestGenerateMarkdownReport(t *testing.T) {
	comps := generateComparisons(parseBenchmarks(bufio.NewScanner(strings.NewReader(sampleOutput))))
	report := generateMarkdownReport(comps, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Contains(t, report, "Generated: 2026-01-02 03:04:05")
	assert.Contains(t, report, "  - slab faster: 1 (50.0%)")
	assert.Contains(t, report, "| AllocFree | 64 | 20 | 50 | **2.50x** ✓ | 0B vs 64B | 0 vs 1 |")
	assert.Contains(t, report, "| AllocFree | 4096 | 100 | 80 | 0.80x ✗ | 0B vs 4.0KB | 0 vs 1 |")
	assert.Contains(t, report, "*slab only*")
	assert.Contains(t, formatNumber(1500), "1.5K")
}
