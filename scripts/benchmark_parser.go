// Command benchmark_parser turns `go test -bench` output for the slab/goheap
// comparison benchmarks into a markdown report.
//
//	go test ./slab -run '^$' -bench Compare -benchmem | go run ./scripts -output report.md
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Operation   string
	Size        string
	Impl        string // "slab" or "goheap"
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

// ComparisonResult pairs the slab and Go heap runs of one operation and size.
type ComparisonResult struct {
	Operation  string
	Size       string
	SlabNs     float64
	HeapNs     float64
	Speedup    float64
	SlabMem    int64
	HeapMem    int64
	SlabAllocs int64
	HeapAllocs int64
	SlabOnly   bool
}

var (
	inputFile = flag.String(
		"input",
		"",
		"Input file with benchmark output (stdin if not specified)",
	)
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

// BenchmarkCompare_AllocFree/slab/64-8    10000    12.4 ns/op    0 B/op    0 allocs/op
var benchmarkRegex = regexp.MustCompile(
	`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+(?:B|MB)/op)?(?:\s+([\d.]+)\s+allocs/op)?`,
)

func main() {
	flag.Parse()

	var in io.Reader = os.Stdin
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	results := parseBenchmarks(bufio.NewScanner(in))
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	report := generateMarkdownReport(generateComparisons(results), time.Now())

	if *outputFile == "" {
		fmt.Fprint(os.Stdout, report)
		return
	}
	if err := os.WriteFile(*outputFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
	}
}

func parseBenchmarks(scanner *bufio.Scanner) []BenchmarkResult {
	var results []BenchmarkResult
	for scanner.Scan() {
		line := scanner.Text()

		// Accept `go test -json` events too.
		var event struct{ Output string }
		if err := json.Unmarshal([]byte(line), &event); err == nil && event.Output != "" {
			line = event.Output
		}

		m := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		r := BenchmarkResult{Name: m[1]}
		r.Iterations, _ = strconv.Atoi(m[2])
		r.NsPerOp, _ = strconv.ParseFloat(m[3], 64)
		if m[4] != "" {
			r.BytesPerOp, _ = strconv.ParseInt(m[4], 10, 64)
		}
		if m[5] != "" {
			r.AllocsPerOp, _ = strconv.ParseInt(m[5], 10, 64)
		}

		// Benchmark<Operation>/<impl>/<size>-<procs>
		parts := strings.Split(m[1], "/")
		r.Operation = strings.TrimPrefix(strings.TrimPrefix(parts[0], "Benchmark"), "Compare_")
		r.Impl = "slab"
		if len(parts) >= 2 {
			r.Impl = trimProcs(parts[1])
		}
		if len(parts) >= 3 {
			r.Size = trimProcs(parts[len(parts)-1])
		}
		results = append(results, r)
	}
	return results
}

func trimProcs(s string) string {
	if i := strings.LastIndex(s, "-"); i > 0 {
		if _, err := strconv.Atoi(s[i+1:]); err == nil {
			return s[:i]
		}
	}
	return s
}

func generateComparisons(results []BenchmarkResult) []ComparisonResult {
	type key struct{ operation, size string }
	grouped := make(map[key]map[string]BenchmarkResult)
	for _, r := range results {
		k := key{r.Operation, r.Size}
		if grouped[k] == nil {
			grouped[k] = make(map[string]BenchmarkResult)
		}
		grouped[k][r.Impl] = r
	}

	var comparisons []ComparisonResult
	for k, impls := range grouped {
		s, hasSlab := impls["slab"]
		if !hasSlab {
			continue
		}
		c := ComparisonResult{
			Operation:  k.operation,
			Size:       k.size,
			SlabNs:     s.NsPerOp,
			SlabMem:    s.BytesPerOp,
			SlabAllocs: s.AllocsPerOp,
			SlabOnly:   true,
		}
		if h, ok := impls["goheap"]; ok {
			c.SlabOnly = false
			c.HeapNs = h.NsPerOp
			c.HeapMem = h.BytesPerOp
			c.HeapAllocs = h.AllocsPerOp
			if s.NsPerOp > 0 {
				c.Speedup = h.NsPerOp / s.NsPerOp
			}
		}
		comparisons = append(comparisons, c)
	}

	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].Operation != comparisons[j].Operation {
			return comparisons[i].Operation < comparisons[j].Operation
		}
		return sizeKey(comparisons[i].Size) < sizeKey(comparisons[j].Size)
	})
	return comparisons
}

// sizeKey orders numeric sizes numerically and everything else after them.
func sizeKey(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 1 << 62
	}
	return n
}

func generateMarkdownReport(comparisons []ComparisonResult, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Benchmark Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))

	slabFaster, heapFaster, slabOnly := 0, 0, 0
	totalSpeedup := 0.0
	for _, c := range comparisons {
		switch {
		case c.SlabOnly:
			slabOnly++
			continue
		case c.Speedup > 1.0:
			slabFaster++
		case c.Speedup < 1.0:
			heapFaster++
		}
		totalSpeedup += c.Speedup
	}
	comparable := len(comparisons) - slabOnly

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- **Total benchmarks**: %d\n", len(comparisons))
	fmt.Fprintf(&sb, "- **Compared against the Go heap**: %d\n", comparable)
	if comparable > 0 {
		fmt.Fprintf(&sb, "  - slab faster: %d (%.1f%%)\n", slabFaster, percent(slabFaster, comparable))
		fmt.Fprintf(&sb, "  - Go heap faster: %d (%.1f%%)\n", heapFaster, percent(heapFaster, comparable))
		fmt.Fprintf(&sb, "  - Average speedup: **%.2fx**\n", totalSpeedup/float64(comparable))
	}
	fmt.Fprintf(&sb, "- **slab-only**: %d\n\n", slabOnly)

	sb.WriteString("## Detailed Results\n\n")
	sb.WriteString("| Operation | Size | slab (ns/op) | Go heap (ns/op) | Speedup | Memory (B/op) | Allocs |\n")
	sb.WriteString("|-----------|------|--------------|-----------------|---------|---------------|--------|\n")
	for _, c := range comparisons {
		if c.SlabOnly {
			fmt.Fprintf(&sb, "| %s | %s | %s | *N/A* | *slab only* | %s | %s |\n",
				c.Operation, c.Size, formatNumber(c.SlabNs), formatBytes(c.SlabMem),
				formatNumber(float64(c.SlabAllocs)))
			continue
		}
		style, mark := "**", "✓"
		if c.Speedup < 1.0 {
			style, mark = "", "✗"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s%.2fx%s %s | %s vs %s | %s vs %s |\n",
			c.Operation, c.Size,
			formatNumber(c.SlabNs), formatNumber(c.HeapNs),
			style, c.Speedup, style, mark,
			formatBytes(c.SlabMem), formatBytes(c.HeapMem),
			formatNumber(float64(c.SlabAllocs)), formatNumber(float64(c.HeapAllocs)),
		)
	}

	sb.WriteString("\n## Notes\n\n")
	sb.WriteString("- **Speedup > 1.0**: slab is faster ✓\n")
	sb.WriteString("- **Speedup < 1.0**: the Go heap is faster ✗\n")
	sb.WriteString("- Go heap numbers exclude collection work deferred past the benchmark\n")
	return sb.String()
}

func percent(n, of int) float64 {
	return float64(n) / float64(of) * 100
}

func formatNumber(n float64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.2fM", n/1000000)
	} else if n >= 1000 {
		return fmt.Sprintf("%.1fK", n/1000)
	}
	return fmt.Sprintf("%.0f", n)
}

func formatBytes(b int64) string {
	if b >= 1024*1024 {
		return fmt.Sprintf("%.2fMB", float64(b)/(1024*1024))
	} else if b >= 1024 {
		return fmt.Sprintf("%.1fKB", float64(b)/1024)
	}
	return fmt.Sprintf("%dB", b)
}
