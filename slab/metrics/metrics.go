// Package metrics exports allocator statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/slabkit/slab"
)

// Source provides stats snapshots. *slab.Allocator implements it.
type Source interface {
	Stats() slab.Stats
}

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(slab.Stats) float64
}

// Collector is a prometheus.Collector that takes one Stats snapshot per scrape.
type Collector struct {
	src     Source
	metrics []metric
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for src. constLabels are attached to every
// series, which lets several allocators share one registry.
func NewCollector(src Source, namespace string, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "slab", name), help, nil, constLabels)
	}
	counter := func(name, help string, f func(slab.Stats) uint64) metric {
		return metric{desc(name, help), prometheus.CounterValue, func(s slab.Stats) float64 { return float64(f(s)) }}
	}
	gauge := func(name, help string, f func(slab.Stats) float64) metric {
		return metric{desc(name, help), prometheus.GaugeValue, f}
	}

	return &Collector{
		src: src,
		metrics: []metric{
			counter("allocs_total", "Slab slots handed out.", func(s slab.Stats) uint64 { return s.Allocs }),
			counter("local_frees_total", "Frees issued by the owning thread.", func(s slab.Stats) uint64 { return s.LocalFrees }),
			counter("remote_frees_total", "Frees issued by a non-owning thread.", func(s slab.Stats) uint64 { return s.RemoteFrees }),
			counter("merges_total", "Remote-free buffers folded into a page bitmap.", func(s slab.Stats) uint64 { return s.Merges }),
			counter("merged_slots_total", "Slots recovered by merging remote frees.", func(s slab.Stats) uint64 { return s.MergedSlots }),
			counter("superpages_reserved_total", "Superpages mapped at class-encoded addresses.", func(s slab.Stats) uint64 { return s.Superpages }),
			counter("reservation_conflicts_total", "Candidate ranges found occupied.", func(s slab.Stats) uint64 { return s.Conflicts }),
			counter("superpages_unmapped_total", "Slab superpages returned to the OS.", func(s slab.Stats) uint64 { return s.Unmaps }),
			counter("remote_drains_total", "Superpages unmapped after remote frees emptied them.", func(s slab.Stats) uint64 { return s.RemoteUnmaps }),
			counter("huge_allocs_total", "Allocations served by a dedicated mapping.", func(s slab.Stats) uint64 { return s.HugeAllocs }),
			counter("huge_frees_total", "Dedicated mappings released.", func(s slab.Stats) uint64 { return s.HugeFrees }),
			counter("adoptions_total", "Attaches that inherited pages from a previous occupant.", func(s slab.Stats) uint64 { return s.Adoptions }),
			gauge("live_superpages", "Superpages currently mapped.", func(s slab.Stats) float64 { return float64(s.LiveSuperpages()) }),
			gauge("pool_blocks", "Blocks mapped by the remote-free buffer pool.", func(s slab.Stats) float64 { return float64(s.PoolBlocks) }),
			gauge("pool_buffers_in_use", "Remote-free buffers attached to pages.", func(s slab.Stats) float64 { return float64(s.PoolBuffersUsed) }),
			gauge("attached_threads", "Thread slots currently occupied.", func(s slab.Stats) float64 { return float64(s.AttachedThreads) }),
			gauge("max_threads", "Thread slots available.", func(s slab.Stats) float64 { return float64(s.MaxThreads) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s))
	}
}
