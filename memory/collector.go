package memory

import (
	"github.com/prometheus/client_golang/prometheus"
)

type collector struct {
	alloc  Allocator
	bytes  *prometheus.Desc
	allocs *prometheus.Desc
}

// NewCollector exports an allocator's counters as Prometheus metrics.
func NewCollector(alloc Allocator, namespace string) prometheus.Collector {
	labels := prometheus.Labels{"backend": alloc.BackendName()}
	return &collector{
		alloc: alloc,
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "bytes_allocated"),
			"Bytes currently held by buffers from this allocator.",
			nil, labels,
		),
		allocs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "allocator", "allocations_total"),
			"Allocations served by this allocator.",
			nil, labels,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytes
	ch <- c.allocs
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(c.alloc.BytesAllocated()))
	ch <- prometheus.MustNewConstMetric(c.allocs, prometheus.CounterValue, float64(c.alloc.NumAllocations()))
}
