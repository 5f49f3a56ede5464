package cache

import (
	"slices"
	"sync"

	"github.com/jzelinskie/stringz"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(registered)
}

// cacheMetric reads one counter of a cache.
type cacheMetric struct {
	desc  *prometheus.Desc
	value func(Metrics) uint64
}

func newCacheMetric(name, help string, value func(Metrics) uint64) cacheMetric {
	return cacheMetric{
		desc:  prometheus.NewDesc(stringz.Join("_", "manifold", "cache", name), help, []string{"cache"}, nil),
		value: value,
	}
}

var cacheMetrics = []cacheMetric{
	newCacheMetric("hits_total", "lookups that found their key, by cache", Metrics.Hits),
	newCacheMetric("misses_total", "lookups that did not find their key, by cache", Metrics.Misses),
	newCacheMetric("cost_added_total", "cost of the entries set, by cache", Metrics.CostAdded),
	newCacheMetric("cost_evicted_total", "cost of the entries evicted or expired, by cache", Metrics.CostEvicted),
}

type withMetrics interface {
	GetMetrics() Metrics
}

// cacheRegistry collects the metrics of every live named cache.
type cacheRegistry struct {
	mu     sync.Mutex
	caches map[string]withMetrics
}

var (
	registered = &cacheRegistry{caches: map[string]withMetrics{}}

	_ prometheus.Collector = (*cacheRegistry)(nil)
)

func mustRegisterCache(name string, c withMetrics) {
	registered.mu.Lock()
	defer registered.mu.Unlock()

	if _, ok := registered.caches[name]; ok {
		panic("two caches named " + name)
	}
	registered.caches[name] = c
}

func unregisterCache(name string) {
	registered.mu.Lock()
	defer registered.mu.Unlock()
	delete(registered.caches, name)
}

func (r *cacheRegistry) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range cacheMetrics {
		ch <- m.desc
	}
}

func (r *cacheRegistry) Collect(ch chan<- prometheus.Metric) {
	r.mu.Lock()
	names := make([]string, 0, len(r.caches))
	snapshots := make(map[string]Metrics, len(r.caches))
	for name, c := range r.caches {
		names = append(names, name)
		snapshots[name] = c.GetMetrics()
	}
	r.mu.Unlock()

	slices.Sort(names)
	for _, name := range names {
		for _, m := range cacheMetrics {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value(snapshots[name])), name)
		}
	}
}
