package cache

import (
	"sync"
	"sync/atomic"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/rs/zerolog"
)

type otterEntry[V any] struct {
	value V
	cost  uint32
}

// NewOtterCacheWithMetrics returns an otter cache whose metrics are exported
// under the given name.
func NewOtterCacheWithMetrics[K KeyString, V any](name string, config *Config) (Cache[K, V], error) {
	maxWeight, err := safecastMaxCost(config.MaxCost)
	if err != nil {
		return nil, err
	}

	counter := stats.NewCounter()
	opts := &otter.Options[K, otterEntry[V]]{
		MaximumWeight: maxWeight,
		Weigher: func(_ K, e otterEntry[V]) uint32 {
			return e.cost
		},
		StatsRecorder: counter,
	}
	if config.DefaultTTL > 0 {
		opts.ExpiryCalculator = otter.ExpiryWriting[K, otterEntry[V]](config.DefaultTTL)
	}

	built, err := otter.New(opts)
	if err != nil {
		return nil, err
	}

	oc := &otterCache[K, V]{name: name, cache: built}
	oc.metrics.counter = counter
	mustRegisterCache(name, oc)
	return oc, nil
}

type otterCache[K KeyString, V any] struct {
	name    string
	cache   *otter.Cache[K, otterEntry[V]]
	closed  sync.Once
	metrics otterMetrics
}

func (oc *otterCache[K, V]) Get(key K) (V, bool) {
	e, ok := oc.cache.GetIfPresent(key)
	return e.value, ok
}

func (oc *otterCache[K, V]) Set(key K, value V, cost int64) bool {
	c := costOf(cost)
	oc.metrics.costAdded.Add(uint64(c))
	oc.cache.Set(key, otterEntry[V]{value: value, cost: c})
	return true
}

func (oc *otterCache[K, V]) Invalidate(key K) {
	oc.cache.Invalidate(key)
}

func (oc *otterCache[K, V]) Close() {
	oc.closed.Do(func() {
		oc.cache.InvalidateAll()
		unregisterCache(oc.name)
	})
}

func (oc *otterCache[K, V]) GetMetrics() Metrics { return &oc.metrics }
func (oc *otterCache[K, V]) MarshalZerologObject(e *zerolog.Event) {
	e.Str("kind", string(Otter)).Str("name", oc.name)
}

type otterMetrics struct {
	costAdded atomic.Uint64
	counter   *stats.Counter
}

func (om *otterMetrics) CostAdded() uint64   { return om.costAdded.Load() }
func (om *otterMetrics) CostEvicted() uint64 { return om.counter.Snapshot().EvictionWeight }
func (om *otterMetrics) Hits() uint64        { return om.counter.Snapshot().Hits }
func (om *otterMetrics) Misses() uint64      { return om.counter.Snapshot().Misses }
