package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/rs/zerolog"
)

// NewTheineCacheWithMetrics returns a theine cache whose metrics are exported
// under the given name.
func NewTheineCacheWithMetrics[K KeyString, V any](name string, config *Config) (Cache[K, V], error) {
	built, err := theine.NewBuilder[K, V](config.MaxCost).Build()
	if err != nil {
		return nil, err
	}
	tc := &theineCache[K, V]{
		name:       name,
		cache:      built,
		defaultTTL: config.DefaultTTL,
	}
	tc.metrics.cache = built
	mustRegisterCache(name, tc)
	return tc, nil
}

type theineCache[K KeyString, V any] struct {
	name       string
	cache      *theine.Cache[K, V]
	defaultTTL time.Duration
	closed     sync.Once
	metrics    theineMetrics[K, V]
}

func (tc *theineCache[K, V]) Get(key K) (V, bool) {
	return tc.cache.Get(key)
}

func (tc *theineCache[K, V]) Set(key K, value V, cost int64) bool {
	tc.metrics.costAdded.Add(uint64(costOf(cost)))
	if tc.defaultTTL <= 0 {
		return tc.cache.Set(key, value, cost)
	}
	return tc.cache.SetWithTTL(key, value, cost, tc.defaultTTL)
}

func (tc *theineCache[K, V]) Invalidate(key K) {
	tc.cache.Delete(key)
}

func (tc *theineCache[K, V]) Close() {
	tc.closed.Do(func() {
		tc.cache.Close()
		unregisterCache(tc.name)
	})
}

func (tc *theineCache[K, V]) GetMetrics() Metrics { return &tc.metrics }
func (tc *theineCache[K, V]) MarshalZerologObject(e *zerolog.Event) {
	e.Str("kind", string(Theine)).Str("name", tc.name)
}

type theineMetrics[K KeyString, V any] struct {
	costAdded atomic.Uint64
	cache     *theine.Cache[K, V]
}

func (tm *theineMetrics[K, V]) CostAdded() uint64   { return tm.costAdded.Load() }
func (tm *theineMetrics[K, V]) CostEvicted() uint64 { return 0 }
func (tm *theineMetrics[K, V]) Hits() uint64        { return tm.cache.Stats().Hits() }
func (tm *theineMetrics[K, V]) Misses() uint64      { return tm.cache.Stats().Misses() }
