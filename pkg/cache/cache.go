package cache

import (
	"time"

	"github.com/ccoveille/go-safecast/v2"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// KeyString is an interface for keys that can be converted to strings.
type KeyString interface {
	comparable
	KeyString() string
}

// StringKey is a simple string key.
type StringKey string

func (sk StringKey) KeyString() string {
	return string(sk)
}

// Kind names a cache implementation.
type Kind string

const (
	// Theine is the default implementation.
	Theine Kind = "theine"
	Otter  Kind = "otter"
)

// Config for caching.
type Config struct {
	// Kind selects the implementation. The zero value selects Theine.
	Kind Kind `default:"theine"`

	// MaxCost is the capacity of the cache, in the unit of the costs passed
	// to Set.
	MaxCost int64 `default:"16777216"`

	// DefaultTTL configures a default deadline on the lifetime of any keys set
	// to the cache. Keys never expire when it is not positive.
	DefaultTTL time.Duration `default:"10m"`

	// Disabled makes the cache a no-op.
	Disabled bool
}

func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	if c.Disabled {
		e.Bool("enabled", false)
		return
	}
	maxCost, _ := safecast.Convert[uint64](c.MaxCost)
	e.
		Str("kind", string(c.Kind)).
		Str("maxCost", humanize.IBytes(maxCost)).
		Dur("defaultTTL", c.DefaultTTL)
}

// Cache defines an interface for a generic cache.
type Cache[K KeyString, V any] interface {
	// Get returns the value for the given key in the cache, if it exists.
	Get(key K) (V, bool)

	// Set sets a value for the key in the cache, with the given cost.
	Set(key K, entry V, cost int64) bool

	// Invalidate removes the key from the cache.
	Invalidate(key K)

	// Close closes the cache's background workers (if any).
	Close()

	// GetMetrics returns the metrics block for the cache.
	GetMetrics() Metrics

	zerolog.LogObjectMarshaler
}

// Metrics defines metrics exported by the cache.
type Metrics interface {
	// Hits is the number of cache hits.
	Hits() uint64

	// Misses is the number of cache misses.
	Misses() uint64

	// CostAdded returns the total cost of added items.
	CostAdded() uint64

	// CostEvicted returns the total cost of evicted items.
	CostEvicted() uint64
}

// NoopCache returns a cache that does nothing.
func NoopCache[K KeyString, V any]() Cache[K, V] { return &noopCache[K, V]{} }

type noopCache[K KeyString, V any] struct{}

var _ Cache[StringKey, any] = (*noopCache[StringKey, any])(nil)

func (no *noopCache[K, V]) Get(_ K) (V, bool)          { return *new(V), false }
func (no *noopCache[K, V]) Set(_ K, _ V, _ int64) bool { return false }
func (no *noopCache[K, V]) Invalidate(_ K)             {}
func (no *noopCache[K, V]) Close()                     {}
func (no *noopCache[K, V]) GetMetrics() Metrics        { return &noopMetrics{} }
func (no *noopCache[K, V]) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("enabled", false)
}

type noopMetrics struct{}

var _ Metrics = (*noopMetrics)(nil)

func (no *noopMetrics) Hits() uint64        { return 0 }
func (no *noopMetrics) Misses() uint64      { return 0 }
func (no *noopMetrics) CostAdded() uint64   { return 0 }
func (no *noopMetrics) CostEvicted() uint64 { return 0 }

// costOf clamps a cost to the range the implementations accept.
func costOf(cost int64) uint32 {
	converted, err := safecast.Convert[uint32](cost)
	if err != nil {
		if cost < 0 {
			return 0
		}
		return ^uint32(0)
	}
	return converted
}
