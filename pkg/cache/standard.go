package cache

import (
	"fmt"

	"github.com/ccoveille/go-safecast/v2"
)

// NewStandardCacheWithMetrics creates a cache of the configured kind, or a
// no-op cache if it is disabled.
func NewStandardCacheWithMetrics[K KeyString, V any](name string, config *Config) (Cache[K, V], error) {
	if config == nil || config.Disabled {
		return NoopCache[K, V](), nil
	}
	if config.MaxCost <= 0 {
		return nil, fmt.Errorf("cache `%s` needs a positive max cost, got %d", name, config.MaxCost)
	}

	switch config.Kind {
	case Theine, "":
		return NewTheineCacheWithMetrics[K, V](name, config)
	case Otter:
		return NewOtterCacheWithMetrics[K, V](name, config)
	default:
		return nil, fmt.Errorf("unknown cache kind `%s`", config.Kind)
	}
}

func safecastMaxCost(maxCost int64) (uint64, error) {
	converted, err := safecast.Convert[uint64](maxCost)
	if err != nil {
		return 0, fmt.Errorf("invalid cache max cost %d: %w", maxCost, err)
	}
	return converted, nil
}
