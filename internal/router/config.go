package router

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/manifoldrouter/manifold/internal/planner"
	"github.com/manifoldrouter/manifold/pkg/cache"
)

//go:generate go run github.com/ecordell/optgen -output zz_generated.options.go . Config
type Config struct {
	Planner planner.Config

	// Result cache
	ResultCacheTTL            time.Duration `default:"5m"`
	ResultCacheExpiryInterval time.Duration `default:"1m"`
	DisableResultCache        bool

	// Plan cache
	PlanCache cache.Config

	// MetadataTimeout bounds the announcement fetch of each platform.
	MetadataTimeout time.Duration `default:"10s"`

	// PrometheusSubsystem names the subsystem of the result cache metrics.
	// They are not registered when empty.
	PrometheusSubsystem string

	Clock clock.Clock `debugmap:"hidden"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("metadata timeout must be positive, got %s", c.MetadataTimeout)
	}
	if c.ResultCacheTTL < 0 {
		return fmt.Errorf("result cache ttl cannot be negative, got %s", c.ResultCacheTTL)
	}
	return nil
}
