// Package config loads the YAML file describing the router and the
// platforms it forwards queries to.
//
// A file looks like:
//
//	router:
//	  planner:
//	    max_depth: 3
//	  result_cache:
//	    ttl: 5m
//	  plan_cache:
//	    max_cost: 16MiB
//	platforms:
//	  - name: ple
//	    type: sql
//	    retries: 2
//	    rate_limit: 10
//	    config:
//	      driver: pgx
//	      dsn: ${PLE_DSN}
//	      announce: ple.h
//
// Environment variables are expanded in the whole file.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ccoveille/go-safecast/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/creasty/defaults"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/manifoldrouter/manifold/internal/gateways/memory"
	"github.com/manifoldrouter/manifold/internal/gateways/sqlgw"
	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/planner"
	"github.com/manifoldrouter/manifold/internal/router"
	"github.com/manifoldrouter/manifold/pkg/cache"
	"github.com/manifoldrouter/manifold/pkg/closer"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// File is the content of a configuration file.
type File struct {
	Router    Router     `yaml:"router"`
	Platforms []Platform `yaml:"platforms"`
}

// Router configures the router itself.
type Router struct {
	Planner          planner.Config `yaml:"planner"`
	ResultCache      ResultCache    `yaml:"result_cache"`
	PlanCache        PlanCache      `yaml:"plan_cache"`
	MetadataTimeout  time.Duration  `yaml:"metadata_timeout" default:"10s"`
	MetricsSubsystem string         `yaml:"metrics_subsystem"`
}

// ResultCache configures the cache of the records fetched from platforms.
type ResultCache struct {
	TTL            time.Duration `yaml:"ttl" default:"5m"`
	ExpiryInterval time.Duration `yaml:"expiry_interval" default:"1m"`
	Disabled       bool          `yaml:"disabled"`
}

// PlanCache configures the cache of the plans of recurring queries.
type PlanCache struct {
	Kind     string        `yaml:"kind" default:"theine"`
	MaxCost  ByteSize      `yaml:"max_cost" default:"16777216"`
	TTL      time.Duration `yaml:"ttl" default:"10m"`
	Disabled bool          `yaml:"disabled"`
}

// ByteSize is a size written in bytes or with a unit, as in `16MiB`.
type ByteSize uint64

// UnmarshalYAML parses the size with humanize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: a size must be a scalar", value.Line)
	}
	size, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(size)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Platform configures one platform. Config is handed to the factory of the
// gateway type.
type Platform struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Disabled bool           `yaml:"disabled"`
	Retries  uint64         `yaml:"retries"`

	// RateLimit bounds the queries started on the platform per second when
	// positive. Burst queries may start at once.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// Aliases renames, per object, the fields the platform names differently
	// from the unified schema: platform name to unified name.
	Aliases map[string]map[string]string `yaml:"aliases"`

	Config map[string]any `yaml:"config"`
}

// Load reads the configuration file at path.
func Load(path string) (*File, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("configuration file `%s`: %w", path, err)
	}
	return f, nil
}

// Parse parses and validates a configuration.
func Parse(contents []byte) (*File, error) {
	f := &File{}
	if err := defaults.Set(f); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(contents))), f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the configuration.
func (f *File) Validate() error {
	if err := f.Router.Planner.Validate(); err != nil {
		return err
	}
	switch cache.Kind(f.Router.PlanCache.Kind) {
	case cache.Theine, cache.Otter:
	default:
		return fmt.Errorf("unknown plan cache kind `%s`", f.Router.PlanCache.Kind)
	}
	if f.Router.MetadataTimeout <= 0 {
		return errors.New("metadata_timeout must be positive")
	}

	var names []string
	for i, p := range f.Platforms {
		switch {
		case p.Name == "":
			return fmt.Errorf("platform %d has no name", i)
		case p.Name == query.LocalNamespace:
			return fmt.Errorf("platform name `%s` is reserved", p.Name)
		case slices.Contains(names, p.Name):
			return fmt.Errorf("platform `%s` configured twice", p.Name)
		case p.Type == "":
			return fmt.Errorf("platform `%s` has no type", p.Name)
		case p.RateLimit < 0 || p.Burst < 0:
			return fmt.Errorf("platform `%s` has a negative rate limit", p.Name)
		}
		names = append(names, p.Name)
	}
	return nil
}

// RouterConfig returns the configuration of the router.
func (f *File) RouterConfig() (*router.Config, error) {
	rc := f.Router
	maxCost, err := safecast.Convert[int64](uint64(rc.PlanCache.MaxCost))
	if err != nil {
		return nil, fmt.Errorf("plan cache max cost %s: %w", rc.PlanCache.MaxCost, err)
	}
	return router.NewConfigWithOptionsAndDefaults(
		router.WithPlanner(rc.Planner),
		router.WithResultCacheTTL(rc.ResultCache.TTL),
		router.WithResultCacheExpiryInterval(rc.ResultCache.ExpiryInterval),
		router.WithDisableResultCache(rc.ResultCache.Disabled),
		router.WithPlanCache(cache.Config{
			Kind:       cache.Kind(rc.PlanCache.Kind),
			MaxCost:    maxCost,
			DefaultTTL: rc.PlanCache.TTL,
			Disabled:   rc.PlanCache.Disabled,
		}),
		router.WithMetadataTimeout(rc.MetadataTimeout),
		router.WithPrometheusSubsystem(rc.MetricsSubsystem),
	), nil
}

// DefaultRegistry returns a registry of every built-in gateway type.
func DefaultRegistry() gateway.Registry {
	registry := gateway.Registry{}
	memory.Register(registry)
	sqlgw.Register(registry)
	return registry
}

// NewRouter builds the gateways of the platforms with the registry, then the
// router over them. Closing the returned stack closes the router, then the
// gateways.
func (f *File) NewRouter(registry gateway.Registry) (*router.Router, *closer.Stack, error) {
	config, err := f.RouterConfig()
	if err != nil {
		return nil, nil, err
	}

	stack := &closer.Stack{}
	platforms := make([]router.Platform, 0, len(f.Platforms))
	for _, p := range f.Platforms {
		gw, err := registry.New(p.Type, p.Name, p.Config)
		if err != nil {
			return nil, nil, stack.CloseIfError(err)
		}
		stack.AddIfCloser(gw)

		if p.RateLimit > 0 {
			gw = gateway.WithRateLimit(gw, p.Name, rate.NewLimiter(rate.Limit(p.RateLimit), max(p.Burst, 1)))
		}
		if p.Retries > 0 {
			retries := p.Retries
			gw = gateway.WithRetry(gw, func() backoff.BackOff {
				return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries)
			})
		}

		platforms = append(platforms, router.Platform{
			Name:     p.Name,
			Type:     p.Type,
			Gateway:  gw,
			Disabled: p.Disabled,
			Aliases:  p.Aliases,
		})
		log.Debug().Str("platform", p.Name).Str("type", p.Type).Uint64("retries", p.Retries).Msg("configured platform")
	}

	r, err := router.New(config, platforms...)
	if err != nil {
		return nil, nil, stack.CloseIfError(err)
	}
	stack.AddWithoutError(r.Close)
	return r, stack, nil
}
