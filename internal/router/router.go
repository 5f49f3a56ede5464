// Package router forwards queries against the unified schema to the
// platforms that serve them. It keeps the normalized schema of the
// platforms, caches the plans built for recurring queries and shares the
// records fetched from the platforms through the result cache.
package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"resenje.org/singleflight"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/normalizer"
	"github.com/manifoldrouter/manifold/internal/planner"
	"github.com/manifoldrouter/manifold/internal/resultcache"
	"github.com/manifoldrouter/manifold/pkg/cache"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Platform is a platform the router forwards queries to.
type Platform struct {
	Name     string
	Type     string
	Gateway  gateway.Gateway
	Disabled bool

	// Aliases maps, per object, the names the platform gives to fields to
	// their names in the unified schema.
	Aliases map[string]map[string]string
}

type platformState struct {
	Platform
	announced []*schema.Table
	err       error
}

// Router forwards queries to the platforms.
type Router struct {
	id      string
	config  Config
	clock   clock.Clock
	planner *planner.Planner

	plans  cache.Cache[planKey, *cachedPlan]
	builds singleflight.Group[planKey, *cachedPlan]

	// results is nil when the result cache is disabled.
	results    *resultcache.Cache
	collectors []prometheus.Collector

	mu         sync.RWMutex
	platforms  map[string]*platformState
	order      []string
	graph      *normalizer.Graph
	generation uint64

	stop context.CancelFunc
	done chan struct{}
}

// New returns a router over the platforms. The router knows no object until
// Refresh fetched the announcements of the platforms.
func New(config *Config, platforms ...Platform) (*Router, error) {
	if config == nil {
		config = NewConfigWithOptionsAndDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p, err := planner.New(config.Planner)
	if err != nil {
		return nil, err
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	r := &Router{
		id:        uuid.NewString(),
		config:    *config,
		clock:     clk,
		planner:   p,
		platforms: map[string]*platformState{},
	}

	for _, platform := range platforms {
		if platform.Name == "" || platform.Name == localNamespace {
			return nil, fmt.Errorf("invalid platform name `%s`", platform.Name)
		}
		if _, ok := r.platforms[platform.Name]; ok {
			return nil, fmt.Errorf("platform `%s` configured twice", platform.Name)
		}
		if platform.Gateway == nil {
			return nil, fmt.Errorf("platform `%s` has no gateway", platform.Name)
		}
		r.platforms[platform.Name] = &platformState{Platform: platform}
		r.order = append(r.order, platform.Name)
	}

	// Cache names are global, so each router gets its own.
	r.plans, err = cache.NewStandardCacheWithMetrics[planKey, *cachedPlan]("plans/"+r.id, &r.config.PlanCache)
	if err != nil {
		return nil, err
	}

	if !config.DisableResultCache {
		r.results = resultcache.New(config.PrometheusSubsystem,
			resultcache.WithClock(clk),
			resultcache.WithTTL(config.ResultCacheTTL),
		)
		if config.PrometheusSubsystem != "" {
			for _, c := range r.results.Collectors() {
				if err := prometheus.Register(c); err != nil {
					r.unregister()
					r.plans.Close()
					return nil, fmt.Errorf("error registering result cache metrics: %w", err)
				}
				r.collectors = append(r.collectors, c)
			}
		}

		if config.ResultCacheTTL > 0 && config.ResultCacheExpiryInterval > 0 {
			ctx, cancel := context.WithCancel(context.Background())
			r.stop = cancel
			r.done = make(chan struct{})
			go r.expireLoop(ctx, r.clock.Ticker(config.ResultCacheExpiryInterval))
		}
	}

	log.Info().
		Str("router", r.id).
		Strs("platforms", r.order).
		Object("planCache", &r.config.PlanCache).
		Bool("resultCache", r.results != nil).
		Msg("router created")
	return r, nil
}

func (r *Router) expireLoop(ctx context.Context, ticker *clock.Ticker) {
	defer close(r.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if expired := r.results.Expire(); expired > 0 {
				log.Debug().Int("expired", expired).Msg("expired result cache entries")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) unregister() {
	for _, c := range r.collectors {
		prometheus.Unregister(c)
	}
	r.collectors = nil
}

// Close stops the background work of the router and releases its caches. It
// does not close the gateways.
func (r *Router) Close() {
	if r.stop != nil {
		r.stop()
		<-r.done
	}
	r.unregister()
	r.plans.Close()
}

// Refresh fetches the announcements of every platform and normalizes them
// into the schema queries are planned against. A platform whose
// announcement cannot be fetched keeps the tables it announced last, if any.
func (r *Router) Refresh(ctx context.Context) error {
	r.mu.RLock()
	states := make([]*platformState, 0, len(r.order))
	for _, name := range r.order {
		states = append(states, r.platforms[name])
	}
	r.mu.RUnlock()

	announced := make([][]*schema.Table, len(states))
	failures := make([]error, len(states))

	g, gctx := errgroup.WithContext(ctx)
	for i, state := range states {
		g.Go(func() error {
			mctx, cancel := context.WithTimeout(log.WithPlatform(gctx, state.Name), r.config.MetadataTimeout)
			defer cancel()

			tables, err := state.Gateway.Metadata(mctx)
			if err != nil {
				failures[i] = fmt.Errorf("platform `%s`: %w", state.Name, err)
				return nil
			}
			// Tables are planned against the platform name the router knows.
			owned := make([]*schema.Table, len(tables))
			for j, t := range tables {
				owned[j] = t.Clone()
				owned[j].Namespace = state.Name
				if err := owned[j].ApplyAliases(state.Aliases[t.Name]); err != nil {
					failures[i] = fmt.Errorf("platform `%s`: %w", state.Name, err)
					return nil
				}
			}
			announced[i] = owned
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*schema.Table
	for i, state := range states {
		if failures[i] != nil {
			log.Ctx(ctx).Warn().Err(failures[i]).Str("platform", state.Name).Msg("could not fetch announcement")
			state.err = failures[i]
		} else {
			state.announced = announced[i]
			state.err = nil
		}
		for _, t := range state.announced {
			all = append(all, t.Clone())
		}
	}

	if len(all) == 0 && len(states) > 0 {
		return errors.Join(failures...)
	}

	graph, err := normalizer.Normalize(all)
	if err != nil {
		return err
	}
	r.graph = graph
	r.generation++

	log.Ctx(ctx).Info().
		Uint64("generation", r.generation).
		Int("tables", len(graph.TableNames())).
		Msg("refreshed schema")
	return nil
}

// EnablePlatform makes the router forward queries to the platform again.
func (r *Router) EnablePlatform(name string) error {
	return r.setDisabled(name, false)
}

// DisablePlatform stops the router from forwarding queries to the platform.
// Its announcement is kept.
func (r *Router) DisablePlatform(name string) error {
	return r.setDisabled(name, true)
}

func (r *Router) setDisabled(name string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.platforms[name]
	if !ok {
		return NewUnknownPlatformErr(name)
	}
	if state.Disabled != disabled {
		state.Disabled = disabled
		r.generation++
	}
	return nil
}

// Platforms returns the names of the configured platforms, in configuration
// order.
func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Metadata returns the tables of the normalized schema.
func (r *Router) Metadata() ([]*schema.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.graph == nil {
		return nil, ErrNotReady
	}
	tables := r.graph.Tables()
	out := make([]*schema.Table, len(tables))
	for i, t := range tables {
		out[i] = t.Clone()
	}
	return out, nil
}

// snapshot is the state a query is planned and run against.
type snapshot struct {
	graph      *normalizer.Graph
	generation uint64
	configured []string
	enabled    []string
	gateways   gateway.Set
	types      map[string]string
}

func (r *Router) snapshot() (snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.graph == nil {
		return snapshot{}, ErrNotReady
	}
	s := snapshot{
		graph:      r.graph,
		generation: r.generation,
		configured: r.order,
		gateways:   gateway.Set{},
		types:      map[string]string{},
	}
	for _, name := range r.order {
		state := r.platforms[name]
		if state.Disabled {
			continue
		}
		s.enabled = append(s.enabled, name)
		s.gateways[name] = state.Gateway
		s.types[name] = state.Type
	}
	return s, nil
}
