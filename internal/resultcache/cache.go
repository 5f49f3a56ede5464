// Package resultcache shares the results of queries between the requests
// that need them. Entries are indexed in a lattice ordered by query
// subsumption, so that a query can be answered from the records of any
// cached query returning a superset of its records, while they are still
// arriving or once complete. At most one fetch per distinct query is in
// flight; its records are multicast to every consumer.
package resultcache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/lattice"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/routererrors"
)

const prometheusNamespace = "manifold"

// Fetch runs a query, sending its records then exactly one terminal packet to
// out. It must return once ctx is done.
type Fetch func(ctx context.Context, q query.Query, out chan<- query.Packet)

// Cache indexes the entries of queries by subsumption. A single mutex guards
// the lattice; records are multicast to consumers without holding it.
type Cache struct {
	mu      sync.Mutex
	lattice *lattice.Lattice[query.Query, *Entry]

	clock clock.Clock
	ttl   time.Duration

	lookups *prometheus.CounterVec
	fetches prometheus.Counter
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the clock entries are timed with.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

// WithTTL sets how long completed entries answer queries. Completed entries
// never expire when the TTL is not positive.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// New returns an empty cache.
func New(prometheusSubsystem string, opts ...Option) *Cache {
	c := &Cache{
		lattice: lattice.New[query.Query, *Entry](query.Query.IsSubsumedBy),
		clock:   clock.New(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "lookups_total",
			Help:      "result cache lookups by outcome",
		}, []string{"result"}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "fetches_total",
			Help:      "fetches started on a cache miss",
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collectors returns the prometheus collectors of the cache.
func (c *Cache) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.lookups, c.fetches}
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lattice.Len()
}

// Get returns the entry of the query, or nil if it is not cached or expired.
func (c *Cache) Get(q query.Query) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lattice.Get(q)
	if !ok || e.expired(c.clock.Now(), c.ttl) {
		return nil
	}
	return e
}

// GetBest returns the tightest cached query whose records hold those of q,
// with its entry.
func (c *Cache) GetBest(q query.Query) (query.Query, *Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getBest(q)
}

func (c *Cache) getBest(q query.Query) (query.Query, *Entry, bool) {
	best, e, ok := c.lattice.GetBest(q)
	if !ok {
		return q, nil, false
	}
	if !q.IsSubsumedBy(best) {
		panic(routererrors.MustBugf("cache lattice returned `%s` for `%s`", best, q))
	}
	if e.expired(c.clock.Now(), c.ttl) {
		// Fresh entries may still be reachable around the expired one.
		c.lattice.Invalidate(best, false)
		return c.getBest(q)
	}
	return best, e, true
}

// Add stores the entry of the query, replacing any previous one.
func (c *Cache) Add(q query.Query, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lattice.Update(q, e) {
		c.add(q, e)
	}
}

func (c *Cache) add(q query.Query, e *Entry) {
	if err := c.lattice.Add(q, e); err != nil {
		panic(routererrors.MustBugf("adding `%s` to the cache lattice: %v", q, err))
	}
}

// Invalidate removes the entry of the query. When recursive, the entries of
// every query comparable to it are removed as well.
func (c *Cache) Invalidate(q query.Query, recursive bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.lattice.Invalidate(q, recursive)
	for _, r := range removed {
		log.Debug().Object("query", r).Msg("invalidated cache entry")
	}
	return len(removed)
}

// Expire removes the completed entries older than the TTL.
func (c *Cache) Expire() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	expired := 0
	for _, q := range c.lattice.Values() {
		e, ok := c.lattice.Get(q)
		if ok && e.expired(now, c.ttl) {
			expired += len(c.lattice.Invalidate(q, false))
		}
	}
	return expired
}

// Subscribe returns the records of the query. They come from the entry of the
// query or of the tightest query holding them, narrowed to the filter and
// fields of q, whether that entry is complete or still being fetched. When
// no entry serves q, a new one is added and fetch is started for it.
//
// The returned channel receives exactly one terminal packet, then is closed.
func (c *Cache) Subscribe(ctx context.Context, q query.Query, fetch Fetch) <-chan query.Packet {
	out := make(chan query.Packet)

	c.mu.Lock()
	best, e, ok := c.getBest(q)
	if ok && e.attach() {
		c.mu.Unlock()

		result := "exact"
		filter, fields := query.Filter{}, query.Star()
		if !best.Equal(q) {
			result = "subsumed"
			filter, fields = q.Filter, q.Fields
		}
		c.lookups.WithLabelValues(result).Inc()
		log.Ctx(ctx).Trace().Object("query", q).Object("cached", best).Str("result", result).Msg("cache hit")

		go e.follow(ctx, filter, fields, out)
		return out
	}

	if ok {
		// The entry was abandoned by its consumers and is about to go.
		c.lattice.Invalidate(best, false)
	}
	e = newEntry(c.clock.Now())
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.attach()
	c.add(q, e)
	c.mu.Unlock()

	c.lookups.WithLabelValues("miss").Inc()
	c.fetches.Inc()

	go c.run(fetchCtx, cancel, q, e, fetch)
	go e.follow(ctx, query.Filter{}, query.Star(), out)
	return out
}

// run feeds the entry with the packets of the fetch. The entry is removed
// from the cache if the fetch fails.
func (c *Cache) run(ctx context.Context, cancel context.CancelFunc, q query.Query, e *Entry, fetch Fetch) {
	defer cancel()

	packets := make(chan query.Packet)
	go fetch(ctx, q, packets)

	for {
		select {
		case p := <-packets:
			if p.Kind == query.ErrorPacket {
				c.drop(q, e)
			}
			e.publish(p, c.clock.Now())
			if p.IsTerminal() {
				return
			}

		case <-ctx.Done():
			c.drop(q, e)
			e.publish(query.NewErrorPacket(ctx.Err()), c.clock.Now())
			return
		}
	}
}

// drop removes the entry of the query, unless it was replaced already.
func (c *Cache) drop(q query.Query, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.lattice.Get(q); ok && current == e {
		c.lattice.Invalidate(q, false)
	}
}
