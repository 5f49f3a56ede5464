package router

import (
	"context"

	"github.com/manifoldrouter/manifold/internal/resultcache"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// cachedGateways serves the fetches of a plan from the result cache. Cached
// queries are namespaced by platform, as in `ple:node`.
type cachedGateways struct {
	results  *resultcache.Cache
	gateways gateway.Set
}

func (c *cachedGateways) Gateway(platform string) (gateway.Gateway, bool) {
	gw, ok := c.gateways.Gateway(platform)
	if !ok {
		return nil, false
	}
	return &cachedGateway{Gateway: gw, platform: platform, results: c.results}, true
}

type cachedGateway struct {
	gateway.Gateway
	platform string
	results  *resultcache.Cache
}

func (g *cachedGateway) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	if q.Action != query.ActionGet {
		g.Gateway.Start(ctx, q, out)
		return
	}

	cached := q.WithObject(g.platform + query.NamespaceSeparator + q.ObjectName())
	in := g.results.Subscribe(ctx, cached, g.fetch)
	for p := range in {
		if !gateway.Send(ctx, out, p) {
			break
		}
	}
	for range in {
	}
}

func (g *cachedGateway) fetch(ctx context.Context, q query.Query, out chan<- query.Packet) {
	g.Gateway.Start(ctx, q.WithObject(q.ObjectName()), out)
}
