package gateway

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// WithRateLimit returns a gateway starting the queries of the platform no
// faster than the limiter allows. A query whose context is done while it
// waits fails with a gateway error.
func WithRateLimit(gw Gateway, platform string, limiter *rate.Limiter) Gateway {
	return &rateLimited{Gateway: gw, platform: platform, limiter: limiter}
}

type rateLimited struct {
	Gateway
	platform string
	limiter  *rate.Limiter
}

func (r *rateLimited) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	if err := r.limiter.Wait(ctx); err != nil {
		Send(ctx, out, query.NewErrorPacket(NewError(r.platform, q, err)))
		return
	}
	r.Gateway.Start(ctx, q, out)
}
