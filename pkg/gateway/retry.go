package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// WithRetry returns a gateway retrying a query that failed before sending
// any record. newBackOff is called once per query; nil uses an exponential
// back-off limited to three retries.
func WithRetry(gw Gateway, newBackOff func() backoff.BackOff) Gateway {
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		}
	}
	return &retrying{Gateway: gw, newBackOff: newBackOff}
}

type retrying struct {
	Gateway
	newBackOff func() backoff.BackOff
}

func (r *retrying) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	b := r.newBackOff()
	b.Reset()

	for attempt := 1; ; attempt++ {
		failure, ok := r.attempt(ctx, q, out)
		if !ok {
			return
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			Send(ctx, out, failure)
			return
		}

		log.Ctx(ctx).Debug().
			Err(failure.Err).
			Int("attempt", attempt).
			Dur("retryIn", next).
			Msg("retrying query")

		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

// attempt runs the query once, forwarding its packets. It returns the error
// packet and true when the query failed before any record was forwarded, in
// which case the error was not forwarded.
func (r *retrying) attempt(ctx context.Context, q query.Query, out chan<- query.Packet) (query.Packet, bool) {
	inner := make(chan query.Packet)
	go func() {
		defer close(inner)
		r.Gateway.Start(ctx, q, inner)
	}()
	defer func() {
		for range inner {
		}
	}()

	forwarded := false
	for p := range inner {
		if p.Kind == query.ErrorPacket && !forwarded {
			return p, true
		}
		if !Send(ctx, out, p) || p.IsTerminal() {
			return query.Packet{}, false
		}
		forwarded = true
	}
	return query.Packet{}, false
}
