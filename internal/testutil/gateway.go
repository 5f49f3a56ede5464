// Package testutil holds stub gateways for the tests of the planner, the
// executor and the router.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// StubGateway serves fixed records. It applies the filter and the fields of
// the queries it receives, as a platform with every capability would, and
// records the queries for later inspection.
type StubGateway struct {
	Tables  []*schema.Table
	Records map[string]query.Records

	// Err fails every query after FailAfter records.
	Err       error
	FailAfter int

	// Delay is waited before every record.
	Delay time.Duration

	// Block makes queries wait for the context to be done.
	Block bool

	mu      sync.Mutex
	queries []query.Query
}

var _ gateway.Gateway = &StubGateway{}

// Metadata returns the tables of the stub.
func (g *StubGateway) Metadata(_ context.Context) ([]*schema.Table, error) {
	return g.Tables, nil
}

// Start streams the records of the object of the query.
func (g *StubGateway) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	g.mu.Lock()
	g.queries = append(g.queries, q)
	g.mu.Unlock()

	if g.Block {
		<-ctx.Done()
		return
	}

	sent := 0
	for _, r := range g.Records[q.ObjectName()] {
		if g.Err != nil && sent >= g.FailAfter {
			break
		}
		if !q.Filter.Match(r) {
			continue
		}
		if g.Delay > 0 {
			select {
			case <-time.After(g.Delay):
			case <-ctx.Done():
				return
			}
		}
		if !gateway.Send(ctx, out, query.NewRecordPacket(r.Project(q.Fields))) {
			return
		}
		sent++
	}

	if g.Err != nil {
		gateway.Send(ctx, out, query.NewErrorPacket(g.Err))
		return
	}
	gateway.Send(ctx, out, query.NewLastPacket())
}

// Queries returns the queries the stub received.
func (g *StubGateway) Queries() []query.Query {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]query.Query, len(g.queries))
	copy(out, g.queries)
	return out
}

// FailingGateway fails the first Failures queries before sending any record,
// then behaves as Gateway.
type FailingGateway struct {
	gateway.Gateway
	Failures int
	Err      error

	mu       sync.Mutex
	attempts int
}

// Start fails or delegates.
func (g *FailingGateway) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	g.mu.Lock()
	g.attempts++
	attempt := g.attempts
	g.mu.Unlock()

	if attempt <= g.Failures {
		gateway.Send(ctx, out, query.NewErrorPacket(g.Err))
		return
	}
	g.Gateway.Start(ctx, q, out)
}

// Attempts returns how many times Start was called.
func (g *FailingGateway) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}
