package plan

import (
	"context"
	"iter"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/routererrors"
)

// Gateways resolves the gateway of a platform. A platform without a gateway
// produces no records.
type Gateways interface {
	Gateway(platform string) (gateway.Gateway, bool)
}

// Context represents a single execution of a plan.
// It is both a standard context.Context and the execution-time handles: the
// gateways the From nodes talk to and the state of every node.
//
// Context uses the Executor as a strategy for running each node.
type Context struct {
	context.Context
	Executor Executor
	Gateways Gateways

	plan  *Plan
	group *errgroup.Group

	mu     sync.Mutex
	states []NodeState
	errs   error
	demux  map[NodeID]*demuxState
}

// NewContext returns the context of one execution of the plan.
func NewContext(ctx context.Context, p *Plan, gateways Gateways) *Context {
	states := make([]NodeState, p.Len())
	return &Context{
		Context:  ctx,
		Executor: LocalExecutor{},
		Gateways: gateways,
		plan:     p,
		group:    &errgroup.Group{},
		states:   states,
		demux:    map[NodeID]*demuxState{},
	}
}

// Start starts the node and returns its record stream. The stream ends with
// one terminal packet, unless the execution is cancelled. A node started
// after cancellation never runs: its stream is closed right away.
func (ctx *Context) Start(id NodeID, extra query.Filter) <-chan query.Packet {
	if ctx.Executor == nil {
		out := make(chan query.Packet, 1)
		out <- query.NewErrorPacket(routererrors.MustBugf("no executor has been set"))
		close(out)
		return out
	}
	return ctx.Executor.Start(ctx, id, extra)
}

// State returns the state the node reached.
func (ctx *Context) State(id NodeID) NodeState {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.states[id]
}

func (ctx *Context) setState(id NodeID, state NodeState) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	current := ctx.states[id]
	if current == StateDone || current >= state {
		return
	}
	ctx.states[id] = state
}

// Collect records a non-fatal error, returned next to the records.
func (ctx *Context) Collect(err error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.errs = multierr.Append(ctx.errs, err)
}

// Errors returns the non-fatal errors collected so far.
func (ctx *Context) Errors() []error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return multierr.Errors(ctx.errs)
}

// Go runs fn as part of the execution. Execute waits for every such
// function before returning.
func (ctx *Context) Go(fn func()) {
	ctx.group.Go(func() error {
		fn()
		return nil
	})
}

func (ctx *Context) children(id NodeID) []NodeID {
	return ctx.plan.Children(id)
}

// Executor chooses how a node of the plan runs.
type Executor interface {
	Start(ctx *Context, id NodeID, extra query.Filter) <-chan query.Packet
}

// DefaultBufferSize is the capacity of the channel between two nodes.
const DefaultBufferSize = 16

// LocalExecutor runs every started node in its own goroutine.
type LocalExecutor struct {
	BufferSize int
}

func (le LocalExecutor) Start(ctx *Context, id NodeID, extra query.Filter) <-chan query.Packet {
	size := le.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	out := make(chan query.Packet, size)

	if ctx.Err() != nil {
		close(out)
		return out
	}

	ctx.setState(id, StateStarted)
	node := ctx.plan.Node(id)
	ctx.Go(func() {
		defer close(out)
		node.run(ctx, id, extra, &emitter{ctx: ctx, id: id, out: out})
	})
	return out
}

// emitter is the sending side of the stream of a node.
type emitter struct {
	ctx  *Context
	id   NodeID
	out  chan<- query.Packet
	done bool
}

// Record sends a record. It returns false once the execution is cancelled.
func (e *emitter) Record(r query.Record) bool {
	if e.done {
		return false
	}
	e.ctx.setState(e.id, StateStreaming)
	return e.send(query.NewRecordPacket(r))
}

// Last ends the stream.
func (e *emitter) Last() {
	e.terminate(query.NewLastPacket(), StateDone)
}

// Fail ends the stream with an error.
func (e *emitter) Fail(err error) {
	e.terminate(query.NewErrorPacket(err), StateError)
}

// Forward sends a terminal packet received from a child.
func (e *emitter) Forward(p query.Packet) {
	if p.Kind == query.ErrorPacket {
		e.Fail(p.Err)
		return
	}
	e.Last()
}

func (e *emitter) terminate(p query.Packet, state NodeState) {
	if e.done {
		return
	}
	e.done = true
	e.ctx.setState(e.id, state)
	e.send(p)
}

func (e *emitter) send(p query.Packet) bool {
	select {
	case e.out <- p:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// packets iterates over the stream of a child up to and including its
// terminal packet. A stream closed without one yields an error packet.
func packets(ctx *Context, ch <-chan query.Packet) iter.Seq[query.Packet] {
	return func(yield func(query.Packet) bool) {
		for p := range ch {
			if !yield(p) || p.IsTerminal() {
				return
			}
		}

		err := ctx.Err()
		if err == nil {
			err = errStreamClosed
		}
		yield(query.NewErrorPacket(err))
	}
}

// collect buffers the records of a child stream and returns its terminal
// packet.
func collect(ctx *Context, ch <-chan query.Packet) (query.Records, query.Packet) {
	var records query.Records
	for p := range packets(ctx, ch) {
		if p.IsTerminal() {
			return records, p
		}
		records = append(records, p.Record)
	}
	return records, query.NewErrorPacket(errStreamClosed)
}
