package plan

import (
	"sync"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Demux runs its child once and streams every record to each of its
// consumers. The same *Demux appears under several parents; a consumer's
// run-time filter is applied to its own copy of the stream.
type Demux struct {
	Child Node
}

var _ Node = &Demux{}

func (d *Demux) Subnodes() []Node { return []Node{d.Child} }

// ReplaceSubnodes updates the child in place, so that every parent sharing
// the Demux sees the new child.
func (d *Demux) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 1 {
		return nil, wrongSubnodes("Demux", 1, len(subs))
	}
	d.Child = subs[0]
	return d, nil
}

func (d *Demux) OutputFields() query.FieldNames { return d.Child.OutputFields() }

func (d *Demux) Explain() Explain { return explainAll("Demux", d.Subnodes()) }

func (d *Demux) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return d
	}
	return &Selection{Child: d, Filter: filter}
}

func (d *Demux) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return d
	}
	return &Projection{Child: d, Fields: fields}
}

type demuxState struct {
	mu       sync.Mutex
	records  query.Records
	terminal *query.Packet
	updated  chan struct{}
}

func (ctx *Context) demuxState(id NodeID) (*demuxState, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if st, ok := ctx.demux[id]; ok {
		return st, false
	}
	st := &demuxState{updated: make(chan struct{})}
	ctx.demux[id] = st
	return st, true
}

func (st *demuxState) publish(p query.Packet) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p.IsTerminal() {
		st.terminal = &p
	} else {
		st.records = append(st.records, p.Record)
	}
	close(st.updated)
	st.updated = make(chan struct{})
}

func (st *demuxState) since(index int) (query.Records, *query.Packet, <-chan struct{}) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.records[index:], st.terminal, st.updated
}

func (d *Demux) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	st, first := ctx.demuxState(id)
	if first {
		stream := ctx.Start(ctx.children(id)[0], query.Filter{})
		ctx.Go(func() {
			for p := range packets(ctx, stream) {
				st.publish(p)
			}
		})
	}

	index := 0
	for {
		records, terminal, updated := st.since(index)
		for _, r := range records {
			index++
			if !extra.Match(r) {
				continue
			}
			if !out.Record(r.Clone()) {
				return
			}
		}
		if terminal != nil {
			out.Forward(*terminal)
			return
		}

		select {
		case <-updated:
		case <-ctx.Done():
			return
		}
	}
}
