package plan

import (
	"github.com/manifoldrouter/manifold/pkg/query"
)

// Dup drops the records equal to one already forwarded.
type Dup struct {
	Child Node
}

var _ Node = &Dup{}

func (d *Dup) Subnodes() []Node { return []Node{d.Child} }

func (d *Dup) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 1 {
		return nil, wrongSubnodes("Dup", 1, len(subs))
	}
	return &Dup{Child: subs[0]}, nil
}

func (d *Dup) OutputFields() query.FieldNames { return d.Child.OutputFields() }

func (d *Dup) Explain() Explain { return explainAll("Dup", d.Subnodes()) }

func (d *Dup) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return d
	}
	return &Dup{Child: d.Child.pushSelection(filter)}
}

func (d *Dup) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return d
	}
	return &Dup{Child: d.Child.pushProjection(fields)}
}

func (d *Dup) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	seen := map[string]struct{}{}
	transform(ctx, id, extra, out, func(r query.Record) (query.Record, bool) {
		key := r.Canonical()
		if _, ok := seen[key]; ok {
			return nil, false
		}
		seen[key] = struct{}{}
		return r, true
	})
}
