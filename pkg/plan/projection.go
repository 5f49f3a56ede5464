package plan

import (
	"github.com/manifoldrouter/manifold/pkg/query"
)

// Projection restricts the records of its child to the fields. Dotted names
// reach into nested records.
type Projection struct {
	Child  Node
	Fields query.FieldNames
}

var _ Node = &Projection{}

func (p *Projection) Subnodes() []Node { return []Node{p.Child} }

func (p *Projection) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 1 {
		return nil, wrongSubnodes("Projection", 1, len(subs))
	}
	return &Projection{Child: subs[0], Fields: p.Fields}, nil
}

func (p *Projection) OutputFields() query.FieldNames { return p.Fields }

func (p *Projection) Explain() Explain {
	return explainAll("Projection("+p.Fields.String()+")", p.Subnodes())
}

func (p *Projection) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return p
	}
	return &Projection{Child: p.Child.pushSelection(filter), Fields: p.Fields}
}

func (p *Projection) pushProjection(fields query.FieldNames) Node {
	return &Projection{Child: p.Child, Fields: p.Fields.Intersect(fields)}
}

func (p *Projection) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	transform(ctx, id, extra, out, func(r query.Record) (query.Record, bool) {
		return r.Project(p.Fields), true
	})
}
