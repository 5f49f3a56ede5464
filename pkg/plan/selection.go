package plan

import (
	"github.com/manifoldrouter/manifold/pkg/query"
)

// Selection forwards the records of its child that match the filter.
type Selection struct {
	Child  Node
	Filter query.Filter
}

var _ Node = &Selection{}

func (s *Selection) Subnodes() []Node { return []Node{s.Child} }

func (s *Selection) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 1 {
		return nil, wrongSubnodes("Selection", 1, len(subs))
	}
	return &Selection{Child: subs[0], Filter: s.Filter}, nil
}

func (s *Selection) OutputFields() query.FieldNames { return s.Child.OutputFields() }

func (s *Selection) Explain() Explain {
	return explainAll("Selection("+s.Filter.String()+")", s.Subnodes())
}

func (s *Selection) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return s
	}
	return &Selection{Child: s.Child, Filter: s.Filter.Union(filter)}
}

func (s *Selection) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return s
	}
	needed := fields.Union(s.Filter.FieldNames())
	pushed := &Selection{Child: s.Child.pushProjection(needed), Filter: s.Filter}
	if needed.Equal(fields) {
		return pushed
	}
	return &Projection{Child: pushed, Fields: fields}
}

func (s *Selection) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	transform(ctx, id, extra, out, func(r query.Record) (query.Record, bool) {
		return r, s.Filter.Match(r)
	})
}
