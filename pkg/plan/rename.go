package plan

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Rename renames the top-level fields of the records of its child. Mapping
// goes from the name the child uses to the name of the unified schema.
type Rename struct {
	Child   Node
	Mapping map[string]string
}

var _ Node = &Rename{}

func (rn *Rename) Subnodes() []Node { return []Node{rn.Child} }

func (rn *Rename) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 1 {
		return nil, wrongSubnodes("Rename", 1, len(subs))
	}
	return &Rename{Child: subs[0], Mapping: rn.Mapping}, nil
}

func (rn *Rename) OutputFields() query.FieldNames {
	return rn.Child.OutputFields().Rename(rn.Mapping)
}

func (rn *Rename) Explain() Explain {
	pairs := make([]string, 0, len(rn.Mapping))
	for _, from := range slices.Sorted(maps.Keys(rn.Mapping)) {
		pairs = append(pairs, fmt.Sprintf("%s->%s", from, rn.Mapping[from]))
	}
	return explainAll("Rename("+strings.Join(pairs, ", ")+")", rn.Subnodes())
}

func (rn *Rename) inverse() map[string]string {
	inverse := make(map[string]string, len(rn.Mapping))
	for from, to := range rn.Mapping {
		inverse[to] = from
	}
	return inverse
}

func (rn *Rename) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return rn
	}
	return &Rename{Child: rn.Child.pushSelection(filter.Rename(rn.inverse())), Mapping: rn.Mapping}
}

func (rn *Rename) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return rn
	}
	return &Rename{Child: rn.Child.pushProjection(fields.Rename(rn.inverse())), Mapping: rn.Mapping}
}

func (rn *Rename) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	transform(ctx, id, extra.Rename(rn.inverse()), out, func(r query.Record) (query.Record, bool) {
		return r.Rename(rn.Mapping), true
	})
}
