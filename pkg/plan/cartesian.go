package plan

import (
	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/genutil/slicez"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// CartesianProduct combines every record of each child with every record of
// the others, once all of them are complete. The combined records are
// restricted to Fields when it is set.
type CartesianProduct struct {
	Children []Node
	Fields   query.FieldNames
}

var _ Node = &CartesianProduct{}

func (cp *CartesianProduct) Subnodes() []Node { return cp.Children }

func (cp *CartesianProduct) ReplaceSubnodes(subs []Node) (Node, error) {
	return &CartesianProduct{Children: subs, Fields: cp.Fields}, nil
}

func (cp *CartesianProduct) OutputFields() query.FieldNames {
	if !cp.Fields.IsEmpty() {
		return cp.Fields
	}
	fields := query.NewFieldNames()
	for _, c := range cp.Children {
		fields = fields.Union(c.OutputFields())
	}
	return fields
}

func (cp *CartesianProduct) Explain() Explain {
	return explainAll("CartesianProduct("+cp.OutputFields().String()+")", cp.Children)
}

func (cp *CartesianProduct) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return cp
	}
	return &Selection{Child: cp, Filter: filter}
}

func (cp *CartesianProduct) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return cp
	}
	return &Projection{Child: cp, Fields: fields}
}

func (cp *CartesianProduct) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	ids := ctx.children(id)
	local := extra
	streams := make([]<-chan query.Packet, len(ids))
	for i, childID := range ids {
		var pushed query.Filter
		pushed, local = local.Split(cp.Children[i].OutputFields())
		streams[i] = ctx.Start(childID, pushed)
	}

	lists := make([][]query.Record, len(ids))
	for i, stream := range streams {
		records, terminal := collect(ctx, stream)
		if terminal.Kind == query.ErrorPacket {
			if ctx.Err() != nil {
				return
			}
			log.Ctx(ctx).Warn().Err(terminal.Err).Int("child", i).Msg("cartesian product branch failed")
			ctx.Collect(terminal.Err)
			records = nil
		}
		lists[i] = records
	}

	for _, combo := range slicez.Product(lists) {
		merged := query.Record{}
		for _, r := range combo {
			merged = merged.Merge(r)
		}
		if !cp.Fields.IsEmpty() {
			merged = merged.Project(cp.Fields)
		}
		if !local.Match(merged) {
			continue
		}
		if !out.Record(merged) {
			return
		}
	}
	out.Last()
}
