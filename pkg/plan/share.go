package plan

import (
	"github.com/manifoldrouter/manifold/pkg/query"
)

// ShareSources makes the From nodes sending the same query, up to the fields,
// to the same platform share one fetch through a Demux. Each former From is
// replaced by a Projection of the shared stream on its own fields.
//
// A Demux runs its child once without any run-time filter. Froms that receive
// the keys of a join at run time, and join-only Froms which fetch nothing
// without them, are left alone.
func ShareSources(root Node) (Node, error) {
	filtered := map[*From]struct{}{}
	markFiltered(root, false, filtered)

	counts := map[string]int{}
	fields := map[string]query.FieldNames{}
	_, err := Walk(root, func(n Node) (Node, error) {
		if f, ok := n.(*From); ok {
			if _, skip := filtered[f]; skip {
				return n, nil
			}
			key := sourceKey(f)
			counts[key]++
			fields[key] = fields[key].Union(f.OutputFields())
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	shared := map[string]*Demux{}
	return Walk(root, func(n Node) (Node, error) {
		f, ok := n.(*From)
		if !ok {
			return n, nil
		}
		if _, skip := filtered[f]; skip {
			return n, nil
		}
		key := sourceKey(f)
		if counts[key] < 2 {
			return n, nil
		}

		d, ok := shared[key]
		if !ok {
			source := *f
			if f.Capabilities.Projection && !f.Query.Fields.IsStar() {
				source.Query = f.Query.WithFields(fields[key])
			}
			d = &Demux{Child: &source}
			shared[key] = d
		}
		if d.OutputFields().Equal(f.OutputFields()) {
			return d, nil
		}
		return &Projection{Child: d, Fields: f.OutputFields()}, nil
	})
}

func sourceKey(f *From) string {
	return f.Platform + "\x1f" + f.Query.WithFields(query.Star()).Key()
}

// markFiltered collects the Froms fed a run-time filter by a join above them,
// along with the join-only ones.
func markFiltered(n Node, underJoin bool, into map[*From]struct{}) {
	switch n := n.(type) {
	case *From:
		if underJoin || n.Capabilities.IsOnJoin() {
			into[n] = struct{}{}
		}
	case *LeftJoin:
		markFiltered(n.Left, underJoin, into)
		markFiltered(n.Right, true, into)
	case *SubQuery:
		markFiltered(n.Parent, underJoin, into)
		for _, c := range n.Children {
			markFiltered(c, true, into)
		}
	default:
		for _, sub := range n.Subnodes() {
			markFiltered(sub, underJoin, into)
		}
	}
}
