package plan

import (
	"github.com/manifoldrouter/manifold/pkg/query"
)

// TypedOptimizerFunc transforms a node of a specific type T into a
// potentially optimized node. It returns the optimized node, whether any
// optimization was performed, and an error if the optimization failed.
type TypedOptimizerFunc[T Node] func(n T) (Node, bool, error)

// OptimizerFunc is a type-erased TypedOptimizerFunc, so that rules for
// different node types can be stored in one list.
type OptimizerFunc func(n Node) (Node, bool, error)

// WrapOptimizer wraps a typed optimizer into a type-erased OptimizerFunc.
func WrapOptimizer[T Node](fn TypedOptimizerFunc[T]) OptimizerFunc {
	return func(n Node) (Node, bool, error) {
		if v, ok := n.(T); ok {
			return fn(v)
		}
		return n, false, nil
	}
}

// StaticOptimizations are the rewrites applied to every plan once selections
// and projections are pushed down.
var StaticOptimizations = []OptimizerFunc{
	WrapOptimizer(CollapseSelections),
	WrapOptimizer(CollapseProjections),
	WrapOptimizer(RemoveEmptyUnions),
	WrapOptimizer(FlattenUnion),
	WrapOptimizer(CollapseSingletonUnion),
}

// Optimize pushes the filter and the fields of the query down the tree, as
// far as the capabilities of each platform allow, then applies the static
// optimizations and shares the sources fetched more than once.
func Optimize(root Node, filter query.Filter, fields query.FieldNames) (Node, error) {
	pushed := root.pushSelection(filter).pushProjection(fields)

	optimized, _, err := ApplyOptimizations(pushed, StaticOptimizations)
	if err != nil {
		return nil, err
	}
	return ShareSources(optimized)
}

// ApplyOptimizations recursively applies a list of optimizer functions to a
// plan tree, bottom-up: children are optimized first, then the node itself.
// When a rule transforms a node, the new subtree is optimized again.
//
// It returns the optimized node, whether anything changed, and the first
// error a rule returned.
func ApplyOptimizations(n Node, fns []OptimizerFunc) (Node, bool, error) {
	var err error
	changed := false
	if origSubs := n.Subnodes(); len(origSubs) != 0 {
		// Copy so the original node is left untouched.
		subs := make([]Node, len(origSubs))
		copy(subs, origSubs)

		subChanged := false
		for i, sub := range subs {
			optimized, ok, err := ApplyOptimizations(sub, fns)
			if err != nil {
				return nil, false, err
			}
			if ok {
				subs[i] = optimized
				subChanged = true
			}
		}
		if subChanged {
			changed = true
			n, err = n.ReplaceSubnodes(subs)
			if err != nil {
				return nil, false, err
			}
		}
	}

	for _, fn := range fns {
		transformed, fnChanged, err := fn(n)
		if err != nil {
			return nil, false, err
		}
		if fnChanged {
			optimized, _, err := ApplyOptimizations(transformed, fns)
			if err != nil {
				return nil, false, err
			}
			return optimized, true, nil
		}
	}
	return n, changed, nil
}

// CollapseSelections merges a Selection directly above another one.
func CollapseSelections(s *Selection) (Node, bool, error) {
	inner, ok := s.Child.(*Selection)
	if !ok {
		return s, false, nil
	}
	return &Selection{Child: inner.Child, Filter: inner.Filter.Union(s.Filter)}, true, nil
}

// CollapseProjections merges a Projection directly above another one.
func CollapseProjections(p *Projection) (Node, bool, error) {
	inner, ok := p.Child.(*Projection)
	if !ok {
		return p, false, nil
	}
	return &Projection{Child: inner.Child, Fields: inner.Fields.Intersect(p.Fields)}, true, nil
}

// RemoveEmptyUnions drops the children of a Union that are empty Unions.
func RemoveEmptyUnions(u *Union) (Node, bool, error) {
	children := make([]Node, 0, len(u.Children))
	for _, c := range u.Children {
		if cu, ok := c.(*Union); ok && len(cu.Children) == 0 {
			continue
		}
		children = append(children, c)
	}
	if len(children) == len(u.Children) {
		return u, false, nil
	}
	return &Union{Children: children, Key: u.Key}, true, nil
}

// FlattenUnion lifts the children of a nested Union deduplicating on the same
// key into its parent.
func FlattenUnion(u *Union) (Node, bool, error) {
	changed := false
	children := make([]Node, 0, len(u.Children))
	for _, c := range u.Children {
		if cu, ok := c.(*Union); ok && sameKey(cu.Key, u.Key) {
			children = append(children, cu.Children...)
			changed = true
			continue
		}
		children = append(children, c)
	}
	if !changed {
		return u, false, nil
	}
	return &Union{Children: children, Key: u.Key}, true, nil
}

// CollapseSingletonUnion replaces a Union of a single child by the child when
// there is nothing to deduplicate.
func CollapseSingletonUnion(u *Union) (Node, bool, error) {
	if len(u.Children) != 1 || len(u.Key) > 0 {
		return u, false, nil
	}
	return u.Children[0], true, nil
}

func sameKey(a, b []string) bool {
	return query.NewFieldNames(a...).Equal(query.NewFieldNames(b...))
}
