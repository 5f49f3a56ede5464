package query

import (
	"strings"

	"github.com/manifoldrouter/manifold/pkg/genutil/mapz"
)

// FieldSeparator separates the segments of a dotted field name, such as
// `agent.name` for the `name` field of the record nested under `agent`.
const FieldSeparator = "."

// FieldNames is an immutable set of field names, possibly dotted. The star
// form stands for every field of an object.
type FieldNames struct {
	star  bool
	names mapz.Set[string]
}

// NewFieldNames returns the set of the given names.
func NewFieldNames(names ...string) FieldNames {
	return FieldNames{names: normalize(mapz.NewSet(names...))}
}

// normalize drops every name already covered by one of its prefixes, so
// that `agent` and `agent.name` collapse into `agent`.
func normalize(set mapz.Set[string]) mapz.Set[string] {
	for name := range set {
		prefix := name
		for {
			idx := strings.LastIndex(prefix, FieldSeparator)
			if idx < 0 {
				break
			}
			prefix = prefix[:idx]
			if set.Has(prefix) {
				set.Delete(name)
				break
			}
		}
	}
	return set
}

// Star returns the set of all fields.
func Star() FieldNames {
	return FieldNames{star: true}
}

// IsStar returns true if the set stands for every field.
func (f FieldNames) IsStar() bool { return f.star }

// IsEmpty returns true if the set holds no field and is not the star.
func (f FieldNames) IsEmpty() bool { return !f.star && len(f.names) == 0 }

// Len returns the number of explicit names.
func (f FieldNames) Len() int { return len(f.names) }

// Has returns true if the exact name is in the set, or the set is the star.
func (f FieldNames) Has(name string) bool {
	return f.star || f.names.Has(name)
}

// Covers returns true if the name, or one of its dotted prefixes, is in the
// set: `agent` covers `agent.name`.
func (f FieldNames) Covers(name string) bool {
	if f.star {
		return true
	}
	for {
		if f.names.Has(name) {
			return true
		}
		idx := strings.LastIndex(name, FieldSeparator)
		if idx < 0 {
			return false
		}
		name = name[:idx]
	}
}

// Names returns the explicit names in ascending order.
func (f FieldNames) Names() []string {
	return f.names.Sorted()
}

// Add returns a copy of the set with the names added.
func (f FieldNames) Add(names ...string) FieldNames {
	if f.star {
		return f
	}
	set := mapz.NewSet(names...)
	set.Add(f.names.Sorted()...)
	return FieldNames{names: normalize(set)}
}

// Remove returns a copy of the set without the names. The star is returned
// unchanged.
func (f FieldNames) Remove(names ...string) FieldNames {
	if f.star {
		return f
	}
	return FieldNames{names: f.names.Subtract(mapz.NewSet(names...))}
}

// Union returns the names present in either set.
func (f FieldNames) Union(other FieldNames) FieldNames {
	if f.star || other.star {
		return Star()
	}
	return FieldNames{names: normalize(f.names.Union(other.names))}
}

// Intersect returns the fields selected by both sets, comparing them as
// trees of dotted names: `agent` intersected with `agent.name` is
// `agent.name`. When both sets select sub-fields of a common field but none
// in common, the result keeps that field with an empty sub-selection,
// written `agent.`, so that projecting on the intersection is the same as
// projecting on each set in turn.
func (f FieldNames) Intersect(other FieldNames) FieldNames {
	switch {
	case f.star:
		return other
	case other.star:
		return f
	}

	top1, subs1 := f.SplitSubfields()
	top2, subs2 := other.SplitSubfields()
	selection := func(top FieldNames, subs map[string]FieldNames, head string) (FieldNames, bool) {
		if top.Has(head) {
			return Star(), true
		}
		sub, ok := subs[head]
		return sub, ok
	}

	out := mapz.NewSet[string]()
	for head := range f.TopLevel().names {
		s1, ok1 := selection(top1, subs1, head)
		s2, ok2 := selection(top2, subs2, head)
		if !ok1 || !ok2 {
			continue
		}

		inner := s1.Intersect(s2)
		switch {
		case inner.star:
			out.Add(head)
		case inner.IsEmpty():
			out.Add(head + FieldSeparator)
		default:
			out.Add(inner.Prefixed(head).Names()...)
		}
	}
	return FieldNames{names: normalize(out)}
}

// Subtract returns the names of f absent from other. The star is returned
// unchanged.
func (f FieldNames) Subtract(other FieldNames) FieldNames {
	if f.star {
		return f
	}
	if other.star {
		return NewFieldNames()
	}
	return FieldNames{names: f.names.Subtract(other.names)}
}

// IsSubsetOf returns true if every name of f is covered by other.
func (f FieldNames) IsSubsetOf(other FieldNames) bool {
	if other.star {
		return true
	}
	if f.star {
		return false
	}
	for name := range f.names {
		if !other.Covers(name) {
			return false
		}
	}
	return true
}

// Equal returns true if both sets hold the same names.
func (f FieldNames) Equal(other FieldNames) bool {
	if f.star || other.star {
		return f.star == other.star
	}
	return f.names.Equal(other.names)
}

// SplitSubfields splits dotted names on their first segment. It returns the
// top-level names that were requested whole, and for every first segment the
// set of remaining sub-names.
func (f FieldNames) SplitSubfields() (FieldNames, map[string]FieldNames) {
	if f.star {
		return f, nil
	}

	top := mapz.NewSet[string]()
	subs := map[string]FieldNames{}
	for name := range f.names {
		head, rest, found := strings.Cut(name, FieldSeparator)
		if !found {
			top.Add(name)
			continue
		}
		subs[head] = subs[head].Add(rest)
	}
	return FieldNames{names: top}, subs
}

// TopLevel returns the first segment of every name.
func (f FieldNames) TopLevel() FieldNames {
	if f.star {
		return f
	}
	out := mapz.NewSet[string]()
	for name := range f.names {
		head, _, _ := strings.Cut(name, FieldSeparator)
		out.Add(head)
	}
	return FieldNames{names: out}
}

// WithPrefix returns the names that start with `prefix.`, with that prefix
// stripped. If the prefix itself is in the set, every sub-field is wanted and
// the star is returned.
func (f FieldNames) WithPrefix(prefix string) FieldNames {
	if f.star || f.names.Has(prefix) {
		return Star()
	}
	out := mapz.NewSet[string]()
	for name := range f.names {
		if rest, ok := strings.CutPrefix(name, prefix+FieldSeparator); ok {
			out.Add(rest)
		}
	}
	return FieldNames{names: normalize(out)}
}

// Prefixed returns every name prefixed by `prefix.`.
func (f FieldNames) Prefixed(prefix string) FieldNames {
	if f.star || prefix == "" {
		return f
	}
	out := mapz.NewSet[string]()
	for name := range f.names {
		out.Add(prefix + FieldSeparator + name)
	}
	return FieldNames{names: out}
}

// Rename returns the set with names replaced according to the mapping.
func (f FieldNames) Rename(mapping map[string]string) FieldNames {
	if f.star || len(mapping) == 0 {
		return f
	}
	out := mapz.NewSet[string]()
	for name := range f.names {
		if renamed, ok := mapping[name]; ok {
			out.Add(renamed)
			continue
		}
		out.Add(name)
	}
	return FieldNames{names: normalize(out)}
}

func (f FieldNames) String() string {
	if f.star {
		return "*"
	}
	return strings.Join(f.Names(), ", ")
}
