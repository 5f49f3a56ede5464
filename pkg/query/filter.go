package query

import (
	"slices"
	"strings"
)

// Filter is a conjunction of predicates. It is immutable; every operation
// returns a new Filter.
type Filter struct {
	preds []Predicate
}

// NewFilter returns the conjunction of the predicates, without duplicates.
func NewFilter(preds ...Predicate) Filter {
	return Filter{}.And(preds...)
}

// Predicates returns a copy of the predicates in insertion order.
func (f Filter) Predicates() []Predicate {
	return slices.Clone(f.preds)
}

// IsEmpty returns true if the filter has no predicate, and thus matches
// every record.
func (f Filter) IsEmpty() bool { return len(f.preds) == 0 }

// Len returns the number of predicates.
func (f Filter) Len() int { return len(f.preds) }

// Has returns true if the filter holds the predicate.
func (f Filter) Has(p Predicate) bool {
	canonical := p.canonical()
	for _, existing := range f.preds {
		if existing.canonical() == canonical {
			return true
		}
	}
	return false
}

// And returns the filter with the predicates added.
func (f Filter) And(preds ...Predicate) Filter {
	out := Filter{preds: slices.Clone(f.preds)}
	for _, p := range preds {
		if out.Has(p) {
			continue
		}
		out.preds = append(out.preds, p)
	}
	return out
}

// Union returns the conjunction of both filters.
func (f Filter) Union(other Filter) Filter {
	return f.And(other.preds...)
}

// FieldNames returns every field read by the filter.
func (f Filter) FieldNames() FieldNames {
	out := NewFieldNames()
	for _, p := range f.preds {
		out = out.Add(p.Key...)
	}
	return out
}

// IsWithin returns true if every field read by the filter is in the set.
func (f Filter) IsWithin(fields FieldNames) bool {
	return f.FieldNames().IsSubsetOf(fields)
}

// FilterByFields returns the predicates whose fields all lie within the set.
func (f Filter) FilterByFields(fields FieldNames) Filter {
	within, _ := f.Split(fields)
	return within
}

// Split partitions the filter into the predicates whose fields all lie
// within the set and the rest.
func (f Filter) Split(fields FieldNames) (Filter, Filter) {
	var within, rest Filter
	for _, p := range f.preds {
		if p.FieldNames().IsSubsetOf(fields) {
			within.preds = append(within.preds, p)
			continue
		}
		rest.preds = append(rest.preds, p)
	}
	return within, rest
}

// Get returns the predicates on the given field.
func (f Filter) Get(field string) []Predicate {
	var out []Predicate
	for _, p := range f.preds {
		if slices.Contains(p.Key, field) {
			out = append(out, p)
		}
	}
	return out
}

// Without returns the filter minus the predicates of other.
func (f Filter) Without(other Filter) Filter {
	var out Filter
	for _, p := range f.preds {
		if !other.Has(p) {
			out.preds = append(out.preds, p)
		}
	}
	return out
}

// SubsetOf returns true if every predicate of f is in other.
func (f Filter) SubsetOf(other Filter) bool {
	for _, p := range f.preds {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Equal returns true if both filters hold the same predicates.
func (f Filter) Equal(other Filter) bool {
	return f.SubsetOf(other) && other.SubsetOf(f)
}

// Match returns true if the record satisfies every predicate.
func (f Filter) Match(r Record) bool {
	for _, p := range f.preds {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

// Rename returns the filter with predicate keys renamed.
func (f Filter) Rename(mapping map[string]string) Filter {
	out := Filter{preds: make([]Predicate, len(f.preds))}
	for i, p := range f.preds {
		out.preds[i] = p.Rename(mapping)
	}
	return out
}

// StripPrefix returns the predicates on fields under `prefix.`, rewritten
// relative to that prefix.
func (f Filter) StripPrefix(prefix string) Filter {
	var out Filter
	for _, p := range f.preds {
		keys := make([]string, 0, len(p.Key))
		for _, k := range p.Key {
			if rest, ok := strings.CutPrefix(k, prefix+FieldSeparator); ok {
				keys = append(keys, rest)
			}
		}
		if len(keys) == len(p.Key) {
			out.preds = append(out.preds, Predicate{Key: keys, Op: p.Op, Value: p.Value})
		}
	}
	return out
}

func (f Filter) canonical() string {
	parts := make([]string, len(f.preds))
	for i, p := range f.preds {
		parts[i] = p.canonical()
	}
	slices.Sort(parts)
	return strings.Join(parts, " AND ")
}

func (f Filter) String() string {
	parts := make([]string, len(f.preds))
	for i, p := range f.preds {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}
