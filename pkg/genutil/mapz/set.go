package mapz

import (
	"cmp"
	"slices"
)

// Set is a set of comparable values.
type Set[T cmp.Ordered] map[T]struct{}

// NewSet returns a set holding the given values.
func NewSet[T cmp.Ordered](values ...T) Set[T] {
	s := make(Set[T], len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add adds the values to the set.
func (s Set[T]) Add(values ...T) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

// Has returns true if the value is in the set.
func (s Set[T]) Has(value T) bool {
	_, ok := s[value]
	return ok
}

// Delete removes the value from the set.
func (s Set[T]) Delete(value T) {
	delete(s, value)
}

// Union returns a new set with the values of both sets.
func (s Set[T]) Union(other Set[T]) Set[T] {
	out := make(Set[T], len(s)+len(other))
	for v := range s {
		out[v] = struct{}{}
	}
	for v := range other {
		out[v] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the values present in both sets.
func (s Set[T]) Intersect(other Set[T]) Set[T] {
	out := Set[T]{}
	for v := range s {
		if other.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// Subtract returns a new set with the values of s missing from other.
func (s Set[T]) Subtract(other Set[T]) Set[T] {
	out := Set[T]{}
	for v := range s {
		if !other.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// IsSubsetOf returns true if every value of s is in other.
func (s Set[T]) IsSubsetOf(other Set[T]) bool {
	for v := range s {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

// Equal returns true if both sets hold the same values.
func (s Set[T]) Equal(other Set[T]) bool {
	return len(s) == len(other) && s.IsSubsetOf(other)
}

// Sorted returns the values in ascending order.
func (s Set[T]) Sorted() []T {
	out := make([]T, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
