// Package lattice implements a store of values partially ordered by a
// caller-provided relation, indexed so that the tightest values above or
// below a value are found by walking the order instead of scanning.
//
// Values are kept in a Hasse diagram between a virtual Top, greater than
// every value, and a virtual Bottom, lesser than every value.
package lattice

import (
	"cmp"
	"slices"
)

// Mode selects the values a lookup accepts.
type Mode uint8

const (
	// Equal only accepts the searched value itself.
	Equal Mode = iota

	// EqualOrGreater accepts the searched value or, when absent, the tightest
	// values greater than it.
	EqualOrGreater
)

type element[T, D any] struct {
	value T
	data  D
	seq   uint64

	top, bottom bool

	parents  map[*element[T, D]]struct{}
	children map[*element[T, D]]struct{}
}

func newElement[T, D any]() *element[T, D] {
	return &element[T, D]{
		parents:  map[*element[T, D]]struct{}{},
		children: map[*element[T, D]]struct{}{},
	}
}

// Lattice stores values of type T with data of type D. It is not safe for
// concurrent use.
type Lattice[T, D any] struct {
	le     func(a, b T) bool
	top    *element[T, D]
	bottom *element[T, D]
	size   int
	seq    uint64
}

// New returns an empty lattice ordered by le, which must be reflexive,
// antisymmetric and transitive. Two values each lesser than the other are the
// same value.
func New[T, D any](le func(a, b T) bool) *Lattice[T, D] {
	l := &Lattice[T, D]{le: le, top: newElement[T, D](), bottom: newElement[T, D]()}
	l.top.top = true
	l.bottom.bottom = true
	link(l.top, l.bottom)
	return l
}

func link[T, D any](parent, child *element[T, D]) {
	parent.children[child] = struct{}{}
	child.parents[parent] = struct{}{}
}

func unlink[T, D any](parent, child *element[T, D]) {
	delete(parent.children, child)
	delete(child.parents, parent)
}

// Len returns the number of values in the lattice.
func (l *Lattice[T, D]) Len() int { return l.size }

// below returns true if the element is lesser than or equal to the value.
func (l *Lattice[T, D]) below(e *element[T, D], v T) bool {
	switch {
	case e.bottom:
		return true
	case e.top:
		return false
	default:
		return l.le(e.value, v)
	}
}

// above returns true if the element is greater than or equal to the value.
func (l *Lattice[T, D]) above(e *element[T, D], v T) bool {
	switch {
	case e.top:
		return true
	case e.bottom:
		return false
	default:
		return l.le(v, e.value)
	}
}

func (l *Lattice[T, D]) equal(e *element[T, D], v T) bool {
	return !e.top && !e.bottom && l.le(e.value, v) && l.le(v, e.value)
}

// search returns the minimal elements greater than v and the maximal elements
// lesser than v. When v is in the lattice, both hold its element alone and
// found is set.
func (l *Lattice[T, D]) search(v T) (minMax, maxMin []*element[T, D], found *element[T, D]) {
	visited := map[*element[T, D]]struct{}{}
	queue := []*element[T, D]{l.top}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		if _, ok := visited[x]; ok {
			continue
		}
		visited[x] = struct{}{}

		if l.equal(x, v) {
			return []*element[T, D]{x}, []*element[T, D]{x}, x
		}

		minimal := true
		for y := range x.children {
			if l.above(y, v) {
				minimal = false
				queue = append(queue, y)
			}
		}
		if minimal {
			minMax = append(minMax, x)
		}
	}

	clear(visited)
	queue = []*element[T, D]{l.bottom}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		if _, ok := visited[x]; ok {
			continue
		}
		visited[x] = struct{}{}

		maximal := true
		for y := range x.parents {
			if l.below(y, v) {
				maximal = false
				queue = append(queue, y)
			}
		}
		if maximal {
			maxMin = append(maxMin, x)
		}
	}

	return sorted(minMax), sorted(maxMin), nil
}

func sorted[T, D any](elements []*element[T, D]) []*element[T, D] {
	slices.SortFunc(elements, func(a, b *element[T, D]) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return elements
}

func values[T, D any](elements []*element[T, D]) []T {
	out := make([]T, 0, len(elements))
	for _, e := range elements {
		if !e.top && !e.bottom {
			out = append(out, e.value)
		}
	}
	return out
}

// Search returns the minimal values greater than v and the maximal values
// lesser than v, oldest first. When v is in the lattice, both hold v alone.
// An empty side means only Top, or only Bottom, bounds v.
func (l *Lattice[T, D]) Search(v T) (minMax, maxMin []T) {
	mm, mx, _ := l.search(v)
	return values(mm), values(mx)
}

// Get returns the data stored for v.
func (l *Lattice[T, D]) Get(v T) (D, bool) {
	_, _, found := l.search(v)
	if found == nil {
		var zero D
		return zero, false
	}
	return found.data, true
}

// Lookup returns the value and data the mode accepts for v. When several
// values are equally tight, the oldest is returned.
func (l *Lattice[T, D]) Lookup(v T, mode Mode) (T, D, bool) {
	minMax, _, found := l.search(v)
	if found != nil {
		return found.value, found.data, true
	}

	var zero D
	if mode == Equal || len(minMax) == 0 || minMax[0].top {
		return v, zero, false
	}
	return minMax[0].value, minMax[0].data, true
}

// GetBest returns the tightest value greater than or equal to v, and its data.
func (l *Lattice[T, D]) GetBest(v T) (T, D, bool) {
	return l.Lookup(v, EqualOrGreater)
}

// Add inserts v with its data. It returns an AlreadyPresentError if v is
// already in the lattice.
func (l *Lattice[T, D]) Add(v T, data D) error {
	minMax, maxMin, found := l.search(v)
	if found != nil {
		return NewAlreadyPresentErr(v)
	}

	e := newElement[T, D]()
	e.value = v
	e.data = data
	e.seq = l.seq
	l.seq++

	for _, x := range minMax {
		for _, y := range maxMin {
			unlink(x, y)
		}
		link(x, e)
	}
	for _, y := range maxMin {
		link(e, y)
	}
	l.size++
	return nil
}

// Update replaces the data stored for v. It returns false if v is not in the
// lattice.
func (l *Lattice[T, D]) Update(v T, data D) bool {
	_, _, found := l.search(v)
	if found == nil {
		return false
	}
	found.data = data
	return true
}

// Invalidate removes v from the lattice. When recursive, every value
// comparable to v is removed as well, whether v was present or not. It
// returns the removed values.
func (l *Lattice[T, D]) Invalidate(v T, recursive bool) []T {
	minMax, maxMin, found := l.search(v)

	var doomed []*element[T, D]
	switch {
	case found != nil && !recursive:
		doomed = []*element[T, D]{found}
	case found != nil:
		doomed = l.comparable([]*element[T, D]{found}, []*element[T, D]{found})
	case recursive:
		doomed = l.comparable(minMax, maxMin)
	}

	removed := make([]T, 0, len(doomed))
	for _, e := range sorted(doomed) {
		l.remove(e)
		removed = append(removed, e.value)
	}
	return removed
}

// comparable returns the elements of greater and their ancestors, and the
// elements of lesser and their descendants, without Top and Bottom.
func (l *Lattice[T, D]) comparable(greater, lesser []*element[T, D]) []*element[T, D] {
	out := map[*element[T, D]]struct{}{}
	walk := func(from []*element[T, D], next func(*element[T, D]) map[*element[T, D]]struct{}) {
		visited := map[*element[T, D]]struct{}{}
		queue := slices.Clone(from)
		for len(queue) > 0 {
			e := queue[0]
			queue = queue[1:]
			if _, ok := visited[e]; ok || e.top || e.bottom {
				continue
			}
			visited[e] = struct{}{}
			out[e] = struct{}{}
			for n := range next(e) {
				queue = append(queue, n)
			}
		}
	}

	walk(greater, func(e *element[T, D]) map[*element[T, D]]struct{} { return e.parents })
	walk(lesser, func(e *element[T, D]) map[*element[T, D]]struct{} { return e.children })

	elements := make([]*element[T, D], 0, len(out))
	for e := range out {
		elements = append(elements, e)
	}
	return elements
}

// remove unlinks the element, connecting its parents to those of its children
// no other child of theirs already leads to.
func (l *Lattice[T, D]) remove(e *element[T, D]) {
	if len(e.parents) == 0 && len(e.children) == 0 {
		return
	}

	parents := make([]*element[T, D], 0, len(e.parents))
	for p := range e.parents {
		parents = append(parents, p)
	}
	children := make([]*element[T, D], 0, len(e.children))
	for c := range e.children {
		children = append(children, c)
	}

	for _, p := range parents {
		unlink(p, e)
	}
	for _, c := range children {
		unlink(e, c)
	}

	for _, p := range parents {
		for _, c := range children {
			if !l.leadsTo(p, c) {
				link(p, c)
			}
		}
	}
	l.size--
}

// leadsTo returns true if one of the children of p is greater than or equal
// to c.
func (l *Lattice[T, D]) leadsTo(p, c *element[T, D]) bool {
	for other := range p.children {
		if other == c {
			return true
		}
		switch {
		case other.bottom:
		case c.bottom:
			return true
		case !c.top && l.le(c.value, other.value):
			return true
		}
	}
	return false
}

// Values returns every value of the lattice, oldest first.
func (l *Lattice[T, D]) Values() []T {
	seen := map[*element[T, D]]struct{}{}
	var all []*element[T, D]
	queue := []*element[T, D]{l.top}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		for c := range e.children {
			if _, ok := seen[c]; ok || c.bottom {
				continue
			}
			seen[c] = struct{}{}
			all = append(all, c)
			queue = append(queue, c)
		}
	}
	return values(sorted(all))
}
