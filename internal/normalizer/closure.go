package normalizer

import (
	"slices"

	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Closure returns the attribute closure of the fields: every field whose
// value is determined, directly or transitively, by the fields under fds.
func Closure(fields query.FieldNames, fds Fds) query.FieldNames {
	closure := fields
	for {
		before := closure.Len()
		for _, fd := range fds {
			if fd.KeyFieldNames().IsSubsetOf(closure) {
				closure = closure.Union(fd.FieldNames())
			}
		}
		if closure.Len() == before {
			return closure
		}
	}
}

// closurePaths computes the closure of the fields over split dependencies,
// and for every derived field the dependencies used to reach it.
func closurePaths(fields query.FieldNames, fds Fds) map[string]Fds {
	paths := map[string]Fds{}
	for _, name := range fields.Names() {
		paths[name] = nil
	}

	known := func() query.FieldNames {
		names := make([]string, 0, len(paths))
		for name := range paths {
			names = append(names, name)
		}
		return query.NewFieldNames(names...)
	}

	for added := true; added; {
		added = false
		for _, fd := range fds {
			if !fd.KeyFieldNames().IsSubsetOf(known()) {
				continue
			}
			field := fd.Field()
			if _, ok := paths[field]; ok {
				continue
			}

			var path Fds
			for _, keyField := range fd.Determinant.Key.Names() {
				for _, step := range paths[keyField] {
					if !slices.Contains(path, step) {
						path = append(path, step)
					}
				}
			}
			paths[field] = append(path, fd)
			added = true
		}
	}
	return paths
}

// MinimalCover returns an equivalent set of split dependencies with no
// extraneous determinant field and no redundant dependency, along with the
// dependencies found redundant.
//
// Determinants are left-reduced first: a field b is dropped from the key of
// [x -> a] when a is in the closure of x - b. Then every dependency whose
// field stays derivable from its key without it is removed.
func MinimalCover(fds Fds) (Fds, Fds) {
	g := fds.Split()
	for i := range g {
		fd := g[i]
		for reduced := true; reduced && fd.Determinant.Key.IsComposite(); {
			reduced = false
			keyFields := fd.Determinant.Key.Fields()
			for j := range keyFields {
				subKey := schema.NewKey(slices.Delete(slices.Clone(keyFields), j, j+1)...)
				if Closure(subKey.FieldNames(), g).Has(fd.Field()) {
					replacement := fd.Clone()
					replacement.Determinant.Key = subKey
					g[i] = replacement
					fd = replacement
					reduced = true
					break
				}
			}
		}
	}

	var removed Fds
	for _, fd := range slices.Clone(g) {
		others := g.Without(fd)
		if Closure(fd.KeyFieldNames(), others).Has(fd.Field()) {
			removed = append(removed, fd)
			g = others
		}
	}
	return g, removed
}

// Reinject merges the methods of the removed dependencies into the cover: a
// removed [x -> y] lends its methods to every dependency of the cover used
// to derive y from x.
func Reinject(cover Fds, removed Fds) {
	for _, fd := range removed {
		paths := closurePaths(fd.KeyFieldNames(), cover)
		for _, step := range paths[fd.Field()] {
			step.AddMethods(fd.Methods())
		}
	}
}
