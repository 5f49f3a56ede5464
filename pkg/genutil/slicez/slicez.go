package slicez

// Filter returns a new slice with the elements for which pred is true.
func Filter[T any, Slice ~[]T](xs Slice, pred func(T) bool) Slice {
	ys := make(Slice, 0, len(xs))
	for _, x := range xs {
		if pred(x) {
			ys = append(ys, x)
		}
	}
	return ys
}

// Map returns a new slice with each element transformed.
func Map[T any, R any](xs []T, fn func(T) R) []R {
	ys := make([]R, len(xs))
	for i, x := range xs {
		ys[i] = fn(x)
	}
	return ys
}

// Unique returns the slice without duplicates, keeping the first occurrence
// of each element.
func Unique[T comparable, Slice ~[]T](xs Slice) Slice {
	ys := make(Slice, 0, len(xs))
	seen := make(map[T]struct{}, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}

		seen[x] = struct{}{}
		ys = append(ys, x)
	}
	return ys
}

// Product returns the Cartesian product of the given lists, as one slice per
// combination. The product of zero lists, or of any empty list, is empty.
func Product[T any](lists [][]T) [][]T {
	if len(lists) == 0 {
		return nil
	}

	combos := [][]T{{}}
	for _, list := range lists {
		if len(list) == 0 {
			return nil
		}

		next := make([][]T, 0, len(combos)*len(list))
		for _, combo := range combos {
			for _, item := range list {
				extended := make([]T, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, item))
			}
		}
		combos = next
	}
	return combos
}
