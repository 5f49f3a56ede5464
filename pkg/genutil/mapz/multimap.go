package mapz

// MultiMap maps a key to one or more values and remembers the order in
// which keys were first added.
type MultiMap[T comparable, Q any] struct {
	items map[T][]Q
	order []T
}

// NewMultiMap initializes a new MultiMap.
func NewMultiMap[T comparable, Q any]() *MultiMap[T, Q] {
	return &MultiMap[T, Q]{items: map[T][]Q{}}
}

// Add appends the value under the given key. Values are not compared, so the
// same value may be stored twice.
func (mm *MultiMap[T, Q]) Add(key T, item Q) {
	if _, ok := mm.items[key]; !ok {
		mm.order = append(mm.order, key)
	}
	mm.items[key] = append(mm.items[key], item)
}

// Has returns true if the key is found in the map.
func (mm *MultiMap[T, Q]) Has(key T) bool {
	_, ok := mm.items[key]
	return ok
}

// Get returns the values stored for the key and whether the key existed.
func (mm *MultiMap[T, Q]) Get(key T) ([]Q, bool) {
	found, ok := mm.items[key]
	return found, ok
}

// IsEmpty returns true if the map is currently empty.
func (mm *MultiMap[T, Q]) IsEmpty() bool { return len(mm.items) == 0 }

// Len returns the number of keys present.
func (mm *MultiMap[T, Q]) Len() int { return len(mm.items) }

// Keys returns the keys in first-insertion order.
func (mm *MultiMap[T, Q]) Keys() []T {
	keys := make([]T, len(mm.order))
	copy(keys, mm.order)
	return keys
}

// Values returns all values, grouped by key in first-insertion order.
func (mm *MultiMap[T, Q]) Values() []Q {
	values := make([]Q, 0, len(mm.items))
	for _, key := range mm.order {
		values = append(values, mm.items[key]...)
	}
	return values
}
