package schema

import (
	"slices"
	"strings"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Key is a non-empty ordered set of fields identifying the records of a
// table. A local key only identifies records within one platform.
type Key struct {
	fields []*Field
	local  bool
}

// NewKey returns the key made of the fields, in order.
func NewKey(fields ...*Field) Key {
	return Key{fields: slices.Clone(fields)}
}

// NewLocalKey returns a key scoped to the announcing platform.
func NewLocalKey(fields ...*Field) Key {
	return Key{fields: slices.Clone(fields), local: true}
}

// Fields returns the key fields in order.
func (k Key) Fields() []*Field { return k.fields }

// IsLocal returns true for a key scoped to one platform.
func (k Key) IsLocal() bool { return k.local }

// IsEmpty returns true for the zero key.
func (k Key) IsEmpty() bool { return len(k.fields) == 0 }

// IsComposite returns true if the key has more than one field.
func (k Key) IsComposite() bool { return len(k.fields) > 1 }

// Names returns the key field names in order.
func (k Key) Names() []string {
	names := make([]string, len(k.fields))
	for i, f := range k.fields {
		names[i] = f.Name
	}
	return names
}

// FieldNames returns the key field names as a set.
func (k Key) FieldNames() query.FieldNames {
	return query.NewFieldNames(k.Names()...)
}

// Types returns the key field types in order.
func (k Key) Types() []string {
	types := make([]string, len(k.fields))
	for i, f := range k.fields {
		types[i] = f.Type
	}
	return types
}

// Contains returns true if the named field is part of the key.
func (k Key) Contains(name string) bool {
	return slices.Contains(k.Names(), name)
}

// Equal returns true if both keys hold the same fields, in any order.
func (k Key) Equal(other Key) bool {
	if len(k.fields) != len(other.fields) {
		return false
	}
	for _, f := range k.fields {
		if !slices.ContainsFunc(other.fields, f.Equal) {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return "KEY(" + strings.Join(k.Names(), ", ") + ")"
}

// Keys is the set of candidate keys of a table.
type Keys []Key

// One returns the first candidate key. The boolean is false for a keyless
// table.
func (ks Keys) One() (Key, bool) {
	if len(ks) == 0 {
		return Key{}, false
	}
	return ks[0], true
}

// Has returns true if an equal key is already present.
func (ks Keys) Has(k Key) bool {
	return slices.ContainsFunc(ks, k.Equal)
}

// HasField returns true if one of the keys holds the named field.
func (ks Keys) HasField(name string) bool {
	for _, k := range ks {
		if k.Contains(name) {
			return true
		}
	}
	return false
}

// Add returns the keys with k appended, unless an equal key exists.
func (ks Keys) Add(k Key) Keys {
	if ks.Has(k) {
		return ks
	}
	return append(slices.Clone(ks), k)
}

// FieldNames returns the union of every key's fields.
func (ks Keys) FieldNames() query.FieldNames {
	out := query.NewFieldNames()
	for _, k := range ks {
		out = out.Union(k.FieldNames())
	}
	return out
}
