package schema

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Partition is the part of a canonical table one platform serves. Its
// Method names the object the platform is queried for, which differs from
// the table when the fields come with the records of another object.
type Partition struct {
	Method       Method
	Fields       query.FieldNames
	Capabilities Capabilities

	// Aliases maps the names the platform uses to the names of the unified
	// schema, for the fields it names differently.
	Aliases map[string]string
}

// PlatformNames maps the unified names of the aliased fields back to the
// names the platform uses.
func (p *Partition) PlatformNames() map[string]string {
	names := make(map[string]string, len(p.Aliases))
	for from, to := range p.Aliases {
		names[to] = from
	}
	return names
}

// Table is the schema of one object.
//
// Announced tables carry the announcing platform in Namespace. Canonical
// tables, produced by normalization, have no namespace and describe in
// Partitions which platform provides which fields.
type Table struct {
	Name         string
	Namespace    string
	Fields       map[string]*Field
	Keys         Keys
	Capabilities Capabilities
	Partitions   map[string]*Partition
	Description  string

	// Aliases holds, for an announced table, the fields renamed from the name
	// the platform uses to their name in the unified schema.
	Aliases map[string]string
}

// NewTable returns an empty table for the object announced by the platform.
func NewTable(platform, name string) *Table {
	return &Table{
		Name:       name,
		Namespace:  platform,
		Fields:     map[string]*Field{},
		Partitions: map[string]*Partition{},
	}
}

// AddField adds or replaces a field.
func (t *Table) AddField(f *Field) {
	t.Fields[f.Name] = f
}

// GetField returns the named field.
func (t *Table) GetField(name string) (*Field, bool) {
	f, ok := t.Fields[name]
	return f, ok
}

// SortedFields returns the fields ordered by name.
func (t *Table) SortedFields() []*Field {
	names := slices.Sorted(maps.Keys(t.Fields))
	fields := make([]*Field, len(names))
	for i, name := range names {
		fields[i] = t.Fields[name]
	}
	return fields
}

// FieldNames returns the names of every field.
func (t *Table) FieldNames() query.FieldNames {
	return query.NewFieldNames(slices.Collect(maps.Keys(t.Fields))...)
}

// ApplyAliases renames the fields of an announced table from the names the
// platform uses to the names of the unified schema.
func (t *Table) ApplyAliases(aliases map[string]string) error {
	if len(aliases) == 0 {
		return nil
	}

	targets := map[string]struct{}{}
	for from, to := range aliases {
		if _, ok := t.Fields[from]; !ok {
			return NewFieldNotFoundErr(t.Name, from)
		}
		if _, ok := t.Fields[to]; ok {
			return NewInvalidTableErr(t.Name, fmt.Sprintf("alias `%s` of `%s` is already a field", to, from))
		}
		if _, ok := targets[to]; ok {
			return NewInvalidTableErr(t.Name, fmt.Sprintf("two fields aliased to `%s`", to))
		}
		targets[to] = struct{}{}
	}

	for from, to := range aliases {
		f := t.Fields[from]
		delete(t.Fields, from)
		f.Name = to
		t.Fields[to] = f
	}
	t.Aliases = maps.Clone(aliases)
	return nil
}

// InsertKey declares a candidate key made of the named fields.
func (t *Table) InsertKey(names ...string) error {
	fields, err := t.keyFields(names)
	if err != nil {
		return err
	}
	t.Keys = t.Keys.Add(NewKey(fields...))
	return nil
}

// InsertLocalKey declares a key scoped to the announcing platform.
func (t *Table) InsertLocalKey(names ...string) error {
	fields, err := t.keyFields(names)
	if err != nil {
		return err
	}
	t.Keys = t.Keys.Add(NewLocalKey(fields...))
	return nil
}

func (t *Table) keyFields(names []string) ([]*Field, error) {
	if len(names) == 0 {
		return nil, NewInvalidTableErr(t.Name, "empty key")
	}
	fields := make([]*Field, 0, len(names))
	for _, name := range names {
		f, ok := t.Fields[name]
		if !ok {
			return nil, NewFieldNotFoundErr(t.Name, name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Key returns the first candidate key.
func (t *Table) Key() (Key, bool) {
	return t.Keys.One()
}

// IsOnJoin returns true if the object is only reachable through a join.
func (t *Table) IsOnJoin() bool {
	return t.Capabilities.IsOnJoin()
}

// IsSubsetOf returns true if every field of t is a field of other.
func (t *Table) IsSubsetOf(other *Table) bool {
	for name, f := range t.Fields {
		of, ok := other.Fields[name]
		if !ok || !of.Equal(f) {
			return false
		}
	}
	return true
}

// Platforms returns the platforms serving the table, in order.
func (t *Table) Platforms() []string {
	return slices.Sorted(maps.Keys(t.Partitions))
}

// Partition returns the part of the table served by the platform.
func (t *Table) Partition(platform string) (*Partition, bool) {
	p, ok := t.Partitions[platform]
	return p, ok
}

// NativePartition returns the partition of the platform if the platform
// announced the object itself.
func (t *Table) NativePartition(platform string) (*Partition, bool) {
	p, ok := t.Partitions[platform]
	if !ok || p.Method.Object != t.Name {
		return nil, false
	}
	return p, true
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	cloned := &Table{
		Name:         t.Name,
		Namespace:    t.Namespace,
		Fields:       make(map[string]*Field, len(t.Fields)),
		Capabilities: t.Capabilities,
		Partitions:   make(map[string]*Partition, len(t.Partitions)),
		Description:  t.Description,
		Aliases:      maps.Clone(t.Aliases),
	}
	for name, f := range t.Fields {
		cloned.Fields[name] = f.Clone()
	}
	for _, k := range t.Keys {
		fields := make([]*Field, 0, len(k.fields))
		for _, f := range k.fields {
			fields = append(fields, cloned.Fields[f.Name])
		}
		cloned.Keys = append(cloned.Keys, Key{fields: fields, local: k.local})
	}
	for platform, p := range t.Partitions {
		cp := *p
		cp.Aliases = maps.Clone(p.Aliases)
		cloned.Partitions[platform] = &cp
	}
	return cloned
}

// QualifiedName returns `namespace:name`, or the name alone for canonical
// tables.
func (t *Table) QualifiedName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + query.NamespaceSeparator + t.Name
}

// AsRecord describes the table as a record, as returned when querying the
// `local:object` metadata.
func (t *Table) AsRecord() query.Record {
	columns := make(query.Records, 0, len(t.Fields))
	for _, f := range t.SortedFields() {
		columns = append(columns, query.Record{
			"name":        f.Name,
			"type":        f.Type,
			"is_array":    f.IsArray,
			"qualifier":   qualifier(f),
			"description": f.Description,
		})
	}

	keys := make([]any, 0, len(t.Keys))
	for _, k := range t.Keys {
		names := k.Names()
		key := make([]any, len(names))
		for i, n := range names {
			key[i] = n
		}
		keys = append(keys, key)
	}

	platforms := make([]any, 0, len(t.Partitions))
	for _, p := range t.Platforms() {
		platforms = append(platforms, p)
	}
	if t.Namespace != "" && len(platforms) == 0 {
		platforms = append(platforms, t.Namespace)
	}

	capabilities := make([]any, 0)
	for _, c := range t.Capabilities.Names() {
		capabilities = append(capabilities, c)
	}

	return query.Record{
		"table":        t.Name,
		"platforms":    platforms,
		"columns":      columns,
		"key":          keys,
		"capabilities": capabilities,
		"description":  t.Description,
	}
}

func qualifier(f *Field) string {
	switch {
	case f.IsConst:
		return "const"
	case f.IsLocal:
		return "local"
	default:
		return ""
	}
}

func (t *Table) String() string {
	var sb strings.Builder
	sb.WriteString(t.QualifiedName())
	sb.WriteString(" {")
	for i, f := range t.SortedFields() {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(f.String())
	}
	for _, k := range t.Keys {
		sb.WriteString("; ")
		sb.WriteString(k.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// MarshalZerologObject implements zerolog object marshalling.
func (t *Table) MarshalZerologObject(e *zerolog.Event) {
	e.Str("table", t.QualifiedName()).
		Int("fields", len(t.Fields)).
		Strs("platforms", t.Platforms())
}
