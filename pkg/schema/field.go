package schema

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// BaseTypes are the field types that do not reference another object.
var BaseTypes = map[string]struct{}{
	"bool":      {},
	"int":       {},
	"unsigned":  {},
	"double":    {},
	"string":    {},
	"text":      {},
	"inet":      {},
	"hostname":  {},
	"timestamp": {},
	"interval":  {},
}

// Field is one announced attribute of an object.
type Field struct {
	Name    string
	Type    string
	IsArray bool

	// IsConst marks a field the platform never lets a client update.
	IsConst bool

	// IsLocal marks a field only meaningful on the announcing platform. Local
	// fields are joined flat instead of nested.
	IsLocal bool

	Description string
}

// FieldKey is the identity of a Field.
type FieldKey struct {
	Type    string
	Name    string
	IsArray bool
}

// Key returns the identity of the field.
func (f *Field) Key() FieldKey {
	return FieldKey{Type: f.Type, Name: f.Name, IsArray: f.IsArray}
}

// IsReference returns true if the field type names another object.
func (f *Field) IsReference() bool {
	_, ok := BaseTypes[f.Type]
	return !ok
}

// Clone returns a copy of the field.
func (f *Field) Clone() *Field {
	cloned := *f
	return &cloned
}

// Equal returns true if both fields have the same identity.
func (f *Field) Equal(other *Field) bool {
	return f.Key() == other.Key()
}

func (f *Field) String() string {
	var sb strings.Builder
	if f.IsConst {
		sb.WriteString("const ")
	}
	if f.IsLocal {
		sb.WriteString("local ")
	}
	fmt.Fprintf(&sb, "%s %s", f.Type, f.Name)
	if f.IsArray {
		sb.WriteString("[]")
	}
	return sb.String()
}

// MarshalZerologObject implements zerolog object marshalling.
func (f *Field) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", f.Name).Str("type", f.Type).Bool("array", f.IsArray)
}
