package planner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// UnresolvableQueryError occurs when some fields of a query cannot be served
// by any allowed platform within the bounded exploration.
type UnresolvableQueryError struct {
	error
	object string
	fields []string
}

// Object is the object the query targets.
func (err UnresolvableQueryError) Object() string {
	return err.object
}

// Fields are the fields that could not be served.
func (err UnresolvableQueryError) Fields() []string {
	return slices.Clone(err.fields)
}

// MarshalZerologObject implements zerolog object marshalling.
func (err UnresolvableQueryError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("object", err.object).Strs("fields", err.fields)
}

// DetailsMetadata returns the metadata for details for this error.
func (err UnresolvableQueryError) DetailsMetadata() map[string]string {
	return map[string]string{
		"object": err.object,
		"fields": strings.Join(err.fields, ","),
	}
}

// NewUnresolvableQueryErr constructs a new unresolvable query error.
func NewUnresolvableQueryErr(object string, fields []string) error {
	return UnresolvableQueryError{
		error:  fmt.Errorf("no allowed platform serves `%s` of `%s`", strings.Join(fields, "`, `"), object),
		object: object,
		fields: fields,
	}
}
