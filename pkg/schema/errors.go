package schema

import (
	"fmt"

	"github.com/rs/zerolog"
)

// FieldNotFoundError occurs when a key or relation names a field the table
// does not have.
type FieldNotFoundError struct {
	error
	tableName string
	fieldName string
}

// TableName is the name of the table missing the field.
func (err FieldNotFoundError) TableName() string {
	return err.tableName
}

// NotFoundFieldName is the name of the field not found.
func (err FieldNotFoundError) NotFoundFieldName() string {
	return err.fieldName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err FieldNotFoundError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("table", err.tableName).Str("field", err.fieldName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err FieldNotFoundError) DetailsMetadata() map[string]string {
	return map[string]string{
		"table_name": err.tableName,
		"field_name": err.fieldName,
	}
}

// NewFieldNotFoundErr constructs a new field not found error.
func NewFieldNotFoundErr(tableName string, fieldName string) error {
	return FieldNotFoundError{
		error:     fmt.Errorf("field `%s` not found under table `%s`", fieldName, tableName),
		tableName: tableName,
		fieldName: fieldName,
	}
}

// InvalidTableError occurs when an announced table cannot be used.
type InvalidTableError struct {
	error
	tableName string
}

// TableName is the name of the invalid table.
func (err InvalidTableError) TableName() string {
	return err.tableName
}

// MarshalZerologObject implements zerolog object marshalling.
func (err InvalidTableError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("table", err.tableName)
}

// DetailsMetadata returns the metadata for details for this error.
func (err InvalidTableError) DetailsMetadata() map[string]string {
	return map[string]string{
		"table_name": err.tableName,
	}
}

// NewInvalidTableErr constructs a new invalid table error.
func NewInvalidTableErr(tableName string, reason string) error {
	return InvalidTableError{
		error:     fmt.Errorf("invalid table `%s`: %s", tableName, reason),
		tableName: tableName,
	}
}
