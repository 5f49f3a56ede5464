package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// errStreamClosed is returned when a stream ends without a terminal packet,
// which only happens when the execution is cancelled.
var errStreamClosed = errors.New("record stream closed before its last record")

// JoinKeyMissingError occurs when a record lacks a field needed to join or
// deduplicate it. The record is dropped; the error is only logged.
type JoinKeyMissingError struct {
	error
	node   string
	fields []string
}

// Node is the kind of node that dropped the record.
func (err JoinKeyMissingError) Node() string {
	return err.node
}

// Fields are the key fields the record was expected to carry.
func (err JoinKeyMissingError) Fields() []string {
	return err.fields
}

// MarshalZerologObject implements zerolog object marshalling.
func (err JoinKeyMissingError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("node", err.node).Strs("fields", err.fields)
}

// DetailsMetadata returns the metadata for details for this error.
func (err JoinKeyMissingError) DetailsMetadata() map[string]string {
	return map[string]string{
		"node":   err.node,
		"fields": strings.Join(err.fields, ","),
	}
}

// NewJoinKeyMissingErr constructs a new join key missing error.
func NewJoinKeyMissingErr(node string, fields []string) error {
	return JoinKeyMissingError{
		error:  fmt.Errorf("record without key `%s` dropped by %s", strings.Join(fields, ", "), node),
		node:   node,
		fields: fields,
	}
}

// InvalidPlanError occurs when a plan tree is malformed.
type InvalidPlanError struct {
	error
	node string
}

// Node is the kind of node that is malformed.
func (err InvalidPlanError) Node() string {
	return err.node
}

// MarshalZerologObject implements zerolog object marshalling.
func (err InvalidPlanError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("node", err.node)
}

// NewInvalidPlanErr constructs a new invalid plan error.
func NewInvalidPlanErr(node string, format string, args ...any) error {
	return InvalidPlanError{
		error: fmt.Errorf("invalid %s: %s", node, fmt.Sprintf(format, args...)),
		node:  node,
	}
}
