package announce

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// ParseError occurs when an announcement file is not well formed.
type ParseError struct {
	error
	line     int
	contents string
}

// Line is the 1-based line number of the error.
func (err ParseError) Line() int {
	return err.line
}

// Unwrap returns the underlying error.
func (err ParseError) Unwrap() error {
	return err.error
}

// MarshalZerologObject implements zerolog object marshalling.
func (err ParseError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Int("line", err.line).Str("contents", err.contents)
}

// DetailsMetadata returns the metadata for details for this error.
func (err ParseError) DetailsMetadata() map[string]string {
	return map[string]string{
		"line":     strconv.Itoa(err.line),
		"contents": err.contents,
	}
}

// NewParseErr constructs a new parse error.
func NewParseErr(line int, contents string, err error) error {
	return ParseError{
		error:    fmt.Errorf("line %d: %w", line, err),
		line:     line,
		contents: contents,
	}
}

func errExpected(what string) error {
	return errors.New("expected " + what)
}

func errUnterminated(kind, name string) error {
	return fmt.Errorf("%s `%s` is not terminated", kind, name)
}
