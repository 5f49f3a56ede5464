package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// QueryError occurs when a query fails as a whole. It holds the error that
// stopped the query and every error collected before.
type QueryError struct {
	error
	query  query.Query
	errors []error
}

// Query is the query that failed.
func (err QueryError) Query() query.Query {
	return err.query
}

// Errors returns every error that occurred while running the query.
func (err QueryError) Errors() []error {
	return err.errors
}

// Unwrap returns the collected errors.
func (err QueryError) Unwrap() []error {
	return err.errors
}

// MarshalZerologObject implements zerolog object marshalling.
func (err QueryError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Object("query", err.query).Int("errors", len(err.errors))
}

// DetailsMetadata returns the metadata for details for this error.
func (err QueryError) DetailsMetadata() map[string]string {
	return map[string]string{
		"query":  err.query.String(),
		"errors": fmt.Sprint(len(err.errors)),
	}
}

// NewQueryErr constructs a new query error from the fatal error and those
// collected before it.
func NewQueryErr(q query.Query, fatal error, collected ...error) error {
	all := append([]error{fatal}, collected...)
	messages := make([]string, len(all))
	for i, err := range all {
		messages[i] = err.Error()
	}
	return QueryError{
		error:  fmt.Errorf("query `%s` failed: %s", q, strings.Join(messages, "; ")),
		query:  q,
		errors: all,
	}
}

// UnknownPlatformError occurs when a platform name matches no configured
// platform.
type UnknownPlatformError struct {
	error
	platform string
}

// Platform is the unknown platform.
func (err UnknownPlatformError) Platform() string {
	return err.platform
}

// NewUnknownPlatformErr constructs a new unknown platform error.
func NewUnknownPlatformErr(platform string) error {
	return UnknownPlatformError{
		error:    fmt.Errorf("unknown platform `%s`", platform),
		platform: platform,
	}
}

// ErrNotReady occurs when a query is forwarded before the router fetched the
// announcements of its platforms.
var ErrNotReady = errors.New("router has no schema yet: call Refresh first")

// ErrNoPlatform occurs when every platform a query may be forwarded to is
// disabled.
var ErrNoPlatform = errors.New("no enabled platform to forward to")

// AmbiguousWriteError occurs when a write does not name its platform and
// several platforms serve the object.
type AmbiguousWriteError struct {
	error
	object    string
	platforms []string
}

// Object is the written object.
func (err AmbiguousWriteError) Object() string {
	return err.object
}

// Platforms are the platforms serving the object.
func (err AmbiguousWriteError) Platforms() []string {
	return err.platforms
}

// MarshalZerologObject implements zerolog object marshalling.
func (err AmbiguousWriteError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("object", err.object).Strs("platforms", err.platforms)
}

// DetailsMetadata returns the metadata for details for this error.
func (err AmbiguousWriteError) DetailsMetadata() map[string]string {
	return map[string]string{
		"object":    err.object,
		"platforms": strings.Join(err.platforms, ","),
	}
}

// NewAmbiguousWriteErr constructs a new ambiguous write error.
func NewAmbiguousWriteErr(object string, platforms []string) error {
	return AmbiguousWriteError{
		error: fmt.Errorf(
			"object `%s` is served by %s: prefix it with the platform to write",
			object, strings.Join(platforms, ", "),
		),
		object:    object,
		platforms: platforms,
	}
}
