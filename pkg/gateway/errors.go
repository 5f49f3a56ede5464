package gateway

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Error occurs when a platform fails to run a query.
type Error struct {
	error
	platform string
	query    query.Query
}

// Platform is the platform that failed.
func (err Error) Platform() string {
	return err.platform
}

// Query is the query the platform was running.
func (err Error) Query() query.Query {
	return err.query
}

// Unwrap returns the underlying error.
func (err Error) Unwrap() error {
	return err.error
}

// MarshalZerologObject implements zerolog object marshalling.
func (err Error) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("platform", err.platform).Object("query", err.query)
}

// DetailsMetadata returns the metadata for details for this error.
func (err Error) DetailsMetadata() map[string]string {
	return map[string]string{
		"platform": err.platform,
		"query":    err.query.String(),
	}
}

// NewError constructs a new gateway error. An error that already is a
// gateway error is returned unchanged.
func NewError(platform string, q query.Query, err error) error {
	var existing Error
	if errors.As(err, &existing) {
		return err
	}
	return Error{
		error:    fmt.Errorf("platform `%s` failed on `%s`: %w", platform, q, err),
		platform: platform,
		query:    q,
	}
}
