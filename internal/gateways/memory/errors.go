package memory

import (
	"fmt"

	"github.com/rs/zerolog"
)

// UnknownObjectError occurs when a query names an object the platform does
// not announce.
type UnknownObjectError struct {
	error
	platform string
	object   string
}

// Platform is the platform that received the query.
func (err UnknownObjectError) Platform() string {
	return err.platform
}

// Object is the object that is not announced.
func (err UnknownObjectError) Object() string {
	return err.object
}

// MarshalZerologObject implements zerolog object marshalling.
func (err UnknownObjectError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("platform", err.platform).Str("object", err.object)
}

// NewUnknownObjectErr constructs a new unknown object error.
func NewUnknownObjectErr(platform, object string) error {
	return UnknownObjectError{
		error:    fmt.Errorf("platform `%s` does not announce object `%s`", platform, object),
		platform: platform,
		object:   object,
	}
}
