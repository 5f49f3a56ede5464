package normalizer

import (
	"fmt"

	"github.com/rs/zerolog"
)

// UnknownObjectError occurs when no platform announces the object.
type UnknownObjectError struct {
	error
	object string
}

// Object is the name of the unknown object.
func (err UnknownObjectError) Object() string {
	return err.object
}

// MarshalZerologObject implements zerolog object marshalling.
func (err UnknownObjectError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("object", err.object)
}

// DetailsMetadata returns the metadata for details for this error.
func (err UnknownObjectError) DetailsMetadata() map[string]string {
	return map[string]string{
		"object": err.object,
	}
}

// NewUnknownObjectErr constructs a new unknown object error.
func NewUnknownObjectErr(object string) error {
	return UnknownObjectError{
		error:  fmt.Errorf("object `%s` is not announced by any platform", object),
		object: object,
	}
}

// InvalidAnnouncementError occurs when an announced table cannot take part
// in normalization.
type InvalidAnnouncementError struct {
	error
	platform string
	object   string
}

// Platform is the platform that announced the table.
func (err InvalidAnnouncementError) Platform() string {
	return err.platform
}

// MarshalZerologObject implements zerolog object marshalling.
func (err InvalidAnnouncementError) MarshalZerologObject(e *zerolog.Event) {
	e.Err(err.error).Str("platform", err.platform).Str("object", err.object)
}

// DetailsMetadata returns the metadata for details for this error.
func (err InvalidAnnouncementError) DetailsMetadata() map[string]string {
	return map[string]string{
		"platform": err.platform,
		"object":   err.object,
	}
}

// NewInvalidAnnouncementErr constructs a new invalid announcement error.
func NewInvalidAnnouncementErr(platform, object, reason string) error {
	return InvalidAnnouncementError{
		error:    fmt.Errorf("invalid announcement of `%s` by `%s`: %s", object, platform, reason),
		platform: platform,
		object:   object,
	}
}
