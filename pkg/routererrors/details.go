package routererrors

import (
	"errors"
	"maps"
)

// HasDetails is implemented by errors that can describe themselves as a set
// of key/value pairs, for structured failure reports.
type HasDetails interface {
	// DetailsMetadata returns the details for this error.
	DetailsMetadata() map[string]string
}

// WithAdditionalDetailsError is an error that includes additional details.
type WithAdditionalDetailsError struct {
	error

	// AdditionalDetails is a map of additional details for the error.
	AdditionalDetails map[string]string
}

func NewWithAdditionalDetailsError(err error) *WithAdditionalDetailsError {
	return &WithAdditionalDetailsError{err, nil}
}

// Unwrap returns the inner, wrapped error.
func (err *WithAdditionalDetailsError) Unwrap() error {
	return err.error
}

func (err *WithAdditionalDetailsError) WithAdditionalDetails(key string, value string) *WithAdditionalDetailsError {
	if err.AdditionalDetails == nil {
		err.AdditionalDetails = make(map[string]string)
	}
	err.AdditionalDetails[key] = value
	return err
}

func (err *WithAdditionalDetailsError) DetailsMetadata() map[string]string {
	details := map[string]string{}
	var inner HasDetails
	if errors.As(err.error, &inner) {
		maps.Copy(details, inner.DetailsMetadata())
	}
	maps.Copy(details, err.AdditionalDetails)
	return details
}

// Details returns the merged details of every error in the chain that
// exposes them. The "error" key always holds the message.
func Details(err error) map[string]string {
	details := map[string]string{}
	if err == nil {
		return details
	}

	var withDetails HasDetails
	if errors.As(err, &withDetails) {
		maps.Copy(details, withDetails.DetailsMetadata())
	}
	details["error"] = err.Error()
	return details
}
