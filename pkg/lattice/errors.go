package lattice

import (
	"fmt"
)

// AlreadyPresentError occurs when adding a value the lattice already holds.
type AlreadyPresentError struct {
	error
	value any
}

// Value is the value that was added twice.
func (err AlreadyPresentError) Value() any {
	return err.value
}

// NewAlreadyPresentErr constructs a new already present error.
func NewAlreadyPresentErr(value any) error {
	return AlreadyPresentError{
		error: fmt.Errorf("`%v` is already in the lattice", value),
		value: value,
	}
}
