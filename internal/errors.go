package internal

import (
	"errors"
	"fmt"
)

// Generic errors
var (
	// ErrResourceNotFound is returned when a receiving a 404.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrResourceAlreadyExists is returned when attempting to create a resource
	// that already exists.
	ErrResourceAlreadyExists = errors.New("resource already exists")
)

type (
	// ErrMissingParameter occurs when the caller has failed to provide a
	// required parameter
	ErrMissingParameter struct {
		Parameter string
	}

	// ErrInvalidParameter occurs when the caller has provided a parameter
	// with an unacceptable value.
	ErrInvalidParameter struct {
		Parameter string
		Reason    string
	}
)

func (e *ErrMissingParameter) Error() string {
	return fmt.Sprintf("required parameter missing: %s", e.Parameter)
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter: %s: %s", e.Parameter, e.Reason)
}
