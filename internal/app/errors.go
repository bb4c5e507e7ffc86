package app

import "errors"

// ErrNotFound indicates an unknown certificate id or shareable id.
var ErrNotFound = errors.New("certificate not found")

// ValidationError rejects upload input before any blob-store call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
