package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a zone or alert id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved is returned when resolving an alert that was resolved before.
	// The alert is left untouched.
	ErrAlreadyResolved = errors.New("alert already resolved")

	// ErrDuplicateAlert is returned when an insert would create a second
	// unresolved alert for a zone, or reuse an existing alert id.
	ErrDuplicateAlert = errors.New("duplicate alert")
)

// ValidationError reports a reading or alert field that violates its constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
