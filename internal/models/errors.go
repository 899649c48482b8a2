package models

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input rejected before any storage I/O.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure, so handlers
// can map it to a 400 instead of a 500.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
