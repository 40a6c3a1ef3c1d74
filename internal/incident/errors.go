package incident

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned by Store.Insert when an incident with the same
	// original message and location already exists.
	ErrDuplicate = errors.New("incident already exists for message and location")

	// ErrNotFound is returned when an incident ID is unknown.
	ErrNotFound = errors.New("incident not found")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
