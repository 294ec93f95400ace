package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrValidation        = errors.New("validation failed")
	ErrNoCredential      = errors.New("no credential configured")
	ErrDecryptionFailure = errors.New("credential decryption failed")
	ErrReferenceFetch    = errors.New("reference fetch failed")
	ErrNoCandidates      = errors.New("model returned no candidates")
	ErrModelRefused      = errors.New("model returned text instead of an image")
	ErrInvalidRequest    = errors.New("invalid request to model provider")
	ErrStorage           = errors.New("storage operation failed")

	// ErrStaleAttempt is returned when a terminal write or retrigger lost the
	// compare-and-swap against the task's current epoch.
	ErrStaleAttempt = errors.New("task attempt superseded")
	// ErrNotRetriggerable is returned when retrigger targets a task that is
	// completed or still freshly pending.
	ErrNotRetriggerable = errors.New("task cannot be retriggered in its current state")
)

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RefusalError carries the text the model produced instead of an image.
type RefusalError struct {
	Text string
}

func (e *RefusalError) Error() string {
	if e.Text == "" {
		return ErrModelRefused.Error()
	}
	return fmt.Sprintf("%s: %s", ErrModelRefused.Error(), e.Text)
}

func (e *RefusalError) Unwrap() error { return ErrModelRefused }

// ReferenceError identifies which reference could not be prepared.
type ReferenceError struct {
	Reference string
	Err       error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference %q: %v", e.Reference, e.Err)
}

func (e *ReferenceError) Unwrap() []error { return []error{ErrReferenceFetch, e.Err} }
