package domain

import (
	"github.com/cockroachdb/errors"
)

// Error classes surfaced by the core. Concrete errors are marked with one of
// these so callers classify with errors.Is regardless of wrapping.
var (
	ErrValidation        = errors.New("validation_error")
	ErrAllocation        = errors.New("allocation_error")
	ErrRender            = errors.New("render_error")
	ErrPersistence       = errors.New("persistence_error")
	ErrRemoteUnavailable = errors.New("remote_unavailable")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError builds a field error marked as ErrValidation.
func NewValidationError(field, code, message string) error {
	return errors.Mark(&ValidationError{Field: field, Code: code, Message: message}, ErrValidation)
}

// AsValidationError extracts the field error, if any.
func AsValidationError(err error) *ValidationError {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	return nil
}

// AllocationError wraps a failure to read or persist the local sequence log.
func AllocationError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrAllocation)
}

// RenderError wraps a malformed record or template failure.
func RenderError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrRender)
}

// PersistenceError wraps a failed ledger append.
func PersistenceError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrPersistence)
}

// RemoteUnavailable wraps a remote store failure. It triggers the local
// fallback and is never returned to channel callers.
func RemoteUnavailable(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrRemoteUnavailable)
}

func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsAllocation(err error) bool        { return errors.Is(err, ErrAllocation) }
func IsRender(err error) bool            { return errors.Is(err, ErrRender) }
func IsPersistence(err error) bool       { return errors.Is(err, ErrPersistence) }
func IsRemoteUnavailable(err error) bool { return errors.Is(err, ErrRemoteUnavailable) }
