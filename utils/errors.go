// utils/errors.go
package utils

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the dispatch services wraps exactly one.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrRetryable  = errors.New("retryable")
	ErrTimeout    = errors.New("timeout")
	ErrForbidden  = errors.New("forbidden")
)

var (
	ErrUserIDNotFound = errors.New("authentication required: user ID not found")
	ErrUnauthorized   = errors.New("unauthorized access")
)

// Conflict messages the API reports as 400 Bad Request rather than 409.
const (
	MsgAlreadyProcessed = "Booking already processed"
	MsgInvalidCode      = "Invalid verification code"
)

// AppError carries a caller-facing message together with its kind.
type AppError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NewValidationError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func NewForbiddenError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func NewRetryableError(message string, err error) *AppError {
	return &AppError{Kind: ErrRetryable, Message: message, Err: err}
}

func NewTimeoutError(message string, err error) *AppError {
	return &AppError{Kind: ErrTimeout, Message: message, Err: err}
}

// Message returns the caller-facing message of err, or its text when err is
// not an *AppError.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
