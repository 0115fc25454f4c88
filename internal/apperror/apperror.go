// Package apperror defines the error taxonomy shared by the service and
// handler layers.
//
// Services return *AppError values wrapping one of the sentinels below.
// Handlers never inspect messages; they match the sentinel with errors.Is
// and pick a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("Validation Error")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")
	ErrExpired        = errors.New("expired")
	ErrAuthentication = errors.New("authentication failed")
	ErrDependency     = errors.New("dependency failure")
)

// Machine-readable codes carried on authentication failures.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotVerified   = "email_not_verified"
)

// genericMessage is what callers see for dependency failures.
const genericMessage = "An internal error occurred"

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message, safe to show to clients
	Field   string // Optional: field causing the error
	Code    string // Optional: finer-grained reason within the sentinel
	Op      string // Optional: operation that failed (dependency errors)
	Cause   error  // Optional: underlying failure, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Message, e.Op, e.Cause)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// either one (e.g. ErrDependency and context.DeadlineExceeded).
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Expired reports a credential or token past its lifetime.
func Expired(message string) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: message,
	}
}

// Unauthenticated reports a failed login. code is one of the Code*
// constants.
func Unauthenticated(code, message string) *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: message,
		Code:    code,
	}
}

// Dependency wraps a store or transport failure. The message is generic;
// op and cause are kept for logging only.
func Dependency(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrDependency,
		Message: genericMessage,
		Op:      op,
		Cause:   cause,
	}
}

// CodeOf returns the Code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
