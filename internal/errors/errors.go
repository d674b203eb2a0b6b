// Package errors defines the application error taxonomy used across the
// ingestion pipeline, along with helpers to classify database errors.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a missing or inactive dealer credential.
	// Configuration errors are fatal: no retry, no fallback.
	ErrCodeConfiguration ErrorCode = "configuration"
	// ErrCodeTransport indicates a timeout or server error talking to the
	// partner API. Retried once, then the run falls back to synthetic data.
	ErrCodeTransport ErrorCode = "transport"
	// ErrCodeAuth indicates the partner API rejected the credentials.
	// Not retried; triggers fallback.
	ErrCodeAuth ErrorCode = "auth"
	// ErrCodeMalformed indicates a partner API response that cannot be parsed.
	// Not retried; triggers fallback.
	ErrCodeMalformed ErrorCode = "malformed"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeStorage indicates a persistence failure. Fatal for the run.
	ErrCodeStorage ErrorCode = "storage"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a local operation deadline was exceeded.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// Retryable reports whether the partner API adapter may retry a call that
// failed with this code. Only transport-class failures qualify; auth and
// malformed responses are unlikely to change without a configuration fix.
func (c ErrorCode) Retryable() bool {
	return c == ErrCodeTransport
}

// AppError is a structured application error with a code, message, and
// optional cause. It supports errors.Is/errors.As through Unwrap.
type AppError struct {
	// Code categorizes the error type.
	Code ErrorCode
	// Message is a human-readable error message.
	Message string
	// Cause is the underlying error, if any.
	Cause error
	// Field names the offending field for validation errors.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Configuration creates a new Configuration error.
func Configuration(message string) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message}
}

// Configurationf creates a new Configuration error with a formatted message.
func Configurationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Transport creates a new Transport error.
func Transport(message string) *AppError {
	return &AppError{Code: ErrCodeTransport, Message: message}
}

// Auth creates a new Auth error.
func Auth(message string) *AppError {
	return &AppError{Code: ErrCodeAuth, Message: message}
}

// Malformed creates a new Malformed error.
func Malformed(message string) *AppError {
	return &AppError{Code: ErrCodeMalformed, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Storage creates a new Storage error.
func Storage(message string) *AppError {
	return &AppError{Code: ErrCodeStorage, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsConfiguration checks if an error is a Configuration error.
func IsConfiguration(err error) bool { return isCode(err, ErrCodeConfiguration) }

// IsTransport checks if an error is a Transport error.
func IsTransport(err error) bool { return isCode(err, ErrCodeTransport) }

// IsAuth checks if an error is an Auth error.
func IsAuth(err error) bool { return isCode(err, ErrCodeAuth) }

// IsMalformed checks if an error is a Malformed error.
func IsMalformed(err error) bool { return isCode(err, ErrCodeMalformed) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsStorage checks if an error is a Storage error.
func IsStorage(err error) bool { return isCode(err, ErrCodeStorage) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsRetryable reports whether the error's code allows one adapter retry.
func IsRetryable(err error) bool {
	return GetCode(err).Retryable()
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if none is set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
