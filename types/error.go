package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrInvalidState   ErrorCode = "INVALID_STATE"
	ErrLocked         ErrorCode = "LOCKED"
)

// Engine error codes
const (
	ErrConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrProcessing    ErrorCode = "PROCESSING_ERROR"
	ErrPersistence   ErrorCode = "PERSISTENCE_ERROR"
	ErrTimeout       ErrorCode = "TIMEOUT"
)

// Service error codes
const (
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewConfigurationError reports an invalid node/edge graph.
func NewConfigurationError(format string, args ...any) *Error {
	return NewError(ErrConfiguration, fmt.Sprintf(format, args...))
}

// NewNotFoundError reports a missing entity, e.g. NewNotFoundError("execution", 42).
func NewNotFoundError(kind string, id any) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("%s %v not found", kind, id))
}

// NewProcessingError reports a processor failure.
func NewProcessingError(message string, cause error) *Error {
	return NewError(ErrProcessing, message).WithCause(cause)
}

// NewPersistenceError reports a failed commit. Persistence errors are retryable.
func NewPersistenceError(message string, cause error) *Error {
	return NewError(ErrPersistence, message).WithCause(cause).WithRetryable(true)
}

// NewInvalidStateError reports an operation not allowed in the current status.
func NewInvalidStateError(format string, args ...any) *Error {
	return NewError(ErrInvalidState, fmt.Sprintf(format, args...))
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
