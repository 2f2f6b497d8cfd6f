package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Transport error codes
const (
	ErrAuthExpired        ErrorCode = "AUTH_EXPIRED"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrClient             ErrorCode = "CLIENT_ERROR"
	ErrTransport          ErrorCode = "TRANSPORT_ERROR"
)

// Discovery and compilation error codes
const (
	ErrToolDiscovery    ErrorCode = "TOOL_DISCOVERY"
	ErrPackageDiscovery ErrorCode = "PACKAGE_DISCOVERY"
	ErrSchemaCollision  ErrorCode = "SCHEMA_COLLISION"
)

// General error codes
const (
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code         ErrorCode `json:"code"`
	Message      string    `json:"message"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	URL          string    `json:"url,omitempty"`
	ResponseBody string    `json:"response_body,omitempty"`
	Attempt      int       `json:"attempt,omitempty"`
	Retryable    bool      `json:"retryable"`
	Cause        error     `json:"-"`
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

// WithURL sets the request URL the error relates to.
func (e *Error) WithURL(url string) *Error {
	e.URL = url
	return e
}

// WithResponseBody attaches the remote response body.
func (e *Error) WithResponseBody(body string) *Error {
	e.ResponseBody = body
	return e
}

// WithAttempt records the attempt number that produced the error.
func (e *Error) WithAttempt(attempt int) *Error {
	e.Attempt = attempt
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
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

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// AsError unwraps err to a *Error if one is in its chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
