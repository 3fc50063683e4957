// Package errors provides structured error types shared by all layers of
// the speech gateway. Every failure that crosses a package boundary is an
// *Error carrying a machine-readable [Code], a human-readable message, and
// an optional cause, so the API layer can map it to an HTTP response and
// the logs keep the full chain.
//
// Create a new error:
//
//	err := errors.New(errors.CodeNotFound, "person not found")
//
// Wrap an underlying error:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "failed to fetch person")
//
// Inspect:
//
//	if errors.IsNotFound(err) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error is a structured error with a code, message, and optional cause.
// It implements the standard error interface and is immutable after
// creation.
type Error struct {
	// Code is the machine-readable error code (e.g. "AUTH_002").
	Code Code

	// Message is the human-readable error message. It may be shown to
	// clients and must not contain credentials or internal paths.
	Message string

	// Cause is the underlying error, if any. Accessible through
	// errors.Unwrap and preserved for server-side logging.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, supporting errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code implied by the error's
// code category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message; the wrapped error becomes the
// Cause. Returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. Returns nil if err
// is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// FromError converts any error to an *Error. If err already is one
// (anywhere in its chain), it is returned as-is; otherwise it is wrapped
// as a generic internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
