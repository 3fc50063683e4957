package errors

import (
	stderrors "errors"
)

// AsError attempts to convert an error to an *Error, traversing the
// error chain. Returns the Error and true on success.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code carried by err, or the empty string if
// err is nil or not an *Error.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsValidation reports whether err is a validation error (VAL_xxx).
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "VAL"
}

// IsAuthentication reports whether err is an authentication error
// (AUTH_xxx).
func IsAuthentication(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTH"
}

// IsAuthorization reports whether err is an authorization error
// (AUTHZ_xxx).
func IsAuthorization(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTHZ"
}

// IsNotFound reports whether err is a not-found error (NF_xxx).
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "NF"
}

// IsConflict reports whether err is a conflict error (CONF_xxx).
func IsConflict(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "CONF"
}

// IsInternal reports whether err is an internal error (INT_xxx).
func IsInternal(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "INT"
}

// IsUnavailable reports whether err is an unavailable-dependency error
// (UNAVAIL_xxx).
func IsUnavailable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "UNAVAIL"
}

// IsTimeout reports whether err is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "TIMEOUT"
}
