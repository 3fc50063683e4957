// Package api exposes the gateway's HTTP surface: a two-level path
// router that authenticates every request, enforces per-operation
// permissions, and dispatches to the person and speech sub-routers.
//
// Every response is either a 200 with the operation's JSON value or an
// error envelope {"code": <int>, "error": "<Tag>", "details": "<text>"}
// whose HTTP status equals the code field.
package api

import "fmt"

// HTTPError is the error envelope returned to clients. Code doubles as
// the HTTP status of the response.
type HTTPError struct {
	Code    int    `json:"code"`
	Tag     string `json:"error"`
	Details string `json:"details"`
}

// NewHTTPError builds an error envelope.
func NewHTTPError(code int, tag, details string) HTTPError {
	return HTTPError{Code: code, Tag: tag, Details: details}
}

// Error implements the error interface.
func (e HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.Tag, e.Details)
}

// Well-known envelopes shared by every route.
var (
	// ErrInternal hides any unexpected server-side failure. The real
	// cause is logged, never returned.
	ErrInternal = HTTPError{
		Code:    500,
		Tag:     "InternalError",
		Details: "An internal error occured, please contact our technical service",
	}

	// ErrNotFound covers unknown services, unmapped method and path
	// combinations, and missing resources without a dedicated tag.
	ErrNotFound = HTTPError{
		Code:    404,
		Tag:     "NotFound",
		Details: "The requested resource is not found",
	}

	// ErrAccessDenied is returned when the principal lacks the
	// operation's required permission.
	ErrAccessDenied = HTTPError{
		Code:    403,
		Tag:     "AccessDenied",
		Details: "You cannot access to this ressource",
	}

	// ErrInvalidToken is the uniform rejection for every token failure.
	// It never reveals which verification check failed.
	ErrInvalidToken = HTTPError{
		Code:    400,
		Tag:     "InvalidToken",
		Details: "The token you provided is invalid",
	}

	// ErrInvalidRoute is returned when the path does not start with the
	// /api prefix.
	ErrInvalidRoute = HTTPError{
		Code:    400,
		Tag:     "InvalidRoute",
		Details: "The route format seems invalid",
	}

	// ErrInvalidFormat is returned when a request body cannot be decoded
	// into the operation's input shape.
	ErrInvalidFormat = HTTPError{
		Code:    400,
		Tag:     "InvalidFormat",
		Details: "The body format is invalid. Please refer to the documentation",
	}
)
