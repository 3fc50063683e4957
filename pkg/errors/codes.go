package errors

// Code is a machine-readable error code categorizing a failure. Codes
// follow the pattern CATEGORY_XXX where CATEGORY is a short identifier
// (VAL, AUTH, AUTHZ, NF, CONF, INT, UNAVAIL, TIMEOUT) and XXX is a
// three-digit numeric code.
//
// Codes are stable once assigned and are used for alerting, log
// correlation, and mapping failures to HTTP responses.
type Code string

const (
	// Validation errors (VAL_xxx) - HTTP 400

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationFormat indicates a field has an invalid format
	// (bad UUID, bad date, non-numeric pagination parameter).
	CodeValidationFormat Code = "VAL_002"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_003"

	// Authentication errors (AUTH_xxx) - HTTP 401

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationInvalid indicates the bearer token is invalid:
	// bad prefix, unknown kid, wrong algorithm, bad signature, expired,
	// wrong audience, or unparseable claims. All token failures collapse
	// to this single code so the response never reveals which check
	// failed.
	CodeAuthenticationInvalid Code = "AUTH_002"

	// Authorization errors (AUTHZ_xxx) - HTTP 403

	// CodeAuthorizationDenied indicates the authenticated principal
	// lacks the permission required by the operation.
	CodeAuthorizationDenied Code = "AUTHZ_001"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates the requested resource does not exist.
	CodeNotFound Code = "NF_001"

	// Conflict errors (CONF_xxx) - HTTP 409

	// CodeConflictAlreadyExists indicates the resource being created
	// already exists (unique or check constraint violation).
	CodeConflictAlreadyExists Code = "CONF_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailableDependency indicates an upstream dependency
	// (identity provider, object store) could not be reached or
	// returned an unusable response.
	CodeUnavailableDependency Code = "UNAVAIL_001"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the code (e.g. "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
