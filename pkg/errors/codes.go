package errors

// Code is a machine-readable error identifier of the form CATEGORY_NNN.
// Codes are stable once published; new conditions get new numbers.
type Code string

const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required value is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a value has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside its accepted range.
	CodeValidationRange Code = "VAL_004"
)

const (
	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a correctly signed token whose
	// expiry has passed. Clients should re-authenticate.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a token that failed verification,
	// could not be parsed, or is not tracked by the token store.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationMissing indicates that no credential was presented.
	CodeAuthenticationMissing Code = "AUTH_004"
)

const (
	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates a live token that lacks the
	// permissions or roles an operation requires.
	CodeAuthorizationDenied Code = "AUTHZ_002"
)

const (
	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundToken indicates no token record exists for a
	// (principal, access token) pair.
	CodeNotFoundToken Code = "NF_002"
)

const (
	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database or cache command failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates invalid or missing configuration.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalUnsupported indicates the configured backend cannot
	// perform the requested operation.
	CodeInternalUnsupported Code = "INT_004"
)

const (
	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableSigningKey indicates the signing key could not be read
	// or persisted.
	CodeUnavailableSigningKey Code = "UNAVAIL_003"

	// CodeUnavailableTokenStore indicates the token store backend failed.
	CodeUnavailableTokenStore Code = "UNAVAIL_004"
)

const (
	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database or cache command timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore, e.g. "AUTH".
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
