// Package errors defines the structured error type shared by every tokengate
// package. Each error carries a machine-readable Code whose category prefix
// decides how transports present it (HTTP status, gRPC code).
//
// # Categories
//
//	VAL_xxx     - invalid input or configuration values (400)
//	AUTH_xxx    - the caller could not be authenticated (401)
//	AUTHZ_xxx   - the caller is authenticated but not allowed (403)
//	NF_xxx      - the addressed record does not exist (404)
//	INT_xxx     - internal or unsupported operations (500)
//	UNAVAIL_xxx - a backing dependency is unreachable (503)
//	TIMEOUT_xxx - a backing dependency did not answer in time (504)
//
// The access gate relies on four authentication and authorization codes
// staying distinct: CodeAuthenticationMissing, CodeAuthenticationExpired,
// CodeAuthenticationInvalid and CodeAuthorizationDenied.
//
// # Usage
//
//	if err != nil {
//	    return sserr.Wrap(err, sserr.CodeUnavailableTokenStore, "failed to load tokens")
//	}
//
//	if sserr.HasCode(err, sserr.CodeAuthenticationExpired) {
//	    // ask the client to re-authenticate
//	}
package errors
