package gate

import (
	"net/http"

	"github.com/StricklySoft/tokengate/pkg/authz"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// Resolver returns the requirement for an HTTP request; nil means the
// request only needs a valid token.
type Resolver func(*http.Request) *authz.Requirement

// Require returns a Resolver that always yields req.
func Require(req *authz.Requirement) Resolver {
	return func(*http.Request) *authz.Requirement { return req }
}

// PathPermission is a Resolver that requires a permission named after the
// request path, for deployments that grant access by URL.
func PathPermission(r *http.Request) *authz.Requirement {
	return authz.AllOf(r.URL.Path)
}

// HTTPMiddleware runs the gate on every request. Authorized requests reach
// next with the token in their context; see TokenFromContext. Rejections
// are answered with 401, 403 or 503.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("/orders", gate.HTTPMiddleware(g, gate.Require(authz.AllOf("order:read")))(orders))
func HTTPMiddleware(g *Gate, resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := Extract(r)
			var req *authz.Requirement
			if resolve != nil {
				req = resolve(r)
			}

			t, err := g.Authorize(r.Context(), raw, req)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithToken(r.Context(), t)))
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	switch {
	case e.Code == sserr.CodeAuthenticationMissing:
		w.Header().Set("WWW-Authenticate", "Bearer")
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	http.Error(w, e.Message, status)
}
