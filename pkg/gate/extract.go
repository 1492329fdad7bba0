package gate

import (
	"net/http"
	"strings"
)

const (
	// QueryParam carries a token in the URL; it takes precedence over the
	// Authorization header.
	QueryParam = "access_token"

	// HeaderAuthorization carries "Bearer <token>".
	HeaderAuthorization = "Authorization"

	bearerPrefix = "Bearer "
)

// Extract returns the raw token of r, looking at the access_token query
// parameter first and the Authorization header second.
func Extract(r *http.Request) (string, bool) {
	if q := strings.TrimSpace(r.URL.Query().Get(QueryParam)); q != "" {
		return q, true
	}
	return ExtractBearer(r.Header.Get(HeaderAuthorization))
}

// ExtractBearer strips a case-insensitive "Bearer " prefix from an
// Authorization value. Values without the prefix yield false.
func ExtractBearer(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	return raw, raw != ""
}
