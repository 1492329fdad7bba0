package gate

import (
	"context"

	"github.com/StricklySoft/tokengate/pkg/authz"
	"github.com/StricklySoft/tokengate/pkg/token"
)

type contextKey int

const tokenKey contextKey = iota

// ContextWithToken attaches an authorized token to ctx.
func ContextWithToken(ctx context.Context, t *token.Token) context.Context {
	return context.WithValue(ctx, tokenKey, t)
}

// TokenFromContext returns the token attached by the gate, if any.
func TokenFromContext(ctx context.Context) (*token.Token, bool) {
	t, ok := ctx.Value(tokenKey).(*token.Token)
	return t, ok && t != nil
}

// MustTokenFromContext is TokenFromContext for handlers that only run
// behind the gate. It panics when no token is attached.
func MustTokenFromContext(ctx context.Context) *token.Token {
	t, ok := TokenFromContext(ctx)
	if !ok {
		panic("gate: no token in context; ensure the gate middleware is configured")
	}
	return t
}

// HasPermission evaluates permissions against the token in ctx. It is
// false when no token is attached.
func HasPermission(ctx context.Context, mode authz.Logical, permissions ...string) bool {
	t, _ := TokenFromContext(ctx)
	return authz.HasPermission(t, permissions, mode)
}

// HasRole evaluates roles against the token in ctx.
func HasRole(ctx context.Context, mode authz.Logical, roles ...string) bool {
	t, _ := TokenFromContext(ctx)
	return authz.HasRole(t, roles, mode)
}
