package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/StricklySoft/tokengate/internal/testutil/fixtures"
	"github.com/StricklySoft/tokengate/pkg/authz"
	"github.com/StricklySoft/tokengate/pkg/token"
)

func TestTokenFromContext(t *testing.T) {
	t.Parallel()

	_, ok := TokenFromContext(context.Background())
	assert.False(t, ok)

	tk := &token.Token{PrincipalID: fixtures.Principal}
	got, ok := TokenFromContext(ContextWithToken(context.Background(), tk))
	assert.True(t, ok)
	assert.Same(t, tk, got)

	_, ok = TokenFromContext(ContextWithToken(context.Background(), nil))
	assert.False(t, ok)
}

func TestMustTokenFromContext_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { MustTokenFromContext(context.Background()) })
}

func TestContextChecks(t *testing.T) {
	t.Parallel()
	ctx := ContextWithToken(context.Background(), &token.Token{
		PrincipalID: fixtures.Principal,
		Attributes: token.Attributes{
			Permissions: fixtures.Permissions(),
			Roles:       fixtures.Roles(),
		},
	})

	assert.True(t, HasPermission(ctx, authz.AND, fixtures.PermOrderRead))
	assert.False(t, HasPermission(ctx, authz.AND, fixtures.PermOrderRead, fixtures.PermOrderWrite))
	assert.True(t, HasPermission(ctx, authz.OR, fixtures.PermOrderRead, fixtures.PermOrderWrite))
	assert.True(t, HasRole(ctx, authz.AND, fixtures.RoleUser))
	assert.False(t, HasRole(ctx, authz.OR, fixtures.RoleAdmin))

	assert.False(t, HasPermission(context.Background(), authz.OR, fixtures.PermOrderRead))
}
