package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/tokengate/internal/testutil"
	"github.com/StricklySoft/tokengate/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

// attributeScope describes where a backend keeps token attributes.
type attributeScope int

const (
	// scopeEmbedded: attributes travel inside the signed token.
	scopeEmbedded attributeScope = iota
	// scopePerRow: each stored token keeps its own copy.
	scopePerRow
	// scopePerPrincipal: one shared copy per principal.
	scopePerPrincipal
)

type backendTraits struct {
	scope   attributeScope
	tracked bool // tokens can be listed, revoked and evicted
	roleIDs bool // UpdateRoleIDs is supported
}

type storeFactory func(t *testing.T, opts ...Option) Store

// runConformance exercises behaviour every backend shares, followed by the
// assertions that depend on the backend's traits.
func runConformance(t *testing.T, newStore storeFactory, traits backendTraits) {
	t.Run("TokenKeyIsStable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		k1, err := s.TokenKey(ctx)
		require.NoError(t, err)
		k2, err := s.TokenKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)

		_, err = token.DecodeKey(k1)
		assert.NoError(t, err)
	})

	t.Run("Healthy", func(t *testing.T) {
		assert.NoError(t, newStore(t).Health(context.Background()))
	})

	t.Run("CreateAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		issued, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{
			Permissions: fixtures.Permissions(),
			Roles:       fixtures.Roles(),
		}, fixtures.ExpireSeconds)
		require.NoError(t, err)
		assert.Equal(t, fixtures.Principal, issued.PrincipalID)
		assert.NotEmpty(t, issued.AccessToken)
		assert.Greater(t, issued.ExpireTime, issued.CreateTime)

		key, err := s.TokenKey(ctx)
		require.NoError(t, err)
		subject, _, err := token.NewCodec().Decode(issued.AccessToken, key)
		require.NoError(t, err)
		assert.Equal(t, fixtures.Principal, subject)

		found, err := s.FindToken(ctx, fixtures.Principal, issued.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, issued.AccessToken, found.AccessToken)
		assert.ElementsMatch(t, fixtures.Permissions(), found.Permissions)
		assert.ElementsMatch(t, fixtures.Roles(), found.Roles)
	})

	t.Run("DefaultExpireApplies", func(t *testing.T) {
		s := newStore(t, WithDefaultExpire(120))
		issued, err := s.CreateToken(context.Background(), fixtures.Principal, token.Attributes{}, 0)
		require.NoError(t, err)
		assert.InDelta(t, 120_000, issued.ExpireTime-issued.CreateTime, 1000)
	})

	t.Run("RequiresPrincipal", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateToken(context.Background(), "", token.Attributes{}, fixtures.ExpireSeconds)
		testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	})

	t.Run("RapidIssuanceIsDistinct", func(t *testing.T) {
		s := newStore(t)
		seen := make(map[string]bool)
		for range 5 {
			issued, err := s.CreateToken(context.Background(), fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
			require.NoError(t, err)
			assert.False(t, seen[issued.AccessToken], "duplicate access token")
			seen[issued.AccessToken] = true
		}
	})

	t.Run("FindForOtherPrincipalIsNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		issued, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)

		_, err = s.FindToken(ctx, fixtures.AltPrincipal, issued.AccessToken)
		testutil.RequireErrorCode(t, err, sserr.CodeNotFoundToken)
	})

	if traits.tracked {
		runTrackedConformance(t, newStore)
	} else {
		runUntrackedConformance(t, newStore)
	}

	switch traits.scope {
	case scopePerPrincipal:
		runPerPrincipalScope(t, newStore)
	case scopePerRow:
		runPerRowScope(t, newStore)
	case scopeEmbedded:
		runEmbeddedScope(t, newStore)
	}

	t.Run("UpdateRoleIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		issued, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)

		n, err := s.UpdateRoleIDs(ctx, fixtures.Principal, []string{fixtures.RoleIDUser})
		if !traits.roleIDs {
			testutil.RequireErrorCode(t, err, sserr.CodeInternalUnsupported)
			return
		}
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		found, err := s.FindToken(ctx, fixtures.Principal, issued.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, []string{fixtures.RoleIDUser}, found.RoleIDs)
	})
}

func runTrackedConformance(t *testing.T, newStore storeFactory) {
	t.Run("UnknownTokenIsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindToken(context.Background(), fixtures.Principal, "never-issued")
		testutil.RequireErrorCode(t, err, sserr.CodeNotFoundToken)
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		issued, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)

		n, err := s.RemoveToken(ctx, fixtures.Principal, issued.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.RemoveToken(ctx, fixtures.Principal, issued.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		_, err = s.FindToken(ctx, fixtures.Principal, issued.AccessToken)
		testutil.RequireErrorCode(t, err, sserr.CodeNotFoundToken)
	})

	t.Run("RemoveAllForPrincipal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for range 3 {
			_, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
			require.NoError(t, err)
		}
		other, err := s.CreateToken(ctx, fixtures.AltPrincipal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)

		n, err := s.RemoveAllForPrincipal(ctx, fixtures.Principal)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		remaining, err := s.FindTokensByPrincipal(ctx, fixtures.Principal)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		_, err = s.FindToken(ctx, fixtures.AltPrincipal, other.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("FindTokensByPrincipalIsOldestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var want []string
		for range 3 {
			issued, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
			require.NoError(t, err)
			want = append(want, issued.AccessToken)
		}

		tokens, err := s.FindTokensByPrincipal(ctx, fixtures.Principal)
		require.NoError(t, err)
		got := make([]string, len(tokens))
		for i, tk := range tokens {
			got[i] = tk.AccessToken
		}
		assert.Equal(t, want, got)
	})

	t.Run("EvictsOldestBeyondMaxToken", func(t *testing.T) {
		s := newStore(t, WithMaxToken(3))
		ctx := context.Background()
		var issued []*token.Token
		for range 5 {
			tk, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
			require.NoError(t, err)
			issued = append(issued, tk)
		}

		tokens, err := s.FindTokensByPrincipal(ctx, fixtures.Principal)
		require.NoError(t, err)
		assert.Len(t, tokens, 3)

		for i, tk := range issued {
			_, err := s.FindToken(ctx, fixtures.Principal, tk.AccessToken)
			if i < 2 {
				testutil.AssertErrorCode(t, err, sserr.CodeNotFoundToken, fmt.Sprintf("token %d should be evicted", i))
			} else {
				assert.NoError(t, err, "token %d should be live", i)
			}
		}
	})

	t.Run("UnlimitedNeverEvicts", func(t *testing.T) {
		s := newStore(t, WithMaxToken(Unlimited))
		ctx := context.Background()
		for range 6 {
			_, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
			require.NoError(t, err)
		}
		tokens, err := s.FindTokensByPrincipal(ctx, fixtures.Principal)
		require.NoError(t, err)
		assert.Len(t, tokens, 6)
	})
}

func runUntrackedConformance(t *testing.T, newStore storeFactory) {
	t.Run("LifecycleOperationsUnsupported", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindTokensByPrincipal(ctx, fixtures.Principal)
		testutil.AssertErrorCode(t, err, sserr.CodeInternalUnsupported)
		_, err = s.RemoveToken(ctx, fixtures.Principal, "x")
		testutil.AssertErrorCode(t, err, sserr.CodeInternalUnsupported)
		_, err = s.RemoveAllForPrincipal(ctx, fixtures.Principal)
		testutil.AssertErrorCode(t, err, sserr.CodeInternalUnsupported)
	})

	t.Run("MaxTokenIgnored", func(t *testing.T) {
		s := newStore(t, WithMaxToken(1))
		ctx := context.Background()
		first, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)
		_, err = s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)

		_, err = s.FindToken(ctx, fixtures.Principal, first.AccessToken)
		assert.NoError(t, err)
	})
}

// issuePair issues two tokens for Principal with different permissions.
func issuePair(t *testing.T, s Store) (first, second *token.Token) {
	t.Helper()
	ctx := context.Background()
	first, err := s.CreateToken(ctx, fixtures.Principal,
		token.Attributes{Permissions: []string{fixtures.PermOrderRead}}, fixtures.ExpireSeconds)
	require.NoError(t, err)
	second, err = s.CreateToken(ctx, fixtures.Principal,
		token.Attributes{Permissions: []string{fixtures.PermOrderWrite}}, fixtures.ExpireSeconds)
	require.NoError(t, err)
	return first, second
}

func permissionsOf(t *testing.T, s Store, accessToken string) []string {
	t.Helper()
	found, err := s.FindToken(context.Background(), fixtures.Principal, accessToken)
	require.NoError(t, err)
	return found.Permissions
}

func runPerPrincipalScope(t *testing.T, newStore storeFactory) {
	t.Run("LaterTokenReplacesSharedAttributes", func(t *testing.T) {
		s := newStore(t)
		first, second := issuePair(t, s)
		assert.Equal(t, []string{fixtures.PermOrderWrite}, permissionsOf(t, s, first.AccessToken))
		assert.Equal(t, []string{fixtures.PermOrderWrite}, permissionsOf(t, s, second.AccessToken))
	})

	t.Run("EmptyAttributesInheritShared", func(t *testing.T) {
		s := newStore(t)
		issuePair(t, s)
		bare, err := s.CreateToken(context.Background(), fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)
		assert.Equal(t, []string{fixtures.PermOrderWrite}, permissionsOf(t, s, bare.AccessToken))
	})

	t.Run("UpdateAppliesToLiveTokens", func(t *testing.T) {
		s := newStore(t)
		first, second := issuePair(t, s)

		n, err := s.UpdatePermissions(context.Background(), fixtures.Principal, []string{fixtures.PermOrderAdmin})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, []string{fixtures.PermOrderAdmin}, permissionsOf(t, s, first.AccessToken))
		assert.Equal(t, []string{fixtures.PermOrderAdmin}, permissionsOf(t, s, second.AccessToken))
	})

	t.Run("UpdateRolesKeepsSignature", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		issued, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{Roles: fixtures.Roles()}, fixtures.ExpireSeconds)
		require.NoError(t, err)

		_, err = s.UpdateRoles(ctx, fixtures.Principal, []string{fixtures.RoleAdmin})
		require.NoError(t, err)

		found, err := s.FindToken(ctx, fixtures.Principal, issued.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, issued.AccessToken, found.AccessToken)
		assert.Equal(t, []string{fixtures.RoleAdmin}, found.Roles)
	})
}

func runPerRowScope(t *testing.T, newStore storeFactory) {
	t.Run("EachTokenKeepsItsAttributes", func(t *testing.T) {
		s := newStore(t)
		first, second := issuePair(t, s)
		assert.Equal(t, []string{fixtures.PermOrderRead}, permissionsOf(t, s, first.AccessToken))
		assert.Equal(t, []string{fixtures.PermOrderWrite}, permissionsOf(t, s, second.AccessToken))
	})

	t.Run("EmptyAttributesStayEmpty", func(t *testing.T) {
		s := newStore(t)
		issuePair(t, s)
		bare, err := s.CreateToken(context.Background(), fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
		require.NoError(t, err)
		assert.Empty(t, permissionsOf(t, s, bare.AccessToken))
	})

	t.Run("UpdateRewritesEveryRow", func(t *testing.T) {
		s := newStore(t)
		first, second := issuePair(t, s)

		n, err := s.UpdatePermissions(context.Background(), fixtures.Principal, []string{fixtures.PermOrderAdmin})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, []string{fixtures.PermOrderAdmin}, permissionsOf(t, s, first.AccessToken))
		assert.Equal(t, []string{fixtures.PermOrderAdmin}, permissionsOf(t, s, second.AccessToken))
	})
}

func runEmbeddedScope(t *testing.T, newStore storeFactory) {
	t.Run("EachTokenCarriesItsAttributes", func(t *testing.T) {
		s := newStore(t)
		first, second := issuePair(t, s)
		assert.Equal(t, []string{fixtures.PermOrderRead}, permissionsOf(t, s, first.AccessToken))
		assert.Equal(t, []string{fixtures.PermOrderWrite}, permissionsOf(t, s, second.AccessToken))
	})

	t.Run("UpdatesUnsupported", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.UpdatePermissions(ctx, fixtures.Principal, []string{fixtures.PermOrderAdmin})
		testutil.AssertErrorCode(t, err, sserr.CodeInternalUnsupported)
		_, err = s.UpdateRoles(ctx, fixtures.Principal, []string{fixtures.RoleAdmin})
		testutil.AssertErrorCode(t, err, sserr.CodeInternalUnsupported)
	})
}
