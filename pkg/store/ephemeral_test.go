package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/tokengate/internal/testutil"
	"github.com/StricklySoft/tokengate/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

func newEphemeralStore(t *testing.T, opts ...Option) Store {
	t.Helper()
	s, err := NewEphemeral(fixtures.Secret, opts...)
	require.NoError(t, err)
	return s
}

func TestEphemeralStore_Conformance(t *testing.T) {
	runConformance(t, newEphemeralStore, backendTraits{scope: scopeEmbedded})
}

func TestNewEphemeral_ShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewEphemeral("too-short")
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRange)
}

func TestEphemeralStore_SharedSecretAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newEphemeralStore(t)
	b := newEphemeralStore(t)

	issued, err := a.CreateToken(ctx, fixtures.Principal, token.Attributes{
		Permissions: fixtures.Permissions(),
		RoleIDs:     []string{fixtures.RoleIDUser},
	}, fixtures.ExpireSeconds)
	require.NoError(t, err)

	found, err := b.FindToken(ctx, fixtures.Principal, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, fixtures.Permissions(), found.Permissions)
	assert.Equal(t, []string{fixtures.RoleIDUser}, found.RoleIDs)
	assert.Nil(t, found.Roles)
}

func TestEphemeralStore_FindToken_DifferentSecret(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newEphemeralStore(t)
	b, err := NewEphemeral(fixtures.Secret + "-other")
	require.NoError(t, err)

	issued, err := a.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
	require.NoError(t, err)

	_, err = b.FindToken(ctx, fixtures.Principal, issued.AccessToken)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

func TestEphemeralStore_FindToken_Expired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newEphemeralStore(t, WithCodec(token.NewCodec(token.WithClock(func() time.Time { return now }))))
	later := newEphemeralStore(t, WithCodec(token.NewCodec(token.WithClock(func() time.Time { return now.Add(2 * time.Hour) }))))

	issued, err := issuer.CreateToken(ctx, fixtures.Principal, token.Attributes{}, fixtures.ExpireSeconds)
	require.NoError(t, err)

	_, err = later.FindToken(ctx, fixtures.Principal, issued.AccessToken)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationExpired)
}

func TestEphemeralStore_StoreTokenIsNoop(t *testing.T) {
	t.Parallel()
	s := newEphemeralStore(t)
	assert.NoError(t, s.StoreToken(context.Background(), &token.Token{PrincipalID: fixtures.Principal}))
	assert.NoError(t, s.Close())
}

func TestStringsClaim(t *testing.T) {
	t.Parallel()
	claims := map[string]any{
		"mixed": []any{"a", 1.0, "b"},
		"empty": []any{},
		"wrong": "a",
	}
	assert.Equal(t, []string{"a", "b"}, stringsClaim(claims, "mixed"))
	assert.Nil(t, stringsClaim(claims, "empty"))
	assert.Nil(t, stringsClaim(claims, "wrong"))
	assert.Nil(t, stringsClaim(claims, "missing"))
}
