package store

import (
	"context"

	"github.com/google/uuid"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

const ephemeralBackend = "ephemeral"

// Claim names used by the ephemeral backend to embed attributes.
const (
	claimPermissions = "permissions"
	claimRoles       = "roles"
	claimRoleIDs     = "roleIds"
	claimNonce       = "nonce"
)

// EphemeralStore is a stateless Store. Tokens embed their attributes as
// claims and are signed with a key derived from a fixed secret, so any
// process configured with the same secret accepts them.
type EphemeralStore struct {
	opts options
	key  string
}

var _ Store = (*EphemeralStore)(nil)

// NewEphemeral returns a stateless store keyed by secret. The secret must be
// at least 32 bytes.
func NewEphemeral(secret string, opts ...Option) (*EphemeralStore, error) {
	key, err := token.KeyFromSecret(secret)
	if err != nil {
		return nil, err
	}
	return &EphemeralStore{opts: newOptions(opts), key: key}, nil
}

// TokenKey returns the key derived from the configured secret.
func (s *EphemeralStore) TokenKey(context.Context) (string, error) {
	return s.key, nil
}

// CreateToken signs a token carrying attrs as claims.
func (s *EphemeralStore) CreateToken(_ context.Context, principalID string, attrs token.Attributes, expireSeconds int64) (*token.Token, error) {
	claims := map[string]any{
		claimPermissions: nonNil(attrs.Permissions),
		claimRoles:       nonNil(attrs.Roles),
		claimRoleIDs:     nonNil(attrs.RoleIDs),
		claimNonce:       uuid.NewString(),
	}
	return s.opts.issue(principalID, attrs, expireSeconds, s.key, claims)
}

// StoreToken is a no-op.
func (s *EphemeralStore) StoreToken(context.Context, *token.Token) error {
	return nil
}

// FindToken verifies accessToken and rebuilds the token from its claims.
// A token issued for another principal is reported as not found.
func (s *EphemeralStore) FindToken(_ context.Context, principalID, accessToken string) (*token.Token, error) {
	subject, claims, err := s.opts.codec.Decode(accessToken, s.key)
	if err != nil {
		return nil, err
	}
	if subject != principalID {
		return nil, notFound(principalID)
	}
	t := token.Reconstruct(principalID, accessToken, token.Attributes{
		Permissions: stringsClaim(claims, claimPermissions),
		Roles:       stringsClaim(claims, claimRoles),
		RoleIDs:     stringsClaim(claims, claimRoleIDs),
	})
	t.Key = s.key
	return t, nil
}

// FindTokensByPrincipal fails with CodeInternalUnsupported. Ephemeral
// tokens are not recorded anywhere, so there is nothing to list.
func (s *EphemeralStore) FindTokensByPrincipal(context.Context, string) ([]*token.Token, error) {
	return nil, sserr.Unsupported(ephemeralBackend, "listing tokens")
}

// RemoveToken fails with CodeInternalUnsupported. An ephemeral token stays
// valid until it expires or the secret changes.
func (s *EphemeralStore) RemoveToken(context.Context, string, string) (int64, error) {
	return 0, sserr.Unsupported(ephemeralBackend, "removing tokens")
}

// RemoveAllForPrincipal fails with CodeInternalUnsupported.
func (s *EphemeralStore) RemoveAllForPrincipal(context.Context, string) (int64, error) {
	return 0, sserr.Unsupported(ephemeralBackend, "removing tokens")
}

// UpdateRoles fails with CodeInternalUnsupported. Roles are signed into
// the token and change only when a new token is issued.
func (s *EphemeralStore) UpdateRoles(context.Context, string, []string) (int64, error) {
	return 0, sserr.Unsupported(ephemeralBackend, "updating roles")
}

// UpdatePermissions fails with CodeInternalUnsupported. Permissions are
// signed into the token and change only when a new token is issued.
func (s *EphemeralStore) UpdatePermissions(context.Context, string, []string) (int64, error) {
	return 0, sserr.Unsupported(ephemeralBackend, "updating permissions")
}

// UpdateRoleIDs fails with CodeInternalUnsupported.
func (s *EphemeralStore) UpdateRoleIDs(context.Context, string, []string) (int64, error) {
	return 0, sserr.Unsupported(ephemeralBackend, "updating role ids")
}

// Health always succeeds; the backend has no dependency.
func (s *EphemeralStore) Health(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *EphemeralStore) Close() error {
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// stringsClaim reads a JSON array claim. Non-string elements are skipped;
// a missing or empty claim yields nil.
func stringsClaim(claims map[string]any, name string) []string {
	raw, ok := claims[name].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
