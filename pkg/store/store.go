// Package store persists issued tokens and their authorization attributes.
//
// Three backends implement [Store]:
//
//   - [EphemeralStore] keeps nothing. The token carries its own attributes
//     and is verified with a key derived from a configured secret. Tokens
//     cannot be listed, revoked or updated, and no eviction applies.
//   - [PostgresStore] keeps one row per token. Attributes are stored on
//     each row, so a token keeps the attributes it was issued with until
//     an update rewrites every row of the principal.
//   - [RedisStore] keeps a list of access tokens per principal and one set
//     per attribute kind per principal. Attributes are shared by all of a
//     principal's tokens: issuing a token with non-empty permissions
//     replaces the permissions every live token of that principal sees.
//
// The relational and key-value backends bound the number of live tokens per
// principal (see [WithMaxToken]). Eviction runs after the insert and removes
// the oldest tokens first, so a newly issued token is never dropped while an
// older one of the same principal survives.
package store

import (
	"context"
	"log/slog"
	"slices"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

// Unlimited disables eviction.
const Unlimited = -1

// Store persists and looks up tokens. Implementations are safe for
// concurrent use.
//
// Errors carry pkg/errors codes: CodeNotFoundToken when FindToken has no
// match, CodeUnavailableTokenStore or CodeUnavailableSigningKey when the
// backend fails, CodeInternalUnsupported when the backend cannot perform an
// operation at all.
type Store interface {
	// TokenKey returns the hex signing key for this store.
	TokenKey(ctx context.Context) (string, error)

	// CreateToken issues, persists and returns a token for principalID.
	// A non-positive expireSeconds selects the configured default.
	CreateToken(ctx context.Context, principalID string, attrs token.Attributes, expireSeconds int64) (*token.Token, error)

	// StoreToken persists an already issued token without eviction.
	StoreToken(ctx context.Context, t *token.Token) error

	// FindToken returns the live token addressed by (principalID, accessToken).
	FindToken(ctx context.Context, principalID, accessToken string) (*token.Token, error)

	// FindTokensByPrincipal returns the principal's tokens, oldest first.
	FindTokensByPrincipal(ctx context.Context, principalID string) ([]*token.Token, error)

	// RemoveToken deletes one token and returns how many were removed.
	RemoveToken(ctx context.Context, principalID, accessToken string) (int64, error)

	// RemoveAllForPrincipal deletes every token of the principal.
	RemoveAllForPrincipal(ctx context.Context, principalID string) (int64, error)

	// UpdateRoles, UpdatePermissions and UpdateRoleIDs replace one attribute
	// kind for all of the principal's tokens and return how many tokens
	// were affected. Signatures are not touched.
	UpdateRoles(ctx context.Context, principalID string, roles []string) (int64, error)
	UpdatePermissions(ctx context.Context, principalID string, permissions []string) (int64, error)
	UpdateRoleIDs(ctx context.Context, principalID string, roleIDs []string) (int64, error)

	// Health reports whether the backend is reachable. The ephemeral
	// backend has no dependency and is always healthy.
	Health(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

type options struct {
	maxToken      int
	defaultExpire int64
	codec         *token.Codec
	logger        *slog.Logger
	keyOpts       []token.KeyOption
}

// Option configures a store.
type Option func(*options)

// WithMaxToken bounds the live tokens per principal. Values below 1,
// including Unlimited, disable eviction. The ephemeral backend ignores it.
func WithMaxToken(n int) Option {
	return func(o *options) {
		o.maxToken = n
	}
}

// WithDefaultExpire sets the lifetime in seconds used when CreateToken is
// called without a positive lifetime.
func WithDefaultExpire(seconds int64) Option {
	return func(o *options) {
		o.defaultExpire = seconds
	}
}

// WithCodec replaces the token codec, typically to inject a clock.
func WithCodec(c *token.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithKeyOptions passes options to the signing key authority of the
// relational and key-value backends.
func WithKeyOptions(opts ...token.KeyOption) Option {
	return func(o *options) {
		o.keyOpts = append(o.keyOpts, opts...)
	}
}

func newOptions(opts []Option) options {
	o := options{maxToken: Unlimited}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec == nil {
		o.codec = token.NewCodec()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o *options) expireSeconds(requested int64) int64 {
	if requested > 0 {
		return requested
	}
	return o.defaultExpire
}

// excess returns how many of count tokens exceed the configured bound.
func (o *options) excess(count int64) int64 {
	if o.maxToken < 1 || count <= int64(o.maxToken) {
		return 0
	}
	return count - int64(o.maxToken)
}

// issue signs a token for principalID with attrs attached.
func (o *options) issue(principalID string, attrs token.Attributes, expireSeconds int64, keyHex string, claims map[string]any) (*token.Token, error) {
	if principalID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "store: principal id is required")
	}
	t, err := o.codec.Issue(principalID, claims, o.expireSeconds(expireSeconds), keyHex)
	if err != nil {
		return nil, err
	}
	t.Attributes = cloneAttributes(attrs)
	return t, nil
}

func cloneAttributes(a token.Attributes) token.Attributes {
	return token.Attributes{
		Permissions: slices.Clone(a.Permissions),
		Roles:       slices.Clone(a.Roles),
		RoleIDs:     slices.Clone(a.RoleIDs),
	}
}

func unavailable(err error, message string) error {
	if sserr.HasCode(err, sserr.CodeUnavailableSigningKey) {
		return err
	}
	return sserr.Wrap(err, sserr.CodeUnavailableTokenStore, message)
}

func notFound(principalID string) error {
	return sserr.New(sserr.CodeNotFoundToken, "store: token not found").WithDetail("principal", principalID)
}
