package store

import (
	"context"
	"errors"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/StricklySoft/tokengate/pkg/clients/redis"
	"github.com/StricklySoft/tokengate/pkg/token"
)

const redisBackend = "redis"

// Key layout. Attribute sets are per principal, shared by all of the
// principal's tokens.
const (
	redisSigningKey      = "oauth_token_key"
	redisTokenListPrefix = "oauth_token:"
	redisPermPrefix      = "oauth_prem:"
	redisRolePrefix      = "oauth_role:"
	redisRoleIDPrefix    = "oauth_role_ids:"
)

// RedisStore keeps an ordered list of access tokens per principal plus one
// set per attribute kind.
//
// Tokens are appended at the tail of oauth_token:{principal}. Eviction
// trims the list to its newest entries with LTRIM, which leaves the same
// result however many creators run it concurrently.
//
// Attribute sets are shared by all of a principal's tokens. A token stored
// with an empty attribute list leaves the matching set untouched, and
// RemoveAllForPrincipal deletes the token list only.
type RedisStore struct {
	client *redis.Client
	keys   *token.KeyAuthority
	opts   options
}

var _ Store = (*RedisStore)(nil)

// NewRedis returns a store on client. The signing key lives at
// oauth_token_key and is created on first use.
func NewRedis(client *redis.Client, opts ...Option) *RedisStore {
	o := newOptions(opts)
	return &RedisStore{
		client: client,
		keys:   token.NewKeyAuthority(&redisKeyStore{client: client}, o.keyOpts...),
		opts:   o,
	}
}

// TokenKey returns the signing key at oauth_token_key, creating it on
// first use. The key is cached for the life of the store.
func (s *RedisStore) TokenKey(ctx context.Context) (string, error) {
	return s.keys.Key(ctx)
}

// CreateToken issues a token, appends it to the principal's list and trims
// the oldest entries beyond the configured bound.
func (s *RedisStore) CreateToken(ctx context.Context, principalID string, attrs token.Attributes, expireSeconds int64) (*token.Token, error) {
	key, err := s.keys.Key(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.opts.issue(principalID, attrs, expireSeconds, key, nil)
	if err != nil {
		return nil, err
	}
	if err := s.StoreToken(ctx, t); err != nil {
		return nil, err
	}
	s.evict(ctx, principalID)
	return t, nil
}

// StoreToken appends the token and replaces each attribute set for which
// the token carries values. Empty attribute lists leave the existing sets
// alone.
func (s *RedisStore) StoreToken(ctx context.Context, t *token.Token) error {
	err := s.client.Tx(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, redisTokenListPrefix+t.PrincipalID, t.AccessToken)
		replaceSet(ctx, pipe, redisPermPrefix+t.PrincipalID, t.Permissions)
		replaceSet(ctx, pipe, redisRolePrefix+t.PrincipalID, t.Roles)
		replaceSet(ctx, pipe, redisRoleIDPrefix+t.PrincipalID, t.RoleIDs)
		return nil
	})
	if err != nil {
		return unavailable(err, "store: failed to store token")
	}
	return nil
}

// FindToken checks list membership and attaches the principal's current
// attribute sets.
func (s *RedisStore) FindToken(ctx context.Context, principalID, accessToken string) (*token.Token, error) {
	list, err := s.client.LRange(ctx, redisTokenListPrefix+principalID, 0, -1)
	if err != nil {
		return nil, unavailable(err, "store: failed to read token list")
	}
	if !slices.Contains(list, accessToken) {
		return nil, notFound(principalID)
	}
	attrs, err := s.attributes(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return token.Reconstruct(principalID, accessToken, attrs), nil
}

// FindTokensByPrincipal returns the principal's tokens in list order,
// oldest first. Every token carries the same shared attribute sets.
func (s *RedisStore) FindTokensByPrincipal(ctx context.Context, principalID string) ([]*token.Token, error) {
	list, err := s.client.LRange(ctx, redisTokenListPrefix+principalID, 0, -1)
	if err != nil {
		return nil, unavailable(err, "store: failed to read token list")
	}
	if len(list) == 0 {
		return nil, nil
	}
	attrs, err := s.attributes(ctx, principalID)
	if err != nil {
		return nil, err
	}
	out := make([]*token.Token, 0, len(list))
	for _, access := range list {
		out = append(out, token.Reconstruct(principalID, access, cloneAttributes(attrs)))
	}
	return out, nil
}

// RemoveToken removes every occurrence of accessToken from the
// principal's list and returns how many were removed.
func (s *RedisStore) RemoveToken(ctx context.Context, principalID, accessToken string) (int64, error) {
	n, err := s.client.LRem(ctx, redisTokenListPrefix+principalID, 0, accessToken)
	if err != nil {
		return 0, unavailable(err, "store: failed to remove token")
	}
	return n, nil
}

// RemoveAllForPrincipal drops the token list. Attribute sets are kept and
// apply to the principal's next tokens unless those carry their own.
func (s *RedisStore) RemoveAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	var length *goredis.IntCmd
	err := s.client.Tx(ctx, func(pipe goredis.Pipeliner) error {
		length = pipe.LLen(ctx, redisTokenListPrefix+principalID)
		pipe.Del(ctx, redisTokenListPrefix+principalID)
		return nil
	})
	if err != nil {
		return 0, unavailable(err, "store: failed to remove tokens")
	}
	return length.Val(), nil
}

// UpdateRoles replaces the principal's role set.
func (s *RedisStore) UpdateRoles(ctx context.Context, principalID string, roles []string) (int64, error) {
	return s.update(ctx, principalID, redisRolePrefix, roles)
}

// UpdatePermissions replaces the principal's permission set.
func (s *RedisStore) UpdatePermissions(ctx context.Context, principalID string, permissions []string) (int64, error) {
	return s.update(ctx, principalID, redisPermPrefix, permissions)
}

// UpdateRoleIDs replaces the principal's role id set.
func (s *RedisStore) UpdateRoleIDs(ctx context.Context, principalID string, roleIDs []string) (int64, error) {
	return s.update(ctx, principalID, redisRoleIDPrefix, roleIDs)
}

// update replaces one attribute set and reports the number of live tokens
// that now see it. An empty values list clears the set.
func (s *RedisStore) update(ctx context.Context, principalID, prefix string, values []string) (int64, error) {
	live, err := s.client.LLen(ctx, redisTokenListPrefix+principalID)
	if err != nil {
		return 0, unavailable(err, "store: failed to count tokens")
	}
	err = s.client.Tx(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, prefix+principalID)
		if len(values) > 0 {
			pipe.SAdd(ctx, prefix+principalID, members(values)...)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err, "store: failed to update attributes")
	}
	return live, nil
}

// evict trims the principal's list to its newest maxToken entries. LTRIM
// is idempotent, so concurrent creators converge on the same bound.
func (s *RedisStore) evict(ctx context.Context, principalID string) {
	if s.opts.maxToken < 1 {
		return
	}
	if err := s.client.LTrim(ctx, redisTokenListPrefix+principalID, -int64(s.opts.maxToken), -1); err != nil {
		s.opts.logger.WarnContext(ctx, "token eviction failed",
			"backend", redisBackend, "principal", principalID, "error", err)
	}
}

// Health pings the server.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close closes the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) attributes(ctx context.Context, principalID string) (token.Attributes, error) {
	var attrs token.Attributes
	for _, f := range []struct {
		prefix string
		dst    *[]string
	}{
		{redisPermPrefix, &attrs.Permissions},
		{redisRolePrefix, &attrs.Roles},
		{redisRoleIDPrefix, &attrs.RoleIDs},
	} {
		vals, err := s.client.SMembers(ctx, f.prefix+principalID)
		if err != nil {
			return token.Attributes{}, unavailable(err, "store: failed to read attributes")
		}
		if len(vals) > 0 {
			slices.Sort(vals)
			*f.dst = vals
		}
	}
	return attrs, nil
}

func replaceSet(ctx context.Context, pipe goredis.Pipeliner, key string, values []string) {
	if len(values) == 0 {
		return
	}
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members(values)...)
}

func members(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// redisKeyStore keeps the signing key at oauth_token_key. SaveKey uses
// SETNX, so the first writer wins.
type redisKeyStore struct {
	client *redis.Client
}

// LoadKey returns the stored key, or "" when it does not exist.
func (k *redisKeyStore) LoadKey(ctx context.Context) (string, error) {
	key, err := k.client.Get(ctx, redisSigningKey)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return key, err
}

// SaveKey writes key only if none exists. The caller re-reads, so a
// concurrent writer's key wins.
func (k *redisKeyStore) SaveKey(ctx context.Context, key string) error {
	_, err := k.client.SetNX(ctx, redisSigningKey, key)
	return err
}
