package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/tokengate/pkg/clients/postgres"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

const postgresBackend = "postgres"

// PostgresSchema creates the token and signing key tables. Each statement
// is idempotent.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS oauth_token (
	token_id BIGSERIAL PRIMARY KEY,
	access_token TEXT NOT NULL,
	user_id TEXT NOT NULL,
	permissions TEXT,
	roles TEXT,
	refresh_token TEXT,
	expire_time BIGINT NOT NULL,
	create_time BIGINT NOT NULL,
	update_time BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS oauth_token_user_access_idx ON oauth_token (user_id, access_token)`,
	`CREATE TABLE IF NOT EXISTS oauth_token_key (token_key TEXT NOT NULL)`,
}

const (
	insertTokenSQL = `INSERT INTO oauth_token (access_token, user_id, permissions, roles, refresh_token, expire_time, create_time, update_time) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectTokenColumns = `SELECT token_id, access_token, user_id, COALESCE(permissions, ''), COALESCE(roles, ''), COALESCE(refresh_token, ''), expire_time, create_time, update_time FROM oauth_token`

	findTokenSQL        = selectTokenColumns + ` WHERE user_id = $1 AND access_token = $2 LIMIT 1`
	findByPrincipalSQL  = selectTokenColumns + ` WHERE user_id = $1 ORDER BY create_time, token_id`
	deleteTokenSQL      = `DELETE FROM oauth_token WHERE user_id = $1 AND access_token = $2`
	deletePrincipalSQL  = `DELETE FROM oauth_token WHERE user_id = $1`
	updatePermissionSQL = `UPDATE oauth_token SET permissions = $1, update_time = $2 WHERE user_id = $3`
	updateRolesSQL      = `UPDATE oauth_token SET roles = $1, update_time = $2 WHERE user_id = $3`

	selectKeySQL = `SELECT token_key FROM oauth_token_key LIMIT 1`
	lockKeySQL   = `LOCK TABLE oauth_token_key IN SHARE ROW EXCLUSIVE MODE`
	clearKeySQL  = `DELETE FROM oauth_token_key`
	insertKeySQL = `INSERT INTO oauth_token_key (token_key) VALUES ($1)`
)

// PostgresStore keeps one row per token in oauth_token. Permissions and
// roles are stored on the row as JSON arrays, so each token keeps the
// attributes it was issued with until UpdatePermissions or UpdateRoles
// rewrites every row of the principal. Role ids are not persisted.
//
// Rows are ordered by create_time, then token_id. Eviction after
// CreateToken deletes the oldest rows beyond the bound one at a time; a
// failure is logged at Warn level and the new token is still returned.
//
// The schema is in PostgresSchema and can be applied with Migrate.
type PostgresStore struct {
	client *postgres.Client
	keys   *token.KeyAuthority
	opts   options
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres returns a store on client. The signing key lives in the
// oauth_token_key table and is created on first use.
func NewPostgres(client *postgres.Client, opts ...Option) *PostgresStore {
	o := newOptions(opts)
	return &PostgresStore{
		client: client,
		keys:   token.NewKeyAuthority(&postgresKeyStore{client: client}, o.keyOpts...),
		opts:   o,
	}
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range PostgresSchema {
		if _, err := s.client.Exec(ctx, stmt); err != nil {
			return sserr.Wrap(err, sserr.CodeInternalDatabase, "store: migration failed")
		}
	}
	return nil
}

// TokenKey returns the signing key stored in oauth_token_key, creating it
// on first use. The key is cached for the life of the store.
func (s *PostgresStore) TokenKey(ctx context.Context) (string, error) {
	return s.keys.Key(ctx)
}

// CreateToken issues a token, inserts its row and then evicts the
// principal's oldest rows beyond the configured bound.
func (s *PostgresStore) CreateToken(ctx context.Context, principalID string, attrs token.Attributes, expireSeconds int64) (*token.Token, error) {
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
	s.evict(ctx, principalID, t.AccessToken)
	return t, nil
}

// StoreToken inserts one row for t. Permissions and roles are written as
// JSON arrays; role ids are not persisted by this backend. No eviction
// runs.
func (s *PostgresStore) StoreToken(ctx context.Context, t *token.Token) error {
	perms, err := encodeList(t.Permissions)
	if err != nil {
		return err
	}
	roles, err := encodeList(t.Roles)
	if err != nil {
		return err
	}
	_, err = s.client.Exec(ctx, insertTokenSQL,
		t.AccessToken, t.PrincipalID, perms, roles, t.RefreshToken,
		t.ExpireTime, t.CreateTime, t.UpdateTime)
	if err != nil {
		return unavailable(err, "store: failed to insert token")
	}
	return nil
}

// FindToken returns the row matching principalID and accessToken with the
// attributes stored on that row. A missing row yields CodeNotFoundToken.
func (s *PostgresStore) FindToken(ctx context.Context, principalID, accessToken string) (*token.Token, error) {
	t, err := scanToken(s.client.QueryRow(ctx, findTokenSQL, principalID, accessToken))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(principalID)
	}
	if err != nil {
		return nil, unavailable(err, "store: failed to find token")
	}
	return t, nil
}

// FindTokensByPrincipal returns every row of the principal ordered by
// creation time, oldest first. A principal without tokens yields an empty
// result, not an error.
func (s *PostgresStore) FindTokensByPrincipal(ctx context.Context, principalID string) ([]*token.Token, error) {
	rows, err := s.client.Query(ctx, findByPrincipalSQL, principalID)
	if err != nil {
		return nil, unavailable(err, "store: failed to list tokens")
	}
	defer rows.Close()

	var out []*token.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, unavailable(err, "store: failed to read token row")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "store: failed to list tokens")
	}
	return out, nil
}

// RemoveToken deletes the matching row and returns the number of rows
// removed. Removing an unknown token returns 0.
func (s *PostgresStore) RemoveToken(ctx context.Context, principalID, accessToken string) (int64, error) {
	tag, err := s.client.Exec(ctx, deleteTokenSQL, principalID, accessToken)
	if err != nil {
		return 0, unavailable(err, "store: failed to remove token")
	}
	return tag.RowsAffected(), nil
}

// RemoveAllForPrincipal deletes every row of the principal and returns how
// many were removed.
func (s *PostgresStore) RemoveAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	tag, err := s.client.Exec(ctx, deletePrincipalSQL, principalID)
	if err != nil {
		return 0, unavailable(err, "store: failed to remove tokens")
	}
	return tag.RowsAffected(), nil
}

// UpdateRoles rewrites the roles of every row of the principal.
func (s *PostgresStore) UpdateRoles(ctx context.Context, principalID string, roles []string) (int64, error) {
	return s.update(ctx, updateRolesSQL, principalID, roles)
}

// UpdatePermissions rewrites the permissions of every row of the principal.
func (s *PostgresStore) UpdatePermissions(ctx context.Context, principalID string, permissions []string) (int64, error) {
	return s.update(ctx, updatePermissionSQL, principalID, permissions)
}

// UpdateRoleIDs fails with CodeInternalUnsupported because the token table
// has no role id column.
func (s *PostgresStore) UpdateRoleIDs(context.Context, string, []string) (int64, error) {
	return 0, sserr.Unsupported(postgresBackend, "role ids")
}

func (s *PostgresStore) update(ctx context.Context, sql, principalID string, values []string) (int64, error) {
	encoded, err := encodeList(values)
	if err != nil {
		return 0, err
	}
	tag, err := s.client.Exec(ctx, sql, encoded, s.opts.codec.Now().UnixMilli(), principalID)
	if err != nil {
		return 0, unavailable(err, "store: failed to update tokens")
	}
	return tag.RowsAffected(), nil
}

// evict removes the principal's oldest rows beyond the bound. Failures are
// logged; the new token stays valid either way.
func (s *PostgresStore) evict(ctx context.Context, principalID, keep string) {
	if s.opts.maxToken < 1 {
		return
	}
	tokens, err := s.FindTokensByPrincipal(ctx, principalID)
	if err != nil {
		s.opts.logger.WarnContext(ctx, "token eviction skipped",
			"backend", postgresBackend, "principal", principalID, "error", err)
		return
	}
	excess := s.opts.excess(int64(len(tokens)))
	for _, t := range tokens {
		if excess == 0 {
			break
		}
		if t.AccessToken == keep {
			continue
		}
		if _, err := s.RemoveToken(ctx, principalID, t.AccessToken); err != nil {
			s.opts.logger.WarnContext(ctx, "token eviction failed",
				"backend", postgresBackend, "principal", principalID, "error", err)
			return
		}
		excess--
	}
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.client.Close()
	return nil
}

func scanToken(row pgx.Row) (*token.Token, error) {
	var (
		t            token.Token
		id           int64
		perms, roles string
	)
	if err := row.Scan(&id, &t.AccessToken, &t.PrincipalID, &perms, &roles,
		&t.RefreshToken, &t.ExpireTime, &t.CreateTime, &t.UpdateTime); err != nil {
		return nil, err
	}
	var err error
	if t.Permissions, err = decodeList(perms); err != nil {
		return nil, err
	}
	if t.Roles, err = decodeList(roles); err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeList stores an attribute list as a JSON array; nil becomes "[]".
func encodeList(values []string) (string, error) {
	b, err := json.Marshal(nonNil(values))
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "store: failed to encode attributes")
	}
	return string(b), nil
}

// decodeList reads an attribute column. Empty, null and "[]" yield nil.
func decodeList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "store: corrupt attribute column")
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// postgresKeyStore keeps the signing key in oauth_token_key. SaveKey never
// replaces a non-blank key; a table lock serializes concurrent creators.
type postgresKeyStore struct {
	client *postgres.Client
}

// LoadKey returns the stored key, or "" when the table is empty.
func (k *postgresKeyStore) LoadKey(ctx context.Context) (string, error) {
	var key string
	err := k.client.QueryRow(ctx, selectKeySQL).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return key, err
}

// SaveKey inserts key under a table lock. A non-blank key written by
// another instance is kept and key is discarded; a blank one is replaced.
func (k *postgresKeyStore) SaveKey(ctx context.Context, key string) error {
	return k.client.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockKeySQL); err != nil {
			return err
		}
		var existing string
		err := tx.QueryRow(ctx, selectKeySQL).Scan(&existing)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		case strings.TrimSpace(existing) != "":
			return nil
		default:
			if _, err := tx.Exec(ctx, clearKeySQL); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, insertKeySQL, key)
		return err
	})
}
