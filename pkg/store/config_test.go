package store

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/tokengate/internal/testutil"
	"github.com/StricklySoft/tokengate/internal/testutil/fixtures"
	"github.com/StricklySoft/tokengate/pkg/clients/postgres"
	"github.com/StricklySoft/tokengate/pkg/config"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/token"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		code sserr.Code
	}{
		{
			name: "ephemeral",
			cfg:  Config{MaxToken: Unlimited, Ephemeral: EphemeralConfig{Secret: Secret(fixtures.Secret)}},
		},
		{
			name: "short secret",
			cfg:  Config{MaxToken: Unlimited, Ephemeral: EphemeralConfig{Secret: "short"}},
			code: sserr.CodeValidationRange,
		},
		{
			name: "zero max token",
			cfg:  Config{Backend: BackendRedis},
			code: sserr.CodeValidationRange,
		},
		{
			name: "negative expire",
			cfg:  Config{Backend: BackendRedis, MaxToken: 3, DefaultExpire: -5},
			code: sserr.CodeValidationRange,
		},
		{
			name: "unknown backend",
			cfg:  Config{Backend: "mongo", MaxToken: Unlimited},
			code: sserr.CodeValidationFormat,
		},
		{
			name: "postgres without user",
			cfg:  Config{Backend: BackendPostgres, MaxToken: Unlimited},
			code: sserr.CodeValidation,
		},
		{
			name: "postgres",
			cfg:  Config{Backend: BackendPostgres, MaxToken: 5, Postgres: postgres.Config{User: "tokengate"}},
		},
		{
			name: "redis",
			cfg:  Config{Backend: BackendRedis, MaxToken: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.code != "" {
				testutil.AssertErrorCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Backend)
			assert.Equal(t, int64(86400), cfg.DefaultExpire)
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TOKENGATE_BACKEND", "redis")
	t.Setenv("TOKENGATE_MAX_TOKEN", "4")
	t.Setenv("TOKENGATE_REDIS_HOST", "cache.internal")
	t.Setenv("TOKENGATE_REDIS_PORT", "6380")

	var cfg Config
	require.NoError(t, config.New().WithEnvPrefix("TOKENGATE").Load(&cfg))

	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, 4, cfg.MaxToken)
	assert.Equal(t, int64(86400), cfg.DefaultExpire)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
}

func TestSecret_Redacts(t *testing.T) {
	t.Parallel()
	s := Secret(fixtures.Secret)
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, fixtures.Secret, s.Value())
}

func TestOpen_Ephemeral(t *testing.T) {
	t.Parallel()
	s, err := Open(context.Background(), Config{
		MaxToken:  Unlimited,
		Ephemeral: EphemeralConfig{Secret: Secret(fixtures.Secret)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.IsType(t, &EphemeralStore{}, s)
}

func TestOpen_Redis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := Config{Backend: BackendRedis, MaxToken: 2}
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.IsType(t, &RedisStore{}, s)

	ctx := context.Background()
	for range 3 {
		_, err := s.CreateToken(ctx, fixtures.Principal, token.Attributes{}, 0)
		require.NoError(t, err)
	}
	tokens, err := s.FindTokensByPrincipal(ctx, fixtures.Principal)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestOpen_InvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Backend: BackendRedis})
	testutil.AssertErrorCode(t, err, sserr.CodeValidationRange)
}
