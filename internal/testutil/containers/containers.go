//go:build integration

// Package containers starts throwaway PostgreSQL and Redis containers for
// the store integration suite. It is compiled only with the integration
// build tag:
//
//	go test -tags integration ./...
package containers

import (
	"context"
	"fmt"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	PostgresImage    = "docker.io/postgres:16-alpine"
	PostgresDatabase = "tokengate_test"
	PostgresUser     = "tokengate"
	PostgresPassword = "tokengate"

	RedisImage = "docker.io/redis:7-alpine"
)

// Postgres is a running PostgreSQL container.
type Postgres struct {
	Container *tcpostgres.PostgresContainer
	// URI has sslmode=disable; pass it as postgres.Config.URI.
	URI string
}

// StartPostgres starts PostgreSQL and waits until it accepts connections.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := tcpostgres.Run(ctx,
		PostgresImage,
		tcpostgres.WithDatabase(PostgresDatabase),
		tcpostgres.WithUsername(PostgresUser),
		tcpostgres.WithPassword(PostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres: %w", err)
	}
	uri, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get postgres connection string: %w", err)
	}
	return &Postgres{Container: container, URI: uri}, nil
}

// Redis is a running Redis container.
type Redis struct {
	Container *tcredis.RedisContainer
	// URI is redis://host:port; pass it as redis.Config.URI.
	URI string
}

// StartRedis starts Redis without authentication.
func StartRedis(ctx context.Context) (*Redis, error) {
	container, err := tcredis.Run(ctx, RedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis: %w", err)
	}
	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}
	return &Redis{Container: container, URI: uri}, nil
}

// PostgresT starts PostgreSQL for one test and terminates it on cleanup.
// The test is skipped when no container runtime is available.
func PostgresT(t testing.TB) *Postgres {
	t.Helper()
	ctx := context.Background()
	pg, err := StartPostgres(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Container.Terminate(ctx) })
	return pg
}

// RedisT starts Redis for one test and terminates it on cleanup.
func RedisT(t testing.TB) *Redis {
	t.Helper()
	ctx := context.Background()
	r, err := StartRedis(ctx)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = r.Container.Terminate(ctx) })
	return r
}
