//go:build integration

package redis_test

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/tokengate/internal/testutil/containers"
	"github.com/StricklySoft/tokengate/pkg/clients/redis"
)

func TestIntegration_Client(t *testing.T) {
	r := containers.RedisT(t)
	ctx := context.Background()
	client, err := redis.NewClient(ctx, redis.Config{URI: r.URI})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Health(ctx))

	ok, err := client.SetNX(ctx, "k", "first")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.SetNX(ctx, "k", "second")
	require.NoError(t, err)
	assert.False(t, ok)

	var length *goredis.IntCmd
	require.NoError(t, client.Tx(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, "list", "a", "b", "c")
		length = pipe.LLen(ctx, "list")
		return nil
	}))
	assert.Equal(t, int64(3), length.Val())

	require.NoError(t, client.LTrim(ctx, "list", -2, -1))
	vals, err := client.LRange(ctx, "list", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, vals)

	_, err = client.Get(ctx, "missing")
	assert.ErrorIs(t, err, redis.Nil)
}
