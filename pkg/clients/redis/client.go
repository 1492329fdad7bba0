// Package redis wraps a go-redis client for the key-value token store.
// It exposes only the list, set and string commands the store needs, each
// traced with an OpenTelemetry client span. Statements recorded on spans
// contain key names only, never values, because list values are access
// tokens.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/tokengate/pkg/clients/redis"

// Nil is returned, wrapped, when a key does not exist.
var Nil = redis.Nil

// Cmdable is the subset of redis.Cmdable the client uses.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Client is a traced Redis client. It is safe for concurrent use.
type Client struct {
	cmdable Cmdable
	tracer  trace.Tracer
	dbIndex int
}

// NewClient validates cfg, connects and pings the server.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: invalid configuration")
	}

	var opts *redis.Options
	if cfg.URI != "" {
		var err error
		if opts, err = redis.ParseURL(cfg.URI); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: failed to parse uri")
		}
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password.Value(),
			DB:       cfg.DB,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: failed to connect")
	}
	return NewFromClient(rdb, opts.DB), nil
}

// NewFromClient wraps an existing client, for example one pointed at
// miniredis in tests.
func NewFromClient(cmdable Cmdable, dbIndex int) *Client {
	return &Client{cmdable: cmdable, tracer: otel.Tracer(tracerName), dbIndex: dbIndex}
}

// Get returns the string at key. A missing key yields an error wrapping Nil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, span := c.startSpan(ctx, "Get", "GET "+key)
	val, err := c.cmdable.Get(ctx, key).Result()
	c.finish(span, err)
	if err != nil {
		return "", wrapError(err, "redis: get failed")
	}
	return val, nil
}

// SetNX stores value at key only if key is absent and reports whether it
// was written.
func (c *Client) SetNX(ctx context.Context, key string, value string) (bool, error) {
	ctx, span := c.startSpan(ctx, "SetNX", "SETNX "+key)
	ok, err := c.cmdable.SetNX(ctx, key, value, 0).Result()
	c.finish(span, err)
	if err != nil {
		return false, wrapError(err, "redis: setnx failed")
	}
	return ok, nil
}

// LTrim keeps only the list elements between start and stop inclusive.
// Negative indexes count from the tail.
func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	ctx, span := c.startSpan(ctx, "LTrim", fmt.Sprintf("LTRIM %s %d %d", key, start, stop))
	err := c.cmdable.LTrim(ctx, key, start, stop).Err()
	c.finish(span, err)
	if err != nil {
		return wrapError(err, "redis: ltrim failed")
	}
	return nil
}

// LRange returns list elements between start and stop inclusive.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, span := c.startSpan(ctx, "LRange", fmt.Sprintf("LRANGE %s %d %d", key, start, stop))
	vals, err := c.cmdable.LRange(ctx, key, start, stop).Result()
	c.finish(span, err)
	if err != nil {
		return nil, wrapError(err, "redis: lrange failed")
	}
	return vals, nil
}

// LLen returns the length of the list at key, 0 when absent.
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	ctx, span := c.startSpan(ctx, "LLen", "LLEN "+key)
	n, err := c.cmdable.LLen(ctx, key).Result()
	c.finish(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: llen failed")
	}
	return n, nil
}

// LRem removes up to count occurrences of value and returns how many went.
func (c *Client) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	ctx, span := c.startSpan(ctx, "LRem", fmt.Sprintf("LREM %s %d", key, count))
	n, err := c.cmdable.LRem(ctx, key, count, value).Result()
	c.finish(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: lrem failed")
	}
	return n, nil
}

// SMembers returns the members of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, span := c.startSpan(ctx, "SMembers", "SMEMBERS "+key)
	vals, err := c.cmdable.SMembers(ctx, key).Result()
	c.finish(span, err)
	if err != nil {
		return nil, wrapError(err, "redis: smembers failed")
	}
	return vals, nil
}

// Tx queues the commands issued by fn and runs them as one MULTI/EXEC
// block.
func (c *Client) Tx(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	ctx, span := c.startSpan(ctx, "Tx", "MULTI")
	_, err := c.cmdable.TxPipelined(ctx, fn)
	c.finish(span, err)
	if err != nil {
		return wrapError(err, "redis: transaction failed")
	}
	return nil
}

// Health pings the server, applying DefaultHealthTimeout when ctx has no
// deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	err := c.cmdable.Ping(ctx).Err()
	c.finish(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: health check failed")
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.cmdable.Close()
}

func (c *Client) startSpan(ctx context.Context, op, statement string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.Int("db.redis.database_index", c.dbIndex),
			attribute.String("db.statement", truncateStatement(statement)),
		),
	)
}

// finish ends span, treating a missing key as success.
func (c *Client) finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError classifies err. Deadlines map to CodeTimeoutDatabase, all else
// to CodeInternalDatabase.
func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
