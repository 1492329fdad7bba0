// Package postgres wraps a pgx connection pool for the relational token
// store. Every call opens an OpenTelemetry client span and classifies
// driver failures into tokengate error codes:
//
//   - context deadline or cancellation: [sserr.CodeTimeoutDatabase]
//   - anything else: [sserr.CodeInternalDatabase]
//
// The original driver error stays in the chain, so callers can still test
// for [pgx.ErrNoRows] with errors.Is.
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/tokengate/pkg/clients/postgres"

// Pool is the subset of *pgxpool.Pool the client uses. pgxmock.PgxPoolIface
// satisfies it, which is how the store is unit tested.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client is a traced PostgreSQL client. It is safe for concurrent use.
type Client struct {
	pool         Pool
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, opens a pool and pings the server.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to connect")
	}

	dbName := cfg.Database
	if cfg.URI != "" {
		if u, perr := url.Parse(cfg.URI); perr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}
	return &Client{pool: pool, tracer: otel.Tracer(tracerName), databaseName: dbName}, nil
}

// NewFromPool wraps an existing pool. databaseName only labels spans.
func NewFromPool(pool Pool, databaseName string) *Client {
	return &Client{pool: pool, tracer: otel.Tracer(tracerName), databaseName: databaseName}
}

// Query runs a statement that returns rows. The caller must close them.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)
	rows, err := c.pool.Query(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: query failed")
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row. Scan
// errors are classified like any other driver error.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	return &row{row: c.pool.QueryRow(ctx, sql, args...), span: span}
}

// Exec runs a statement and returns its command tag.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)
	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (c *Client) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	ctx, span := c.startSpan(ctx, "Tx", "BEGIN")

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		finishSpan(span, err)
		return wrapError(err, "postgres: begin failed")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		finishSpan(span, err)
		if _, ok := sserr.AsError(err); ok {
			return err
		}
		return wrapError(err, "postgres: transaction failed")
	}
	if err := tx.Commit(ctx); err != nil {
		finishSpan(span, err)
		return wrapError(err, "postgres: commit failed")
	}
	finishSpan(span, nil)
	return nil
}

// Health pings the server, applying DefaultHealthTimeout when ctx has no
// deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

type row struct {
	row  pgx.Row
	span trace.Span
}

// Scan classifies errors like Query and Exec do. pgx.ErrNoRows is wrapped
// so errors.Is still matches it.
func (r *row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		finishSpan(r.span, nil)
	} else {
		finishSpan(r.span, err)
	}
	if err != nil {
		return wrapError(err, "postgres: scan failed")
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.name", c.databaseName),
			attribute.String("db.statement", truncateStatement(sql)),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
