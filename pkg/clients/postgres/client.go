// Package postgres provides the PostgreSQL client used by the speech
// gateway's repositories. It wraps a pgxpool connection pool with
// OpenTelemetry tracing and structured error classification.
//
// Create a client with [NewClient] for production use:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("DB_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//
// or with [NewFromPool] to inject a mock pool in tests:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for this package.
const tracerName = "github.com/speechlytics/speech-gateway/pkg/clients/postgres"

// Pool is the connection pool contract, satisfied by [*pgxpool.Pool] and
// by pgxmock. Method signatures follow the pgx v5 API exactly so the
// real pool needs no adaptation.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client wraps a [Pool] with tracing and error classification. It is
// safe for concurrent use; create one per database and share it.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, opens a connection pool, and verifies
// connectivity with a ping. Call [Client.Close] when done.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gwerr.Wrap(err, gwerr.CodeValidation,
			"postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.CodeValidation,
			"postgres: failed to parse connection string")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, gwerr.Wrap(err, gwerr.CodeUnavailableDependency,
			"postgres: failed to create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, gwerr.Wrap(err, gwerr.CodeUnavailableDependency,
			"postgres: failed to connect to database")
	}

	return &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}, nil
}

// NewFromPool creates a Client over a pre-existing [Pool], typically a
// pgxmock pool in tests. cfg is stored but not validated; nil yields a
// zero-value config.
func NewFromPool(pool Pool, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}
}

// Query executes a query that returns rows. The caller must close the
// returned [pgx.Rows].
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		finishSpan(span, err)
		return nil, WrapError(err, "postgres: query failed")
	}
	// Row-level errors surface during iteration, after the span ends.
	finishSpan(span, nil)
	return rows, nil
}

// QueryRow executes a query that returns at most one row. pgx defers
// errors to Scan, so the span covers only the query execution.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a statement that returns no rows (INSERT, UPDATE,
// DELETE, DDL).
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, WrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Begin starts a transaction. Defer tx.Rollback(ctx) immediately after;
// rollback of a committed transaction is a no-op in pgx.
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := c.startSpan(ctx, "Begin", "BEGIN")

	tx, err := c.pool.Begin(ctx)
	finishSpan(span, err)
	if err != nil {
		return nil, WrapError(err, "postgres: begin transaction failed")
	}
	return tx, nil
}

// Health pings the database, applying [DefaultHealthTimeout] when the
// caller's context has no deadline. Intended for readiness probes.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return gwerr.Wrap(err, gwerr.CodeUnavailableDependency,
			"postgres: health check failed")
	}
	return nil
}

// Close releases all pool resources. Safe to call multiple times.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying pool for operations the Client does not
// wrap (CopyFrom, SendBatch). Do not close it directly.
func (c *Client) Pool() Pool {
	return c.pool
}

func (c *Client) startSpan(ctx context.Context, operationName, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
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

// WrapError converts a database error to a structured error. Timeouts
// and cancellations map to [gwerr.CodeTimeoutDatabase]; everything else
// to [gwerr.CodeInternalDatabase].
func WrapError(err error, message string) *gwerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return gwerr.Wrap(err, gwerr.CodeTimeoutDatabase, message)
	}
	return gwerr.Wrap(err, gwerr.CodeInternalDatabase, message)
}

// ClassifyError maps a repository-level database error to the structured
// code the API layer expects: missing rows to [gwerr.CodeNotFound],
// unique and check constraint violations to
// [gwerr.CodeConflictAlreadyExists], and the rest through [WrapError].
func ClassifyError(err error, message string) *gwerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return gwerr.Wrap(err, gwerr.CodeNotFound, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23514":
			return gwerr.Wrap(err, gwerr.CodeConflictAlreadyExists, message)
		}
	}
	return WrapError(err, message)
}
