package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
)

// Option adjusts how New builds the pool.
type Option func(*options)

type options struct {
	log *logger.Logger
}

// WithLogger traces statements through log. Statements slower than the
// configured SlowQuery threshold are logged at warn, failures at error and
// everything else at debug.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildPool(ctx context.Context, cfg *database.Config, o options) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Conn.DSN())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres config", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	cc := pc.ConnConfig
	if cfg.ConnectTimeout > 0 {
		cc.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		cc.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if o.log != nil {
		cc.Tracer = &queryTracer{log: o.log, slow: cfg.SlowQuery}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}
	return pool, nil
}

type traceKey struct{}

type traceStart struct {
	sql string
	at  time.Time
}

// queryTracer implements pgx.QueryTracer.
type queryTracer struct {
	log  *logger.Logger
	slow time.Duration
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{sql: data.SQL, at: time.Now()})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	elapsed := time.Since(start.at)
	fields := logger.Fields{
		"sql":        compact(start.sql),
		"elapsed_ms": elapsed.Milliseconds(),
		"rows":       data.CommandTag.RowsAffected(),
	}

	switch {
	case data.Err != nil:
		t.log.ErrorWith("statement failed", mapError(data.Err, "statement failed"), fields)
	case t.slow > 0 && elapsed >= t.slow:
		t.log.WarnWith("slow statement", nil, fields)
	default:
		t.log.With().Any("sql", fields["sql"]).Dur("elapsed", elapsed).Logger().Debug("statement")
	}
}

// compact trims a statement for logging.
func compact(sql string) string {
	const limit = 500
	if len(sql) > limit {
		return sql[:limit] + "..."
	}
	return sql
}
