// Package postgres implements database.DB on top of pgxpool.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/pgstudio/internal/database"
)

// Driver is a pooled PostgreSQL connection, safe for concurrent use.
type Driver struct {
	runner
	pool *pgxpool.Pool
}

// New opens a pool for cfg and pings it before returning.
func New(ctx context.Context, cfg *database.Config, opts ...Option) (*Driver, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := buildPool(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	d := &Driver{runner: runner{pool}, pool: pool}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// WithTemporary runs fn against a short-lived pool for conn and closes the
// pool when fn returns.
func WithTemporary(ctx context.Context, conn database.ConnConfig, fn func(db database.DB) error) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	d, err := New(ctx, database.TemporaryConfig(conn))
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

func (d *Driver) Ping(ctx context.Context) error {
	return mapError(d.pool.Ping(ctx), "ping failed")
}

func (d *Driver) Close() { d.pool.Close() }

func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "failed to begin transaction")
	}
	return &pgxTx{runner: runner{tx}, tx: tx}, nil
}

// ServerVersion returns version() as reported by the server.
func (d *Driver) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := d.pool.QueryRow(ctx, "SELECT version()").Scan(&v); err != nil {
		return "", mapError(err, "failed to read server version")
	}
	return v, nil
}

// PoolStats is the pool section of the health report.
type PoolStats struct {
	TotalConns    int32         `json:"totalConns"`
	IdleConns     int32         `json:"idleConns"`
	AcquiredConns int32         `json:"acquiredConns"`
	MaxConns      int32         `json:"maxConns"`
	AcquireWait   time.Duration `json:"acquireWaitNs"`
}

func (d *Driver) Stats() PoolStats {
	s := d.pool.Stat()
	return PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
		AcquireWait:   s.AcquireDuration(),
	}
}

// statementer is the part of *pgxpool.Pool and pgx.Tx that runner needs.
type statementer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// runner adapts a statementer to database.Querier and translates errors.
type runner struct {
	st statementer
}

func (r runner) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := r.st.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &resultRows{rows: rows}, nil
}

func (r runner) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return scanner{r.st.QueryRow(ctx, sql, args...)}
}

func (r runner) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := r.st.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "statement failed")
	}
	return tag.RowsAffected(), nil
}

type pgxTx struct {
	runner
	tx pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx), "commit failed")
}

// Rollback after Commit or a previous Rollback returns nil.
func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); !errors.Is(err, pgx.ErrTxClosed) {
		return mapError(err, "rollback failed")
	}
	return nil
}

type resultRows struct {
	rows pgx.Rows
}

func (r *resultRows) Next() bool { return r.rows.Next() }
func (r *resultRows) Close()     { r.rows.Close() }

func (r *resultRows) Scan(dest ...any) error {
	return mapError(r.rows.Scan(dest...), "scan failed")
}

func (r *resultRows) Err() error {
	return mapError(r.rows.Err(), "row iteration failed")
}

// Values decodes the current row and converts it to JSON-friendly values.
func (r *resultRows) Values() ([]any, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, mapError(err, "failed to decode row")
	}
	return jsonValues(vals), nil
}

func (r *resultRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names, nil
}

type scanner struct {
	row pgx.Row
}

func (s scanner) Scan(dest ...any) error {
	return mapError(s.row.Scan(dest...), "scan failed")
}

var (
	_ database.DB = (*Driver)(nil)
	_ database.Tx = (*pgxTx)(nil)
)
