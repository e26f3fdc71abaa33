package database

import "context"

// Querier runs statements. Both the pool and an open transaction satisfy it,
// so store code can be written once for either.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow defers any error to Scan.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Exec reports the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// DB is a connection pool. Packages above database depend on DB only and
// never on a concrete driver; tests substitute dbtest.FakeDB.
type DB interface {
	Querier
	Ping(ctx context.Context) error

	// Begin opens a transaction that the caller must finish with Commit or
	// Rollback.
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// Tx is an open transaction.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows iterates a result set. Close must be called even after an error;
// Collect and ScanStrings do it for you.
type Rows interface {
	Next() bool
	Scan(dest ...any) error

	// Values returns the current row decoded to Go values.
	Values() ([]any, error)
	Columns() ([]string, error)
	Close()
	Err() error
}

// Row is the result of QueryRow.
type Row interface {
	Scan(dest ...any) error
}
