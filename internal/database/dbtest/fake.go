// Package dbtest provides a scripted in-memory database.DB for unit tests.
//
// Statements are matched against registered handlers by substring; the first
// match wins. Unmatched queries return no rows and unmatched Exec calls report
// zero affected rows, so tests only script what they assert on.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
)

// Result is the canned response for a matched statement.
type Result struct {
	Columns  []string
	Rows     [][]any
	Affected int64
	Err      error

	// RowsErr is reported by Rows.Err after the rows are consumed, the way
	// pgx surfaces errors raised while a statement executes.
	RowsErr error
}

// Call records one executed statement.
type Call struct {
	SQL  string
	Args []any
	InTx bool
}

type handler struct {
	match  string
	result func(args []any) Result
}

// FakeDB implements database.DB.
type FakeDB struct {
	mu       sync.Mutex
	handlers []handler
	calls    []Call

	PingErr   error
	BeginErr  error
	Commits   int
	Rollbacks int
	Closed    bool
}

// New returns an empty FakeDB.
func New() *FakeDB {
	return &FakeDB{}
}

// On registers a response for statements containing substr.
func (f *FakeDB) On(substr string, r Result) *FakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{match: substr, result: func([]any) Result { return r }})
	return f
}

// OnFunc registers a response computed from the statement's arguments.
func (f *FakeDB) OnFunc(substr string, fn func(args []any) Result) *FakeDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{match: substr, result: fn})
	return f
}

// Calls returns every statement executed so far.
func (f *FakeDB) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Statements returns the SQL text of every executed statement.
func (f *FakeDB) Statements() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.SQL
	}
	return out
}

// Executed reports how many statements containing substr were run.
func (f *FakeDB) Executed(substr string) int {
	n := 0
	for _, s := range f.Statements() {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func (f *FakeDB) record(sql string, args []any, inTx bool) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{SQL: sql, Args: args, InTx: inTx})
	for _, h := range f.handlers {
		if strings.Contains(sql, h.match) {
			return h.result(args)
		}
	}
	return Result{}
}

// --- database.DB ---

func (f *FakeDB) Ping(context.Context) error { return f.PingErr }

func (f *FakeDB) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
}

func (f *FakeDB) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	return f.query(sql, args, false)
}

func (f *FakeDB) QueryRow(_ context.Context, sql string, args ...any) database.Row {
	return f.queryRow(sql, args, false)
}

func (f *FakeDB) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	return f.exec(sql, args, false)
}

func (f *FakeDB) Begin(context.Context) (database.Tx, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	return &fakeTx{db: f}, nil
}

func (f *FakeDB) query(sql string, args []any, inTx bool) (database.Rows, error) {
	r := f.record(sql, args, inTx)
	if r.Err != nil {
		return nil, r.Err
	}
	return &fakeRows{columns: r.Columns, rows: r.Rows, pos: -1, err: r.RowsErr}, nil
}

func (f *FakeDB) queryRow(sql string, args []any, inTx bool) database.Row {
	r := f.record(sql, args, inTx)
	if r.Err != nil {
		return &fakeRow{err: r.Err}
	}
	if r.RowsErr != nil {
		return &fakeRow{err: r.RowsErr}
	}
	if len(r.Rows) == 0 {
		return &fakeRow{err: errs.New(errs.ErrKindNotFound, "no rows in result set")}
	}
	return &fakeRow{values: r.Rows[0]}
}

func (f *FakeDB) exec(sql string, args []any, inTx bool) (int64, error) {
	r := f.record(sql, args, inTx)
	if r.Err != nil {
		return 0, r.Err
	}
	if r.RowsErr != nil {
		return 0, r.RowsErr
	}
	return r.Affected, nil
}

type fakeTx struct {
	db   *FakeDB
	done bool
}

func (t *fakeTx) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	return t.db.query(sql, args, true)
}

func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) database.Row {
	return t.db.queryRow(sql, args, true)
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	return t.db.exec(sql, args, true)
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if !t.done {
		t.done = true
		t.db.Commits++
	}
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if !t.done {
		t.done = true
		t.db.Rollbacks++
	}
	return nil
}

type fakeRows struct {
	columns []string
	rows    [][]any
	pos     int
	err     error
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return assignAll(dest, r.rows[r.pos]) }

func (r *fakeRows) Values() ([]any, error) {
	out := make([]any, len(r.rows[r.pos]))
	copy(out, r.rows[r.pos])
	return out, nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }
func (r *fakeRows) Close()                     {}
func (r *fakeRows) Err() error                 { return r.err }

type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignAll(dest, r.values)
}

func assignAll(dest []any, values []any) error {
	if len(dest) > len(values) {
		return fmt.Errorf("dbtest: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		if err := assign(d, values[i]); err != nil {
			return fmt.Errorf("dbtest: column %d: %w", i, err)
		}
	}
	return nil
}

// assign stores v into the pointer d, converting between compatible kinds
// and allocating for pointer-to-pointer destinations (nullable columns).
func assign(d any, v any) error {
	dv := reflect.ValueOf(d)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a non-nil pointer", d)
	}
	target := dv.Elem()

	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	val := reflect.ValueOf(v)
	if target.Kind() == reflect.Pointer && !val.Type().AssignableTo(target.Type()) {
		p := reflect.New(target.Type().Elem())
		if err := assign(p.Interface(), v); err != nil {
			return err
		}
		target.Set(p)
		return nil
	}

	switch {
	case val.Type().AssignableTo(target.Type()):
		target.Set(val)
	case target.Kind() == reflect.String && val.Kind() != reflect.String:
		return fmt.Errorf("cannot assign %T to %s", v, target.Type())
	case val.Type().ConvertibleTo(target.Type()):
		target.Set(val.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", v, target.Type())
	}
	return nil
}

var _ database.DB = (*FakeDB)(nil)
