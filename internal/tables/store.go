// Package tables reads and writes rows of any table, given only its name.
//
// Column sets, primary keys and nullability are read from the catalog on
// every call; identifiers are always quoted and values always bound.
package tables

import (
	"context"
	"fmt"

	"github.com/koustreak/pgstudio/internal/catalog"
	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
)

// Store is the generic table access layer.
type Store struct {
	db      database.DB
	catalog *catalog.Catalog
	log     *logger.Logger
}

// NewStore creates a Store on db. A nil log discards output.
func NewStore(db database.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, catalog: catalog.New(db), log: log}
}

// Catalog exposes the introspection used by the store.
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *Store) fields(schema, table string) map[string]interface{} {
	return map[string]interface{}{"schema": schema, "table": table}
}

// GetPage returns one page of rows. Failures are reported in the result's
// Error field with no records; GetPage never returns a Go error.
//
// An unknown sort column is ignored and the page comes back unsorted.
// Filters on unknown columns are rejected.
func (s *Store) GetPage(ctx context.Context, req PageRequest) PageResult {
	req.normalize()

	res, err := s.getPage(ctx, req)
	if err != nil {
		s.log.ErrorWith("fetch table data failed", err, s.fields(req.Schema, req.Table))
		return PageResult{
			Records:    []map[string]any{},
			Pagination: Pagination{Page: req.Page, PageSize: req.PageSize},
			Error:      errs.Message(err),
		}
	}
	return res
}

func (s *Store) getPage(ctx context.Context, req PageRequest) (PageResult, error) {
	if req.Table == "" {
		return PageResult{}, errs.New(errs.ErrKindInvalidInput, "Table name is required")
	}

	sel := database.Select(req.Schema, req.Table)

	if req.SortColumn != "" || len(req.Filters) > 0 {
		t, err := s.catalog.Table(ctx, req.Schema, req.Table)
		if err != nil {
			return PageResult{}, err
		}
		for _, f := range req.Filters {
			if !t.HasColumn(f.Column) {
				return PageResult{}, errs.Newf(errs.ErrKindInvalidInput,
					"Cannot filter on unknown column '%s'", f.Column)
			}
			if !database.ValidOperator(f.Operator) {
				return PageResult{}, errs.Newf(errs.ErrKindInvalidInput,
					"Unsupported filter operator '%s'", f.Operator)
			}
			sel.Where(f.Column, f.Operator, bindValue(f.Value))
		}
		if req.SortColumn != "" {
			if t.HasColumn(req.SortColumn) {
				sel.OrderBy(req.SortColumn, req.direction())
			} else {
				s.log.With().Str("table", req.Table).Str("column", req.SortColumn).Logger().
					Debug("ignoring sort on unknown column")
			}
		}
	}

	countSQL, countArgs, err := sel.BuildCount()
	if err != nil {
		return PageResult{}, err
	}
	var total int64
	if err := s.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return PageResult{}, err
	}

	sql, args, err := sel.Limit(req.PageSize).Offset((req.Page - 1) * req.PageSize).Build()
	if err != nil {
		return PageResult{}, err
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return PageResult{}, err
	}
	records, err := database.ScanRows(rows)
	if err != nil {
		return PageResult{}, err
	}

	return PageResult{
		Records: records,
		Pagination: Pagination{
			Total:     total,
			Page:      req.Page,
			PageSize:  req.PageSize,
			PageCount: PageCount(total, req.PageSize),
		},
	}, nil
}

// InsertRow inserts one row and returns it as stored. Keys that are not
// columns of the table are dropped; empty values for columns with a default
// are left out so the default applies.
func (s *Store) InsertRow(ctx context.Context, schema, table string, data map[string]any) (map[string]any, error) {
	t, err := s.catalog.Table(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if !t.Exists() {
		return nil, errs.Newf(errs.ErrKindNotFound, "Table '%s' does not exist", table)
	}

	ins := database.InsertInto(schema, table).Returning("*")
	matched, bound := 0, 0
	for _, col := range t.Columns {
		v, ok := data[col.Name]
		if !ok {
			continue
		}
		matched++
		if isNull(v) && col.Default != nil {
			continue
		}
		ins.Value(col.Name, bindValue(v))
		bound++
	}
	if matched == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "No valid columns provided for table '%s'", table)
	}

	var (
		sql  string
		args []any
	)
	if bound == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", database.QualifiedName(schema, table))
	} else if sql, args, err = ins.Build(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	inserted, err := database.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(inserted) == 0 {
		return nil, errs.Newf(errs.ErrKindQueryFailed, "Insert into '%s' returned no row", table)
	}
	return inserted[0], nil
}

// UpdateCell sets one column of the row identified by edit.RowID. The column
// is not checked against the catalog; a bad name fails in PostgreSQL.
func (s *Store) UpdateCell(ctx context.Context, schema, table string, edit CellEdit) error {
	if edit.Column == "" {
		return errs.New(errs.ErrKindInvalidInput, "Column name is required")
	}
	pk, err := s.catalog.PrimaryKey(ctx, schema, table)
	if err != nil {
		return err
	}

	sql, args, err := database.Update(schema, table).
		Set(edit.Column, bindValue(edit.Value)).
		Where(pk, "=", keyValue(edit.RowID)).
		Build()
	if err != nil {
		return err
	}

	n, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.Newf(errs.ErrKindNotFound, "Row '%v' not found in table '%s'", edit.RowID, table)
	}
	return nil
}

// DeleteRows deletes the rows with the given ids and returns how many were
// actually removed, which may be fewer than requested. Ids may be scalars or
// row objects carrying the primary key.
func (s *Store) DeleteRows(ctx context.Context, schema, table string, ids []any) (int, error) {
	if len(ids) == 0 {
		return 0, errs.New(errs.ErrKindInvalidInput, "No rows selected for deletion")
	}

	pk, err := s.catalog.PrimaryKey(ctx, schema, table)
	if err != nil {
		return 0, err
	}

	keys := make([]any, 0, len(ids))
	for _, id := range ids {
		v, ok := unwrapID(id, pk)
		if !ok {
			return 0, errs.Newf(errs.ErrKindInvalidInput, "Row id is missing primary key '%s'", pk)
		}
		keys = append(keys, keyValue(v))
	}

	del := database.DeleteFrom(schema, table).Returning(pk)
	if len(keys) == 1 {
		del.Where(pk, "=", keys[0])
	} else {
		del.WhereIn(pk, keys)
	}
	sql, args, err := del.Build()
	if err != nil {
		return 0, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	deleted, err := database.ScanRows(rows)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

// BulkUpdateRows applies a batch of row updates atomically. Every update is
// validated before anything is written; a single invalid value aborts the
// whole batch. Valid batches are grouped by column into one CASE update per
// column, all inside one transaction. It returns the number of distinct rows
// touched.
func (s *Store) BulkUpdateRows(ctx context.Context, schema, table string, updates []RowUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, errs.New(errs.ErrKindInvalidInput, "No updates provided")
	}

	t, err := s.catalog.Table(ctx, schema, table)
	if err != nil {
		return 0, err
	}
	if !t.Exists() {
		return 0, errs.Newf(errs.ErrKindNotFound, "Table '%s' does not exist", table)
	}
	pk, err := s.catalog.PrimaryKey(ctx, schema, table)
	if err != nil {
		return 0, err
	}
	if err := validateUpdates(t, updates); err != nil {
		return 0, err
	}

	plan := groupByColumn(t, updates)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, cu := range plan.columns {
		sql, args, err := database.Update(schema, table).
			SetCase(cu.column, pk, cu.cases).
			WhereIn(pk, cu.keys).
			Build()
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			s.log.ErrorWith("bulk update rolled back", err, map[string]interface{}{
				"schema": schema, "table": table, "column": cu.column,
			})
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return plan.rows, nil
}

type columnUpdate struct {
	column string
	cases  []database.CaseWhen
	keys   []any
}

type updatePlan struct {
	columns []columnUpdate
	rows    int
}

// groupByColumn turns row-oriented updates into column-oriented CASE
// branches. Columns follow table order so statements are deterministic.
func groupByColumn(t *catalog.Table, updates []RowUpdate) updatePlan {
	byColumn := make(map[string]*columnUpdate)
	seen := make(map[string]bool)
	rows := 0

	for _, u := range updates {
		key := keyValue(u.RowID)
		if k := fmt.Sprint(key); !seen[k] {
			seen[k] = true
			rows++
		}
		for name, v := range u.Data {
			cu, ok := byColumn[name]
			if !ok {
				cu = &columnUpdate{column: name}
				byColumn[name] = cu
			}
			cu.cases = append(cu.cases, database.CaseWhen{Key: key, Value: bindValue(v)})
			cu.keys = append(cu.keys, key)
		}
	}

	plan := updatePlan{rows: rows}
	for _, col := range t.Columns {
		if cu, ok := byColumn[col.Name]; ok {
			plan.columns = append(plan.columns, *cu)
		}
	}
	return plan
}
