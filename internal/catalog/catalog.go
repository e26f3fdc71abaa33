// Package catalog introspects schemas, tables, columns and keys from the
// PostgreSQL system catalogs. Nothing is cached: every call re-reads the
// catalog so that results stay correct across DDL issued by other requests.
package catalog

import (
	"context"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
)

// fallbackKeys are tried in order when a table has no primary key constraint.
var fallbackKeys = []string{"id", "ID", "uuid", "UUID"}

// Catalog reads metadata through any database.Querier, so it works on the
// pool as well as inside a transaction.
type Catalog struct {
	db database.Querier
}

// New creates a Catalog reading through db.
func New(db database.Querier) *Catalog {
	return &Catalog{db: db}
}

// ListSchemas returns all non-system schema names, alphabetically.
func (c *Catalog) ListSchemas(ctx context.Context) ([]string, error) {
	const q = `
		SELECT schema_name::text
		FROM information_schema.schemata
		WHERE schema_name <> 'information_schema'
		  AND schema_name NOT LIKE 'pg\_%'
		ORDER BY schema_name`

	rows, err := c.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return database.ScanStrings(rows)
}

// ListTables returns all base table names in the given schema, alphabetically.
func (c *Catalog) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name::text
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.db.Query(ctx, q, schema)
	if err != nil {
		return nil, err
	}
	return database.ScanStrings(rows)
}

// SchemaExists checks whether a schema exists.
func (c *Catalog) SchemaExists(ctx context.Context, schema string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.schemata
			WHERE schema_name = $1
		)`

	var exists bool
	if err := c.db.QueryRow(ctx, q, schema).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// TableExists reports whether schema.table is a base table. Views do not
// count, so DDL that needs a table is rejected up front.
func (c *Catalog) TableExists(ctx context.Context, schema, table string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
			  AND table_type = 'BASE TABLE'
		)`

	var exists bool
	if err := c.db.QueryRow(ctx, q, schema, table).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListColumns returns the columns of a table in ordinal order, each with its
// foreign key target when the column takes part in one. The result is empty
// when the table does not exist.
func (c *Catalog) ListColumns(ctx context.Context, schema, table string) ([]Column, error) {
	const q = `
		SELECT
			c.column_name::text,
			c.data_type::text,
			c.is_nullable = 'YES'             AS is_nullable,
			c.character_maximum_length::int,
			c.column_default::text,
			fk.foreign_table,
			fk.foreign_column
		FROM information_schema.columns c

		-- Foreign key target, first constraint wins
		LEFT JOIN LATERAL (
			SELECT ccu.table_name::text AS foreign_table, ccu.column_name::text AS foreign_column
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON ccu.constraint_name = tc.constraint_name
				AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND tc.table_schema = c.table_schema
			  AND tc.table_name   = c.table_name
			  AND kcu.column_name = c.column_name
			ORDER BY tc.constraint_name
			LIMIT 1
		) fk ON true

		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`

	rows, err := c.db.Query(ctx, q, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make([]Column, 0)
	for rows.Next() {
		var col Column
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.MaxLength,
			&col.Default,
			&col.ForeignTable,
			&col.ForeignColumn,
		); err != nil {
			return nil, database.QueryError("failed to scan column", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("column iteration failed", err)
	}
	return cols, nil
}

// Table returns the descriptor for schema.table. A missing table yields a
// descriptor with no columns, not an error; callers check Exists.
func (c *Catalog) Table(ctx context.Context, schema, table string) (*Table, error) {
	cols, err := c.ListColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	return &Table{Schema: schema, Name: table, Columns: cols}, nil
}

// PrimaryKey resolves the single column that identifies rows of a table.
// The primary key constraint wins; without one the first of id, ID, uuid,
// UUID present among the columns is used. Tables with neither fail with a
// not-found error instead of guessing.
func (c *Catalog) PrimaryKey(ctx context.Context, schema, table string) (string, error) {
	const q = `
		SELECT a.attname::text
		FROM pg_index i
		JOIN pg_attribute a
			ON a.attrelid = i.indrelid
			AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = to_regclass(quote_ident($1) || '.' || quote_ident($2))
		  AND i.indisprimary
		ORDER BY a.attnum`

	rows, err := c.db.Query(ctx, q, schema, table)
	if err != nil {
		return "", err
	}
	keys, err := database.ScanStrings(rows)
	if err != nil {
		return "", err
	}
	if len(keys) > 0 {
		return keys[0], nil
	}

	t, err := c.Table(ctx, schema, table)
	if err != nil {
		return "", err
	}
	if !t.Exists() {
		return "", errs.Newf(errs.ErrKindNotFound, "Table '%s' does not exist", table)
	}
	for _, name := range fallbackKeys {
		if t.HasColumn(name) {
			return name, nil
		}
	}
	return "", errs.Newf(errs.ErrKindNotFound, "No primary key or id column found for table '%s'", table)
}
