// Package admin creates, renames and drops schemas and tables.
//
// Each operation checks the catalog first and refuses duplicates, missing
// targets and any change to the public schema. The check and the DDL are not
// locked together; a concurrent change between them surfaces as a database
// error.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/pgstudio/internal/catalog"
	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
)

// ReservedSchema can never be created, renamed or dropped.
const ReservedSchema = "public"

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLength = 63

// Admin runs guarded DDL.
type Admin struct {
	db      database.DB
	catalog *catalog.Catalog
	log     *logger.Logger
}

// New creates an Admin on db. A nil log discards output.
func New(db database.DB, log *logger.Logger) *Admin {
	if log == nil {
		log = logger.Nop()
	}
	return &Admin{db: db, catalog: catalog.New(db), log: log}
}

func validateName(what, name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "%s name cannot be empty", what)
	}
	if len(name) > maxIdentifierLength {
		return errs.Newf(errs.ErrKindInvalidInput, "%s name '%s' exceeds %d bytes", what, name, maxIdentifierLength)
	}
	if strings.ContainsRune(name, 0) {
		return errs.Newf(errs.ErrKindInvalidInput, "%s name contains a NUL byte", what)
	}
	return nil
}

func reserved(action string) error {
	return errs.Newf(errs.ErrKindPolicyViolation, "The '%s' schema is reserved and cannot be %s", ReservedSchema, action)
}

func (a *Admin) exec(ctx context.Context, ddl string, fields map[string]interface{}) error {
	if _, err := a.db.Exec(ctx, ddl); err != nil {
		a.log.ErrorWith("ddl failed", err, fields)
		return err
	}
	a.log.InfoWith("ddl applied", fields)
	return nil
}

func (a *Admin) requireSchema(ctx context.Context, schema string) error {
	ok, err := a.catalog.SchemaExists(ctx, schema)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.ErrKindNotFound, "Schema '%s' does not exist", schema)
	}
	return nil
}

// --- Schemas ---

// CreateSchema creates an empty schema.
func (a *Admin) CreateSchema(ctx context.Context, name string) error {
	if err := validateName("Schema", name); err != nil {
		return err
	}
	if name == ReservedSchema {
		return reserved("created")
	}
	exists, err := a.catalog.SchemaExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return errs.Newf(errs.ErrKindConflict, "Schema '%s' already exists", name)
	}
	return a.exec(ctx, "CREATE SCHEMA "+database.QuoteIdent(name),
		map[string]interface{}{"op": "create_schema", "schema": name})
}

// RenameSchema renames oldName to newName.
func (a *Admin) RenameSchema(ctx context.Context, oldName, newName string) error {
	if err := validateName("Schema", oldName); err != nil {
		return err
	}
	if err := validateName("Schema", newName); err != nil {
		return err
	}
	if oldName == ReservedSchema || newName == ReservedSchema {
		return reserved("renamed")
	}
	if err := a.requireSchema(ctx, oldName); err != nil {
		return err
	}
	exists, err := a.catalog.SchemaExists(ctx, newName)
	if err != nil {
		return err
	}
	if exists {
		return errs.Newf(errs.ErrKindConflict, "Schema '%s' already exists", newName)
	}
	ddl := fmt.Sprintf("ALTER SCHEMA %s RENAME TO %s", database.QuoteIdent(oldName), database.QuoteIdent(newName))
	return a.exec(ctx, ddl, map[string]interface{}{"op": "rename_schema", "schema": oldName, "new_name": newName})
}

// DeleteSchema drops a schema and everything in it.
func (a *Admin) DeleteSchema(ctx context.Context, name string) error {
	if err := validateName("Schema", name); err != nil {
		return err
	}
	if name == ReservedSchema {
		return reserved("deleted")
	}
	if err := a.requireSchema(ctx, name); err != nil {
		return err
	}
	return a.exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", database.QuoteIdent(name)),
		map[string]interface{}{"op": "delete_schema", "schema": name})
}

// --- Tables ---

// CreateTable creates a table with an id primary key and created_at /
// updated_at timestamps.
func (a *Admin) CreateTable(ctx context.Context, schema, name string) error {
	if err := validateName("Table", name); err != nil {
		return err
	}
	if err := a.requireSchema(ctx, schema); err != nil {
		return err
	}
	exists, err := a.catalog.TableExists(ctx, schema, name)
	if err != nil {
		return err
	}
	if exists {
		return errs.Newf(errs.ErrKindConflict, "Table '%s' already exists in schema '%s'", name, schema)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", database.QualifiedName(schema, name))
	b.WriteString("  id SERIAL PRIMARY KEY,\n")
	b.WriteString("  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	b.WriteString("  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()\n")
	b.WriteString(")")

	return a.exec(ctx, b.String(), map[string]interface{}{"op": "create_table", "schema": schema, "table": name})
}

// RenameTable renames a table within its schema.
func (a *Admin) RenameTable(ctx context.Context, schema, oldName, newName string) error {
	if err := validateName("Table", oldName); err != nil {
		return err
	}
	if err := validateName("Table", newName); err != nil {
		return err
	}
	exists, err := a.catalog.TableExists(ctx, schema, oldName)
	if err != nil {
		return err
	}
	if !exists {
		return errs.Newf(errs.ErrKindNotFound, "Table '%s' does not exist in schema '%s'", oldName, schema)
	}
	if exists, err = a.catalog.TableExists(ctx, schema, newName); err != nil {
		return err
	}
	if exists {
		return errs.Newf(errs.ErrKindConflict, "Table '%s' already exists in schema '%s'", newName, schema)
	}
	ddl := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", database.QualifiedName(schema, oldName), database.QuoteIdent(newName))
	return a.exec(ctx, ddl, map[string]interface{}{"op": "rename_table", "schema": schema, "table": oldName, "new_name": newName})
}

// DeleteTable drops a table.
func (a *Admin) DeleteTable(ctx context.Context, schema, name string) error {
	if err := validateName("Table", name); err != nil {
		return err
	}
	exists, err := a.catalog.TableExists(ctx, schema, name)
	if err != nil {
		return err
	}
	if !exists {
		return errs.Newf(errs.ErrKindNotFound, "Table '%s' does not exist in schema '%s'", name, schema)
	}
	return a.exec(ctx, "DROP TABLE "+database.QualifiedName(schema, name),
		map[string]interface{}{"op": "delete_table", "schema": schema, "table": name})
}
