package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/pgstudio/internal/errs"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// unaryOps take no value.
var unaryOps = map[string]bool{
	"IS NULL":     true,
	"IS NOT NULL": true,
}

// ValidOperator reports whether op may appear in a WHERE clause.
func ValidOperator(op string) bool {
	op = strings.ToUpper(strings.TrimSpace(op))
	return validOps[op] || unaryOps[op]
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

func (d SortDirection) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

type whereClause struct {
	column string
	op     string
	value  any
	values []any // only for IN
}

type orderClause struct {
	column string
	dir    SortDirection
}

// argList numbers bound parameters as they are appended.
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

// QuoteIdent wraps a SQL identifier in double-quotes, doubling any embedded
// quote. This safely handles reserved words and mixed-case names.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName quotes schema and relation and joins them with a dot.
// An empty schema yields the bare quoted relation.
func QualifiedName(schema, name string) string {
	if schema == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// QuoteLiteral quotes a string as a SQL literal. Only for statements that
// cannot take bind parameters (DDL).
func QuoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func compileWhere(where []whereClause, args *argList) (string, error) {
	if len(where) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(where))
	for _, w := range where {
		op := strings.ToUpper(strings.TrimSpace(w.op))
		switch {
		case op == "IN":
			if len(w.values) == 0 {
				return "", errs.New(errs.ErrKindInvalidInput, "IN clause requires at least one value")
			}
			ph := make([]string, len(w.values))
			for i, v := range w.values {
				ph[i] = args.add(v)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", QuoteIdent(w.column), strings.Join(ph, ", ")))
		case unaryOps[op]:
			parts = append(parts, fmt.Sprintf("%s %s", QuoteIdent(w.column), op))
		case validOps[op]:
			parts = append(parts, fmt.Sprintf("%s %s %s", QuoteIdent(w.column), op, args.add(w.value)))
		default:
			return "", errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are always passed as args, never interpolated into the SQL.
//
// Usage:
//
//	sql, args, err := Select("public", "stock").
//	    Where("symbol", "=", "MSFT").
//	    OrderBy("createdAt", Desc).
//	    Limit(20).
//	    Offset(0).
//	    Build()
type SelectBuilder struct {
	schema  string
	table   string
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Select starts a new SelectBuilder for the given relation.
func Select(schema, table string) *SelectBuilder {
	return &SelectBuilder{schema: schema, table: table}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a WHERE condition. op must be one of the allowed comparison
// operators (=, !=, <>, <, >, <=, >=, LIKE, ILIKE, IS NULL, IS NOT NULL).
// Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, op: op, value: value})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an error if any WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (string, []any, error) {
	cols := "*"
	if len(b.columns) > 0 {
		cols = quoteAll(b.columns)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(QualifiedName(b.schema, b.table))

	args := &argList{}
	where, err := compileWhere(b.where, args)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			parts[i] = fmt.Sprintf("%s %s", QuoteIdent(o.column), o.dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sb.WriteString(" LIMIT " + args.add(*b.limit))
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET " + args.add(*b.offset))
	}

	return sb.String(), args.args, nil
}

// BuildCount produces SELECT COUNT(*) with the same FROM and WHERE as Build.
// ORDER BY, LIMIT and OFFSET are ignored.
func (b *SelectBuilder) BuildCount() (string, []any, error) {
	args := &argList{}
	where, err := compileWhere(b.where, args)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + QualifiedName(b.schema, b.table) + where, args.args, nil
}

// InsertBuilder constructs a single-row parameterized INSERT.
type InsertBuilder struct {
	schema    string
	table     string
	columns   []string
	values    []any
	returning []string
}

// InsertInto starts a new InsertBuilder for the given relation.
func InsertInto(schema, table string) *InsertBuilder {
	return &InsertBuilder{schema: schema, table: table}
}

// Value appends a column and its bound value.
func (b *InsertBuilder) Value(column string, v any) *InsertBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, v)
	return b
}

// Returning sets the RETURNING list. "*" returns every column.
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	b.returning = cols
	return b
}

// Build produces the INSERT statement. At least one column is required.
func (b *InsertBuilder) Build() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "insert requires at least one column")
	}

	args := &argList{}
	ph := make([]string, len(b.values))
	for i, v := range b.values {
		ph[i] = args.add(v)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QualifiedName(b.schema, b.table), quoteAll(b.columns), strings.Join(ph, ", "))
	return sql + returningClause(b.returning), args.args, nil
}

// CaseWhen is one branch of a CASE key WHEN ... THEN ... expression.
type CaseWhen struct {
	Key   any
	Value any
}

type setClause struct {
	column  string
	value   any
	caseKey string
	cases   []CaseWhen
}

// UpdateBuilder constructs a parameterized UPDATE.
type UpdateBuilder struct {
	schema    string
	table     string
	sets      []setClause
	where     []whereClause
	returning []string
}

// Update starts a new UpdateBuilder for the given relation.
func Update(schema, table string) *UpdateBuilder {
	return &UpdateBuilder{schema: schema, table: table}
}

// Set assigns a bound value to column.
func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.sets = append(b.sets, setClause{column: column, value: value})
	return b
}

// SetCase assigns column = CASE key WHEN k1 THEN v1 ... ELSE column END,
// leaving rows that match no branch unchanged.
func (b *UpdateBuilder) SetCase(column, key string, cases []CaseWhen) *UpdateBuilder {
	b.sets = append(b.sets, setClause{column: column, caseKey: key, cases: cases})
	return b
}

// Where adds an AND-combined condition, see SelectBuilder.Where.
func (b *UpdateBuilder) Where(column, op string, value any) *UpdateBuilder {
	b.where = append(b.where, whereClause{column: column, op: op, value: value})
	return b
}

// WhereIn adds column IN (values...).
func (b *UpdateBuilder) WhereIn(column string, values []any) *UpdateBuilder {
	b.where = append(b.where, whereClause{column: column, op: "IN", values: values})
	return b
}

// Returning sets the RETURNING list.
func (b *UpdateBuilder) Returning(cols ...string) *UpdateBuilder {
	b.returning = cols
	return b
}

// Build produces the UPDATE statement. Updates without a WHERE clause are
// refused so that a grid edit can never rewrite a whole table.
func (b *UpdateBuilder) Build() (string, []any, error) {
	if len(b.sets) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "update requires at least one column")
	}
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "update requires a WHERE clause")
	}

	args := &argList{}
	parts := make([]string, len(b.sets))
	for i, s := range b.sets {
		if s.caseKey == "" {
			parts[i] = fmt.Sprintf("%s = %s", QuoteIdent(s.column), args.add(s.value))
			continue
		}
		if len(s.cases) == 0 {
			return "", nil, errs.Newf(errs.ErrKindInvalidInput, "CASE update of %q has no branches", s.column)
		}
		var cb strings.Builder
		fmt.Fprintf(&cb, "%s = CASE %s", QuoteIdent(s.column), QuoteIdent(s.caseKey))
		for _, c := range s.cases {
			fmt.Fprintf(&cb, " WHEN %s THEN %s", args.add(c.Key), args.add(c.Value))
		}
		fmt.Fprintf(&cb, " ELSE %s END", QuoteIdent(s.column))
		parts[i] = cb.String()
	}

	where, err := compileWhere(b.where, args)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s",
		QualifiedName(b.schema, b.table), strings.Join(parts, ", "), where)
	return sql + returningClause(b.returning), args.args, nil
}

// DeleteBuilder constructs a parameterized DELETE.
type DeleteBuilder struct {
	schema    string
	table     string
	where     []whereClause
	returning []string
}

// DeleteFrom starts a new DeleteBuilder for the given relation.
func DeleteFrom(schema, table string) *DeleteBuilder {
	return &DeleteBuilder{schema: schema, table: table}
}

// Where adds an AND-combined condition, see SelectBuilder.Where.
func (b *DeleteBuilder) Where(column, op string, value any) *DeleteBuilder {
	b.where = append(b.where, whereClause{column: column, op: op, value: value})
	return b
}

// WhereIn adds column IN (values...).
func (b *DeleteBuilder) WhereIn(column string, values []any) *DeleteBuilder {
	b.where = append(b.where, whereClause{column: column, op: "IN", values: values})
	return b
}

// Returning sets the RETURNING list.
func (b *DeleteBuilder) Returning(cols ...string) *DeleteBuilder {
	b.returning = cols
	return b
}

// Build produces the DELETE statement. A WHERE clause is mandatory.
func (b *DeleteBuilder) Build() (string, []any, error) {
	if len(b.where) == 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "delete requires a WHERE clause")
	}
	args := &argList{}
	where, err := compileWhere(b.where, args)
	if err != nil {
		return "", nil, err
	}
	sql := "DELETE FROM " + QualifiedName(b.schema, b.table) + where
	return sql + returningClause(b.returning), args.args, nil
}

func returningClause(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	if len(cols) == 1 && cols[0] == "*" {
		return " RETURNING *"
	}
	return " RETURNING " + quoteAll(cols)
}
