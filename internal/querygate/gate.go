// Package querygate runs free-form SQL typed by a user after rejecting
// statements that contain mutating keywords.
//
// The keyword check is a token heuristic, not a parser. It blocks a SELECT
// that mentions one of the words as a bare token and lets through keywords
// glued to punctuation or hidden in comments. It keeps casual users from
// editing data by accident; it is not an access control mechanism.
package querygate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
)

// BlockedKeywords reject a statement when any appears as a standalone token.
var BlockedKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "CREATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
}

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Column type labels inferred from the first row.
const (
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeString  = "string"
)

// Column describes one result column.
type Column struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is the outcome of one statement. Failed statements carry no rows.
type Result struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Results  []map[string]any `json:"results"`
	Columns  []Column         `json:"columns"`
	RowCount int              `json:"rowCount"`
}

// Gate executes user SQL on a Querier.
type Gate struct {
	db      database.Querier
	timeout time.Duration
	log     *logger.Logger
}

// New creates a Gate. A zero timeout leaves the caller's deadline in charge.
func New(db database.Querier, timeout time.Duration, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{db: db, timeout: timeout, log: log}
}

// Check returns a policy error when sql is empty or contains a blocked
// keyword as a standalone token.
func Check(sql string) error {
	upper := strings.ToUpper(sql)
	if strings.TrimSpace(upper) == "" {
		return errs.New(errs.ErrKindInvalidInput, "Query cannot be empty")
	}
	for _, tok := range strings.Fields(upper) {
		for _, kw := range BlockedKeywords {
			if tok == kw {
				return errs.Newf(errs.ErrKindPolicyViolation,
					"Only SELECT queries are allowed. The query contains the blocked keyword %s", kw)
			}
		}
	}
	return nil
}

// Run checks and executes sql. It never returns a Go error; failures are
// reported through Result.Success and Result.Message.
func (g *Gate) Run(ctx context.Context, sql string) Result {
	res, err := g.Query(ctx, sql)
	if err != nil {
		return Failure(err)
	}
	return res
}

// Query checks and executes sql, returning the error instead of folding it
// into the result.
func (g *Gate) Query(ctx context.Context, sql string) (Result, error) {
	if err := Check(sql); err != nil {
		g.log.With().Str("kind", errs.KindOf(err).String()).Logger().Warn("query rejected")
		return Result{}, err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := g.db.Query(ctx, sql)
	if err != nil {
		g.log.ErrorWith("query failed", err, nil)
		return Result{}, err
	}
	set, err := database.Collect(rows)
	if err != nil {
		g.log.ErrorWith("query failed", err, nil)
		return Result{}, err
	}

	records := set.Records
	cols := inferColumns(set.Columns, records)
	for _, rec := range records {
		normalizeDates(rec)
	}

	g.log.With().Int("rows", len(records)).Str("elapsed", time.Since(start).String()).Logger().Debug("query executed")

	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Query executed successfully. %d row(s) returned.", len(records)),
		Results:  records,
		Columns:  cols,
		RowCount: len(records),
	}, nil
}

// Failure builds the result for a rejected or failed statement.
func Failure(err error) Result {
	return Result{
		Success: false,
		Message: errs.Message(err),
		Results: []map[string]any{},
		Columns: []Column{},
	}
}

// normalizeDates replaces time values with ISO-8601 strings in UTC.
func normalizeDates(rec map[string]any) {
	for k, v := range rec {
		if t, ok := v.(time.Time); ok {
			rec[k] = t.UTC().Format(isoMillis)
		}
	}
}

// inferColumns labels each column from its value in the first row. Without
// rows every column is a string. A NULL in the first row also reads as a
// string.
func inferColumns(names []string, records []map[string]any) []Column {
	cols := make([]Column, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		typ := TypeString
		if len(records) > 0 {
			typ = typeOf(records[0][name])
		}
		cols = append(cols, Column{Key: name, Name: name, Type: typ})
	}
	return cols
}

func typeOf(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return TypeNumber
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeDate
	}
	return TypeString
}
