package tables

import (
	"strings"

	"github.com/koustreak/pgstudio/internal/database"
)

const (
	DefaultSchema   = "public"
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// Filter restricts a page to rows where Column Operator Value holds.
// IS NULL and IS NOT NULL ignore Value.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// PageRequest asks for one page of a table.
type PageRequest struct {
	Schema        string   `json:"schema,omitempty"`
	Table         string   `json:"table"`
	Page          int      `json:"page"`
	PageSize      int      `json:"pageSize"`
	SortColumn    string   `json:"sortColumn,omitempty"`
	SortDirection string   `json:"sortDirection,omitempty"` // asc | desc
	Filters       []Filter `json:"filters,omitempty"`
}

func (r *PageRequest) normalize() {
	if r.Schema == "" {
		r.Schema = DefaultSchema
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
}

func (r *PageRequest) direction() database.SortDirection {
	if strings.EqualFold(r.SortDirection, "desc") {
		return database.Desc
	}
	return database.Asc
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Total     int64 `json:"total"`
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int64 `json:"pageCount"`
}

// PageResult is one page of rows. Error is set instead of returning a Go
// error, and Records is then empty.
type PageResult struct {
	Records    []map[string]any `json:"records"`
	Pagination Pagination       `json:"pagination"`
	Error      string           `json:"error,omitempty"`
}

// PageCount returns ceil(total/pageSize).
func PageCount(total int64, pageSize int) int64 {
	if pageSize < 1 || total <= 0 {
		return 0
	}
	size := int64(pageSize)
	return (total + size - 1) / size
}

// CellEdit sets one column of one row. A nil or empty Value becomes NULL.
type CellEdit struct {
	RowID  any    `json:"rowId"`
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// RowUpdate sets several columns of one row in a bulk update.
type RowUpdate struct {
	RowID any            `json:"rowId"`
	Data  map[string]any `json:"data"`
}
