package grid

import (
	"net/url"
	"strconv"

	"github.com/koustreak/pgstudio/internal/tables"
)

// Sort directions. SortNone means the column is not sorted.
const (
	SortNone = ""
	SortDesc = "desc"
	SortAsc  = "asc"
)

// Sort is the sort state of the grid. An empty Column means unsorted.
type Sort struct {
	Column    string `json:"column,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// next returns the sort after clicking the header of column:
// none -> desc -> asc -> none on the same column, desc on a new one.
func (s Sort) next(column string) Sort {
	if s.Column != column {
		return Sort{Column: column, Direction: SortDesc}
	}
	switch s.Direction {
	case SortDesc:
		return Sort{Column: column, Direction: SortAsc}
	case SortAsc:
		return Sort{}
	default:
		return Sort{Column: column, Direction: SortDesc}
	}
}

// View is the part of the grid state that lives in the page URL.
type View struct {
	Page     int
	PageSize int
	Sort     Sort
}

// Values encodes v as the sort, dir, page and pageSize query values.
func (v View) Values() url.Values {
	vals := url.Values{}
	if v.Sort.Column != "" && v.Sort.Direction != SortNone {
		vals.Set("sort", v.Sort.Column)
		vals.Set("dir", v.Sort.Direction)
	}
	if v.Page > 1 {
		vals.Set("page", strconv.Itoa(v.Page))
	}
	if v.PageSize > 0 && v.PageSize != tables.DefaultPageSize {
		vals.Set("pageSize", strconv.Itoa(v.PageSize))
	}
	return vals
}

// ParseView decodes query values written by View.Values. Missing or
// malformed values fall back to page 1, the default page size and no sort.
func ParseView(vals url.Values) View {
	v := View{Page: 1, PageSize: tables.DefaultPageSize}
	if n, err := strconv.Atoi(vals.Get("page")); err == nil && n >= 1 {
		v.Page = n
	}
	if n, err := strconv.Atoi(vals.Get("pageSize")); err == nil && n >= 1 {
		v.PageSize = min(n, tables.MaxPageSize)
	}
	if col := vals.Get("sort"); col != "" {
		switch dir := vals.Get("dir"); dir {
		case SortAsc, SortDesc:
			v.Sort = Sort{Column: col, Direction: dir}
		}
	}
	return v
}
