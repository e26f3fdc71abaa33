package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/pgstudio/internal/catalog"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
	"github.com/koustreak/pgstudio/internal/tables"
)

// SchemaList is the answer of GET /api/schemas.
type SchemaList struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Schemas []string `json:"schemas"`
}

// TableList is the answer of GET /api/schemas/{schema}/tables.
type TableList struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Tables  []string `json:"tables"`
}

// ColumnList describes the columns of one table.
type ColumnList struct {
	Success bool             `json:"success"`
	Columns []catalog.Column `json:"columns"`
}

// RowResult is the answer of a row insert.
type RowResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Row     map[string]any `json:"row"`
}

// CountResult is the answer of row deletes and bulk updates.
type CountResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// InsertRowRequest is the body of POST .../rows.
type InsertRowRequest struct {
	Data map[string]any `json:"data"`
}

// UpdateCellRequest is the body of PATCH .../rows/{rowID}. The row id comes from
// the path.
type UpdateCellRequest struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// BulkUpdateRequest is the body of the bulk update.
type BulkUpdateRequest struct {
	Updates []tables.RowUpdate `json:"updates"`
}

// DeleteRowsRequest is the body of POST .../rows/delete.
type DeleteRowsRequest struct {
	IDs []any `json:"ids"`
}

func tableParams(r *http.Request) (schema, table string) {
	return chi.URLParam(r, "schema"), chi.URLParam(r, "table")
}

func tableFields(schema, table string) logger.Fields {
	return logger.Fields{"schema": schema, "table": table}
}

// handleListSchemas answers with an empty list when the catalog cannot be
// read; the failure is logged and reported in Message.
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.tables.Catalog().ListSchemas(r.Context())
	if err != nil {
		s.log.ErrorWith("fetch schemas failed", err, nil)
		s.writeJSON(w, http.StatusOK, SchemaList{Message: errs.Message(err), Schemas: []string{}})
		return
	}
	s.writeJSON(w, http.StatusOK, SchemaList{Success: true, Schemas: schemas})
}

// handleListTables answers with an empty list when the catalog cannot be
// read; the failure is logged and reported in Message.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	names, err := s.tables.Catalog().ListTables(r.Context(), schema)
	if err != nil {
		s.log.ErrorWith("fetch tables failed", err, map[string]interface{}{"schema": schema})
		s.writeJSON(w, http.StatusOK, TableList{Message: errs.Message(err), Tables: []string{}})
		return
	}
	s.writeJSON(w, http.StatusOK, TableList{Success: true, Tables: names})
}

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	cols, err := s.tables.Catalog().ListColumns(r.Context(), schema, table)
	if err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusOK, ColumnList{Success: true, Columns: cols})
}

// handleGetRows reads the page from the query string: page, pageSize, sort,
// dir and filters (a JSON array of {column, operator, value}).
func (s *Server) handleGetRows(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	q := r.URL.Query()

	req := tables.PageRequest{
		Schema:        schema,
		Table:         table,
		Page:          atoi(q.Get("page")),
		PageSize:      atoi(q.Get("pageSize")),
		SortColumn:    q.Get("sort"),
		SortDirection: q.Get("dir"),
	}
	if raw := q.Get("filters"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&req.Filters); err != nil {
			s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "Invalid filters parameter", err), tableFields(schema, table))
			return
		}
	}

	s.writeJSON(w, http.StatusOK, s.tables.GetPage(r.Context(), req))
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	var body InsertRowRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}

	row, err := s.tables.InsertRow(r.Context(), schema, table, body.Data)
	if err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusCreated, RowResult{Success: true, Message: "Row added", Row: row})
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	var body UpdateCellRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}

	edit := tables.CellEdit{RowID: chi.URLParam(r, "rowID"), Column: body.Column, Value: body.Value}
	if err := s.tables.UpdateCell(r.Context(), schema, table, edit); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusOK, ok("Cell updated"))
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	var body BulkUpdateRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}

	n, err := s.tables.BulkUpdateRows(r.Context(), schema, table, body.Updates)
	if err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusOK, CountResult{Success: true, Message: fmt.Sprintf("Updated %d rows", n), Count: n})
}

func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	var body DeleteRowsRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}

	n, err := s.tables.DeleteRows(r.Context(), schema, table, body.IDs)
	if err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusOK, CountResult{Success: true, Message: fmt.Sprintf("Deleted %d rows", n), Count: n})
}

// atoi returns 0 for anything that is not an integer; paging defaults apply.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
