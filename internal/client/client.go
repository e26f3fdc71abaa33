// Package client calls the pgstudio HTTP API. It implements grid.Backend
// so the grid controller can drive a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/pgstudio/internal/catalog"
	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/export"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/grid"
	"github.com/koustreak/pgstudio/internal/querygate"
	"github.com/koustreak/pgstudio/internal/server"
	"github.com/koustreak/pgstudio/internal/stats"
	"github.com/koustreak/pgstudio/internal/tables"
)

// DefaultTimeout bounds each request unless the context ends sooner.
const DefaultTimeout = 60 * time.Second

// Client talks to one pgstudio server.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func tablePath(schema, table string) string {
	if schema == "" {
		schema = tables.DefaultSchema
	}
	return "/api/schemas/" + url.PathEscape(schema) + "/tables/" + url.PathEscape(table)
}

// GetRows fetches one page. A page whose Error is set is returned together
// with a QueryFailed error.
func (c *Client) GetRows(ctx context.Context, req tables.PageRequest) (tables.PageResult, error) {
	q := url.Values{}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}
	if req.SortColumn != "" {
		q.Set("sort", req.SortColumn)
		q.Set("dir", req.SortDirection)
	}
	if len(req.Filters) > 0 {
		raw, err := json.Marshal(req.Filters)
		if err != nil {
			return tables.PageResult{}, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode filters", err)
		}
		q.Set("filters", string(raw))
	}

	path := tablePath(req.Schema, req.Table) + "/rows"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var page tables.PageResult
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return tables.PageResult{}, err
	}
	if page.Error != "" {
		return page, errs.New(errs.ErrKindQueryFailed, page.Error)
	}
	return page, nil
}

// InsertRow adds a row and returns it as stored.
func (c *Client) InsertRow(ctx context.Context, schema, table string, data map[string]any) (map[string]any, error) {
	var res server.RowResult
	if err := c.do(ctx, http.MethodPost, tablePath(schema, table)+"/rows", server.InsertRowRequest{Data: data}, &res); err != nil {
		return nil, err
	}
	return res.Row, nil
}

// UpdateCell sets one cell.
func (c *Client) UpdateCell(ctx context.Context, schema, table string, edit tables.CellEdit) error {
	path := tablePath(schema, table) + "/rows/" + url.PathEscape(fmt.Sprint(edit.RowID))
	return c.do(ctx, http.MethodPatch, path, server.UpdateCellRequest{Column: edit.Column, Value: edit.Value}, nil)
}

// DeleteRows deletes rows by id and returns how many existed.
func (c *Client) DeleteRows(ctx context.Context, schema, table string, ids []any) (int, error) {
	var res server.CountResult
	if err := c.do(ctx, http.MethodPost, tablePath(schema, table)+"/rows/delete", server.DeleteRowsRequest{IDs: ids}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// BulkUpdateRows applies updates atomically and returns the rows touched.
func (c *Client) BulkUpdateRows(ctx context.Context, schema, table string, updates []tables.RowUpdate) (int, error) {
	var res server.CountResult
	if err := c.do(ctx, http.MethodPost, tablePath(schema, table)+"/rows/bulk-update", server.BulkUpdateRequest{Updates: updates}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Schemas lists the non-system schemas.
func (c *Client) Schemas(ctx context.Context) ([]string, error) {
	var res server.SchemaList
	if err := c.do(ctx, http.MethodGet, "/api/schemas", nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return res.Schemas, errs.New(errs.ErrKindQueryFailed, res.Message)
	}
	return res.Schemas, nil
}

// Tables lists the base tables of schema.
func (c *Client) Tables(ctx context.Context, schema string) ([]string, error) {
	var res server.TableList
	if err := c.do(ctx, http.MethodGet, "/api/schemas/"+url.PathEscape(schema)+"/tables", nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return res.Tables, errs.New(errs.ErrKindQueryFailed, res.Message)
	}
	return res.Tables, nil
}

// Columns lists the columns of schema.table in ordinal order.
func (c *Client) Columns(ctx context.Context, schema, table string) ([]catalog.Column, error) {
	var res server.ColumnList
	if err := c.do(ctx, http.MethodGet, tablePath(schema, table)+"/columns", nil, &res); err != nil {
		return nil, err
	}
	return res.Columns, nil
}

// Query runs a read-only statement through the query gate.
func (c *Client) Query(ctx context.Context, sql string) (querygate.Result, error) {
	var res querygate.Result
	err := c.do(ctx, http.MethodPost, "/api/query", server.QueryRequest{Query: sql}, &res)
	return res, err
}

// Stats fetches the performance snapshot of the server's database.
func (c *Client) Stats(ctx context.Context) (stats.Report, error) {
	var r stats.Report
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &r)
	return r, err
}

// Health checks the server's database connection.
func (c *Client) Health(ctx context.Context) (stats.Health, error) {
	var h stats.Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &h)
	return h, err
}

// Config returns the server's connection settings without the password.
func (c *Client) Config(ctx context.Context) (database.ConnConfig, error) {
	var conn database.ConnConfig
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &conn)
	return conn, err
}

// Export asks the server to upload an export and returns its download URL.
func (c *Client) Export(ctx context.Context, req export.Request) (export.Result, error) {
	var res export.Result
	err := c.do(ctx, http.MethodPost, "/api/export", req, &res)
	return res, err
}

// Exports lists the files in the server's export store.
func (c *Client) Exports(ctx context.Context) ([]filestore.File, error) {
	var list server.ExportList
	if err := c.do(ctx, http.MethodGet, "/api/exports", nil, &list); err != nil {
		return nil, err
	}
	return list.Exports, nil
}

// do sends body as JSON and decodes the answer into out. Non-2xx answers
// become *errs.Error values carrying the server's message; out is still
// filled when the body decodes.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "failed to encode request", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrKindTimeout, "request cancelled", err)
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "cannot reach pgstudio server", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "failed to read response", err)
	}

	if out != nil && len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if derr := dec.Decode(out); derr != nil && resp.StatusCode < 300 {
			return errs.Wrap(errs.ErrKindQueryFailed, "invalid response from server", derr)
		}
	}

	if resp.StatusCode >= 300 {
		msg, kind := resp.Status, kindFor(resp.StatusCode)
		var fail server.Response
		if json.Unmarshal(raw, &fail) == nil {
			if fail.Message != "" {
				msg = fail.Message
			}
			if fail.Kind != errs.ErrKindUnknown {
				kind = fail.Kind
			}
		}
		return errs.New(kind, msg)
	}
	return nil
}

// kindFor guesses a kind from the status when the body does not carry one.
func kindFor(status int) errs.ErrKind {
	switch status {
	case http.StatusNotFound:
		return errs.ErrKindNotFound
	case http.StatusConflict:
		return errs.ErrKindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.ErrKindInvalidInput
	case http.StatusForbidden:
		return errs.ErrKindPolicyViolation
	case http.StatusUnauthorized:
		return errs.ErrKindPermissionDenied
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return errs.ErrKindConnectionFailed
	case http.StatusGatewayTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}

var _ grid.Backend = (*Client)(nil)
