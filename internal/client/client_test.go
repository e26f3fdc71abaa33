package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koustreak/pgstudio/internal/config"
	"github.com/koustreak/pgstudio/internal/database/dbtest"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/export"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/grid"
	"github.com/koustreak/pgstudio/internal/server"
	"github.com/koustreak/pgstudio/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockDB() *dbtest.FakeDB {
	return dbtest.New().
		On("pg_index", dbtest.Result{Rows: [][]any{{"id"}}}).
		On("information_schema.columns", dbtest.Result{Rows: [][]any{
			{"id", "integer", false, nil, "nextval('stock_id_seq'::regclass)", nil, nil},
			{"symbol", "text", false, nil, nil, nil, nil},
		}})
}

func newTestClient(t *testing.T, db *dbtest.FakeDB) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Password = "hunter2"
	srv := httptest.NewServer(server.New(cfg, db, nil, nil))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func TestGetRows(t *testing.T) {
	db := stockDB().
		On("SELECT COUNT(*)", dbtest.Result{Rows: [][]any{{int64(12)}}}).
		On("SELECT * FROM", dbtest.Result{
			Columns: []string{"id", "symbol"},
			Rows:    [][]any{{int32(11), "MSFT"}, {int32(12), "AAPL"}},
		})
	c := newTestClient(t, db)

	page, err := c.GetRows(context.Background(), tables.PageRequest{
		Table:         "stock",
		Page:          2,
		PageSize:      10,
		SortColumn:    "symbol",
		SortDirection: "desc",
		Filters:       []tables.Filter{{Column: "symbol", Operator: "LIKE", Value: "%A%"}},
	})

	require.NoError(t, err)
	assert.Equal(t, tables.Pagination{Total: 12, Page: 2, PageSize: 10, PageCount: 2}, page.Pagination)
	require.Len(t, page.Records, 2)
	assert.Equal(t, json.Number("11"), page.Records[0]["id"])

	calls := db.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last.SQL, `WHERE "symbol" LIKE $1 ORDER BY "symbol" DESC`)
}

func TestGetRows_PageError(t *testing.T) {
	c := newTestClient(t, stockDB())

	page, err := c.GetRows(context.Background(), tables.PageRequest{
		Table:   "stock",
		Filters: []tables.Filter{{Column: "ghost", Operator: "=", Value: 1}},
	})

	require.Error(t, err)
	assert.Equal(t, errs.ErrKindQueryFailed, errs.KindOf(err))
	assert.Equal(t, "Cannot filter on unknown column 'ghost'", page.Error)
}

func TestWriteOperations(t *testing.T) {
	db := stockDB().
		On("INSERT INTO", dbtest.Result{Columns: []string{"id", "symbol"}, Rows: [][]any{{int32(7), "NVDA"}}}).
		On("UPDATE", dbtest.Result{Affected: 1}).
		On("DELETE FROM", dbtest.Result{Columns: []string{"id"}, Rows: [][]any{{int32(7)}}})
	c := newTestClient(t, db)
	ctx := context.Background()

	row, err := c.InsertRow(ctx, "", "stock", map[string]any{"symbol": "NVDA"})
	require.NoError(t, err)
	assert.Equal(t, "NVDA", row["symbol"])

	require.NoError(t, c.UpdateCell(ctx, "public", "stock", tables.CellEdit{RowID: 7, Column: "symbol", Value: "AMD"}))
	assert.Equal(t, 1, db.Executed(`UPDATE "public"."stock" SET "symbol" = $1 WHERE "id" = $2`))

	n, err := c.DeleteRows(ctx, "public", "stock", []any{7, 8})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestErrorKinds(t *testing.T) {
	c := newTestClient(t, stockDB())
	ctx := context.Background()

	err := c.UpdateCell(ctx, "public", "stock", tables.CellEdit{RowID: 404, Column: "symbol", Value: "X"})
	require.Error(t, err)
	assert.Equal(t, errs.ErrKindNotFound, errs.KindOf(err), err.Error())

	_, err = c.DeleteRows(ctx, "public", "stock", nil)
	require.Error(t, err)
	assert.Equal(t, errs.ErrKindInvalidInput, errs.KindOf(err))
	assert.Equal(t, "No rows selected for deletion", errs.Message(err))

	res, err := c.Query(ctx, "DROP TABLE stock")
	require.Error(t, err)
	assert.Equal(t, errs.ErrKindPolicyViolation, errs.KindOf(err))
	assert.False(t, res.Success, "the failure body is still decoded")
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrKindConnectionFailed, errs.KindOf(err))
}

func TestReadEndpoints(t *testing.T) {
	db := stockDB().
		On("information_schema.schemata", dbtest.Result{Rows: [][]any{{"public"}}}).
		On("information_schema.tables", dbtest.Result{Rows: [][]any{{"stock"}}}).
		On("version()", dbtest.Result{Rows: [][]any{{"PostgreSQL 16.2"}}}).
		On("pg_database_size", dbtest.Result{Rows: [][]any{{int64(2048)}}})
	c := newTestClient(t, db)
	ctx := context.Background()

	schemas, err := c.Schemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"public"}, schemas)

	names, err := c.Tables(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"stock"}, names)

	cols, err := c.Columns(ctx, "public", "stock")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "symbol", cols[1].Name)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PostgreSQL 16.2", h.Version)

	r, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0 kB", r.DatabaseSize)

	conn, err := c.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, "localhost", conn.Host)
	assert.Empty(t, conn.Password)
}

func TestDrivesGridController(t *testing.T) {
	db := stockDB().
		On("SELECT COUNT(*)", dbtest.Result{Rows: [][]any{{int64(2)}}}).
		On("SELECT * FROM", dbtest.Result{
			Columns: []string{"id", "symbol"},
			Rows:    [][]any{{int32(1), "MSFT"}, {int32(2), "AAPL"}},
		}).
		On("DELETE FROM", dbtest.Result{Columns: []string{"id"}, Rows: [][]any{{int32(1)}}})
	ctl := grid.New(newTestClient(t, db))
	ctx := context.Background()

	require.NoError(t, ctl.Open(ctx, "public", "stock"))
	st := ctl.State()
	assert.Equal(t, grid.StatusLoaded, st.Status)
	require.Len(t, st.Rows, 2)

	ctl.Select(st.Rows[0]["id"])
	require.NoError(t, ctl.RequestDelete())
	n, err := ctl.ConfirmDelete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, db.Executed("DELETE FROM"))
	assert.Empty(t, ctl.State().Selection)
}

func TestExportAndList(t *testing.T) {
	db := stockDB().On("FROM stock", dbtest.Result{
		Columns: []string{"id", "symbol"},
		Rows:    [][]any{{int64(1), "MSFT"}},
	})
	srv := httptest.NewServer(server.New(config.Default(), db, filestore.NewMemoryStore("/api/exports/", 0), nil))
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	ctx := context.Background()

	res, err := c.Export(ctx, export.Request{Query: "SELECT id, symbol FROM stock", Name: "stock"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RowCount)

	files, err := c.Exports(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, res.Key, files[0].Key)
	assert.Equal(t, "text/csv; charset=utf-8", files[0].ContentType)
}
