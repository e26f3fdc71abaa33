package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koustreak/pgstudio/internal/client"
	"github.com/koustreak/pgstudio/internal/config"
	"github.com/koustreak/pgstudio/internal/database/dbtest"
	"github.com/koustreak/pgstudio/internal/grid"
	"github.com/koustreak/pgstudio/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGrid(t *testing.T, db *dbtest.FakeDB) *grid.Controller {
	t.Helper()
	srv := httptest.NewServer(server.New(config.Default(), db, nil, nil))
	t.Cleanup(srv.Close)
	return grid.New(client.New(srv.URL))
}

func stockDB() *dbtest.FakeDB {
	return dbtest.New().
		On("pg_index", dbtest.Result{Rows: [][]any{{"id"}}}).
		On("information_schema.columns", dbtest.Result{Rows: [][]any{
			{"id", "integer", false, nil, nil, nil, nil},
			{"symbol", "text", false, nil, nil, nil, nil},
		}}).
		On("SELECT COUNT(*)", dbtest.Result{Rows: [][]any{{int64(1)}}}).
		On("SELECT * FROM", dbtest.Result{
			Columns: []string{"symbol", "id"},
			Rows:    [][]any{{"MSFT", int32(1)}},
		}).
		On("UPDATE", dbtest.Result{Affected: 1})
}

func TestGridLoop(t *testing.T) {
	db := stockDB()
	ctl := newTestGrid(t, db)
	ctx := context.Background()
	require.NoError(t, ctl.Open(ctx, "public", "stock"))

	var out bytes.Buffer
	in := strings.NewReader("sort symbol\nset 1 symbol Microsoft Corp\nnext\nbogus\nquit\nnever reached\n")
	require.NoError(t, gridLoop(ctx, ctl, nil, in, &out))

	text := out.String()
	assert.Contains(t, text, "sorted by symbol desc")
	assert.Contains(t, text, "error: already on the last page")
	assert.Contains(t, text, `error: unknown command "bogus"`)
	assert.Equal(t, 1, db.Executed(`ORDER BY "symbol" DESC`))

	calls := db.Calls()
	var update dbtest.Call
	for _, c := range calls {
		if strings.HasPrefix(c.SQL, "UPDATE") {
			update = c
		}
	}
	assert.Equal(t, []any{"Microsoft Corp", "1"}, update.Args)
}

func TestGridLoop_DeleteDeclined(t *testing.T) {
	db := stockDB()
	ctl := newTestGrid(t, db)
	ctx := context.Background()
	require.NoError(t, ctl.Open(ctx, "public", "stock"))

	var out bytes.Buffer
	in := strings.NewReader("select 1\ndelete\nn\nquit\n")
	require.NoError(t, gridLoop(ctx, ctl, nil, in, &out))

	assert.Contains(t, out.String(), "delete 1 rows? [y/N]")
	assert.Equal(t, 0, db.Executed("DELETE"))
	st := ctl.State()
	assert.False(t, st.ConfirmingDelete)
	assert.Len(t, st.Selection, 1)
}

func TestGridLoop_DeleteConfirmed(t *testing.T) {
	db := stockDB().On("DELETE", dbtest.Result{Rows: [][]any{{int32(1)}}})
	ctl := newTestGrid(t, db)
	ctx := context.Background()
	require.NoError(t, ctl.Open(ctx, "public", "stock"))

	var out bytes.Buffer
	in := strings.NewReader("select 1\ndelete\nyes\nquit\n")
	require.NoError(t, gridLoop(ctx, ctl, nil, in, &out))

	assert.Equal(t, 1, db.Executed("DELETE"))
	assert.Empty(t, ctl.State().Selection)
}

func TestGridLoop_DeleteAtEndOfInput(t *testing.T) {
	db := stockDB()
	ctl := newTestGrid(t, db)
	ctx := context.Background()
	require.NoError(t, ctl.Open(ctx, "public", "stock"))

	var out bytes.Buffer
	require.NoError(t, gridLoop(ctx, ctl, nil, strings.NewReader("select 1\ndelete\n"), &out))

	assert.Equal(t, 0, db.Executed("DELETE"))
}

// tableCells splits one bordered table line into trimmed cell values.
func tableCells(line string) []string {
	parts := strings.Split(line, "│")
	if len(parts) < 3 {
		return nil
	}
	cells := make([]string, 0, len(parts)-2)
	for _, p := range parts[1 : len(parts)-1] {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

func tableLines(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if cells := tableCells(line); cells != nil {
			rows = append(rows, cells)
		}
	}
	return rows
}

func TestPrintGrid(t *testing.T) {
	var out bytes.Buffer
	printGrid(&out, grid.State{
		Schema:    "public",
		Table:     "stock",
		Rows:      []map[string]any{{"symbol": "MSFT", "id": 1, "note": nil}},
		Selection: []any{1},
	}, nil)

	rows := tableLines(out.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "note", "symbol"}, rows[0])
	assert.Equal(t, []string{"1", "NULL", "MSFT"}, rows[1])
	assert.Contains(t, out.String(), "1 selected")
}

func TestPrintGrid_CatalogOrder(t *testing.T) {
	var out bytes.Buffer
	printGrid(&out, grid.State{
		Schema: "public",
		Table:  "stock",
		Rows:   []map[string]any{{"symbol": "MSFT", "id": 1, "price": 412.5, "extra": true}},
	}, []string{"symbol", "price", "id"})

	rows := tableLines(out.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"symbol", "price", "id", "extra"}, rows[0])
	assert.Equal(t, []string{"MSFT", "412.5", "1", "true"}, rows[1])
}

func TestColumnsOf(t *testing.T) {
	rows := []map[string]any{{"b": 1, "id": 2, "a": 3}}

	assert.Equal(t, []string{"id", "a", "b"}, columnsOf(nil, rows))
	assert.Equal(t, []string{"b", "a", "id"}, columnsOf([]string{"b", "a", "id"}, rows))
	assert.Equal(t, []string{"b", "a", "id"}, columnsOf([]string{"b"}, rows))
	assert.Equal(t, []string{"id", "symbol"}, columnsOf([]string{"id", "symbol"}, nil))
}
