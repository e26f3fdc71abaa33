package tables_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koustreak/pgstudio/internal/admin"
	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/database/postgres"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/querygate"
	"github.com/koustreak/pgstudio/internal/stats"
	"github.com/koustreak/pgstudio/internal/tables"
)

const testPassword = "pgstudio"

// startPostgres runs a throwaway PostgreSQL container and returns a pool
// connected to it.
func startPostgres(t *testing.T) *postgres.Driver {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pgstudio",
				"POSTGRES_PASSWORD": testPassword,
				"POSTGRES_DB":       "pgstudio",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := postgres.New(ctx, database.DefaultConfig(database.ConnConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "pgstudio",
		Password: testPassword,
		Database: "pgstudio",
		SSLMode:  "disable",
	}))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestStockScenario(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, admin.New(db, nil).CreateTable(ctx, "public", "stock"))
	_, err := db.Exec(ctx, `ALTER TABLE public.stock
		ADD COLUMN symbol VARCHAR(10) NOT NULL,
		ADD COLUMN name TEXT,
		ADD COLUMN price NUMERIC(10,2)`)
	require.NoError(t, err)

	store := tables.NewStore(db, nil)
	ids := make(map[string]any)
	for _, sym := range []string{"MSFT", "AAPL", "NVDA"} {
		row, err := store.InsertRow(ctx, "public", "stock", map[string]any{
			"symbol": sym,
			"price":  "100.50",
			"ghost":  "dropped",
		})
		require.NoError(t, err, sym)
		assert.NotNil(t, row["created_at"], "defaults are filled in")
		ids[sym] = row["id"]
	}

	t.Run("sorted paging", func(t *testing.T) {
		page := store.GetPage(ctx, tables.PageRequest{
			Table: "stock", PageSize: 2, SortColumn: "symbol", SortDirection: "asc",
		})
		require.Empty(t, page.Error)
		assert.Equal(t, tables.Pagination{Total: 3, Page: 1, PageSize: 2, PageCount: 2}, page.Pagination)
		require.Len(t, page.Records, 2)
		assert.Equal(t, "AAPL", page.Records[0]["symbol"])
		assert.Equal(t, "MSFT", page.Records[1]["symbol"])
	})

	t.Run("filter", func(t *testing.T) {
		page := store.GetPage(ctx, tables.PageRequest{
			Table:   "stock",
			Filters: []tables.Filter{{Column: "symbol", Operator: "=", Value: "NVDA"}},
		})
		require.Empty(t, page.Error)
		require.Len(t, page.Records, 1)
		assert.Equal(t, int64(1), page.Pagination.Total)
	})

	t.Run("cell edit", func(t *testing.T) {
		id := fmt.Sprint(ids["MSFT"])
		require.NoError(t, store.UpdateCell(ctx, "public", "stock", tables.CellEdit{RowID: id, Column: "name", Value: "Microsoft"}))

		var name string
		require.NoError(t, db.QueryRow(ctx, "SELECT name FROM public.stock WHERE id = $1", ids["MSFT"]).Scan(&name))
		assert.Equal(t, "Microsoft", name)

		err := store.UpdateCell(ctx, "public", "stock", tables.CellEdit{RowID: "99999", Column: "name", Value: "x"})
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("bulk update is atomic", func(t *testing.T) {
		_, err := store.BulkUpdateRows(ctx, "public", "stock", []tables.RowUpdate{
			{RowID: ids["AAPL"], Data: map[string]any{"name": "Apple"}},
			{RowID: ids["NVDA"], Data: map[string]any{"symbol": "WAYTOOLONGSYMBOL"}},
		})
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))

		var n int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM public.stock WHERE name = 'Apple'").Scan(&n))
		assert.Zero(t, n, "nothing from a rejected batch is written")

		touched, err := store.BulkUpdateRows(ctx, "public", "stock", []tables.RowUpdate{
			{RowID: ids["AAPL"], Data: map[string]any{"name": "Apple", "price": "189.10"}},
			{RowID: ids["NVDA"], Data: map[string]any{"name": "Nvidia"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, touched)
	})

	t.Run("query gate", func(t *testing.T) {
		gate := querygate.New(db, 5*time.Second, nil)

		res, err := gate.Query(ctx, "SELECT symbol, price FROM public.stock ORDER BY symbol")
		require.NoError(t, err)
		assert.Equal(t, 3, res.RowCount)
		require.Len(t, res.Columns, 2)
		assert.Equal(t, "symbol", res.Columns[0].Key)

		_, err = gate.Query(ctx, "DELETE FROM public.stock")
		assert.True(t, errs.IsPolicyViolation(err))
	})

	t.Run("stats", func(t *testing.T) {
		r := stats.NewCollector(db, nil).Collect(ctx)
		assert.NotEmpty(t, r.DatabaseSize)
		assert.GreaterOrEqual(t, r.ActiveConnections, 1)

		h := stats.CheckHealth(ctx, db)
		assert.True(t, h.Success, h.Message)
		assert.Contains(t, h.Version, "PostgreSQL 16")
		require.NotNil(t, h.Pool)
	})

	t.Run("delete counts existing rows only", func(t *testing.T) {
		n, err := store.DeleteRows(ctx, "public", "stock", []any{ids["MSFT"], 99999})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("drop table", func(t *testing.T) {
		a := admin.New(db, nil)
		require.NoError(t, a.DeleteTable(ctx, "public", "stock"))
		err := a.DeleteTable(ctx, "public", "stock")
		assert.True(t, errs.IsNotFound(err))
	})
}
