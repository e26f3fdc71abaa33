package export

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/pgstudio/internal/database/dbtest"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/querygate"
	"github.com/koustreak/pgstudio/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExporter(t *testing.T, db *dbtest.FakeDB) (*Exporter, *filestore.MemoryStore) {
	t.Helper()
	store := filestore.NewMemoryStore(DownloadRoute, 0)
	cfg := filestore.Config{Provider: filestore.ProviderMemory, URLExpiry: 15 * time.Minute}
	e := New(store, cfg, querygate.New(db, 0, nil), tables.NewStore(db, nil), nil)
	e.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return e, store
}

func readObject(t *testing.T, store *filestore.MemoryStore, key string) string {
	t.Helper()
	dl, err := store.Open(context.Background(), key)
	require.NoError(t, err)
	defer dl.Close()
	b, err := io.ReadAll(dl)
	require.NoError(t, err)
	return string(b)
}

func TestExport_QueryCSV(t *testing.T) {
	db := dbtest.New().On("FROM stock", dbtest.Result{
		Columns: []string{"id", "symbol", "note"},
		Rows: [][]any{
			{int64(1), "MSFT", nil},
			{int64(2), "A,B", "x"},
		},
	})
	e, store := newExporter(t, db)

	res := e.Export(context.Background(), Request{Query: "SELECT id, symbol, note FROM stock", Name: "My Stocks!"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, strings.HasPrefix(res.Key, "2024/03/09/"), res.Key)
	assert.True(t, strings.HasSuffix(res.Key, "-my-stocks.csv"), res.Key)
	assert.Equal(t, DownloadRoute+res.Key, res.URL)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, time.Date(2024, 3, 9, 12, 15, 0, 0, time.UTC), *res.ExpiresAt)

	assert.Equal(t, "id,symbol,note\n1,MSFT,\n2,\"A,B\",x\n", readObject(t, store, res.Key))
	assert.Equal(t, int64(len("id,symbol,note\n1,MSFT,\n2,\"A,B\",x\n")), res.Size)
}

func TestExport_TableJSON(t *testing.T) {
	db := dbtest.New().
		On("information_schema.columns", dbtest.Result{Rows: [][]any{
			{"id", "integer", false, nil, nil, nil, nil},
			{"symbol", "text", true, nil, nil, nil, nil},
		}}).
		On("SELECT COUNT(*)", dbtest.Result{Rows: [][]any{{int64(1)}}}).
		On("SELECT * FROM", dbtest.Result{
			Columns: []string{"id", "symbol"},
			Rows:    [][]any{{int32(1), "MSFT"}},
		})
	e, store := newExporter(t, db)

	res := e.Export(context.Background(), Request{
		Format: FormatJSON,
		Table:  &tables.PageRequest{Table: "stock", Page: 1, PageSize: 100},
	})

	require.True(t, res.Success, res.Message)
	assert.True(t, strings.HasSuffix(res.Key, "-stock.json"), res.Key)
	assert.JSONEq(t, `[{"id":1,"symbol":"MSFT"}]`, readObject(t, store, res.Key))

	listed, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, res.Key, listed[0].Key)
	assert.Equal(t, "application/json", listed[0].ContentType)
}

func TestExport_Rejections(t *testing.T) {
	db := dbtest.New()
	e, _ := newExporter(t, db)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"neither", Request{}, "Provide either a query or a table to export"},
		{"both", Request{Query: "SELECT 1", Table: &tables.PageRequest{Table: "stock"}}, "Provide either a query or a table to export"},
		{"format", Request{Query: "SELECT 1", Format: "xlsx"}, `Unsupported export format "xlsx"`},
		{"blocked", Request{Query: "DELETE FROM stock"}, "Only SELECT queries are allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Export(ctx, tt.req)
			assert.False(t, res.Success)
			assert.Contains(t, res.Message, tt.msg)
		})
	}
	assert.Empty(t, db.Calls())
}

func TestExport_Disabled(t *testing.T) {
	e := New(nil, filestore.Config{}, nil, nil, nil)

	assert.False(t, e.Enabled())
	res := e.Export(context.Background(), Request{Query: "SELECT 1"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Exports are disabled")
}

func TestOpen_RejectsEscapingKeys(t *testing.T) {
	e, _ := newExporter(t, dbtest.New())
	ctx := context.Background()

	_, err := e.Open(ctx, "../secrets/a.csv")
	assert.True(t, errs.IsInvalidInput(err))
	_, err = e.Open(ctx, "/etc/passwd")
	assert.True(t, errs.IsInvalidInput(err))
	_, err = e.Open(ctx, "2024/03/09/missing.csv")
	assert.True(t, errs.IsNotFound(err))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"stock", "stock"},
		{"My Stocks!", "my-stocks"},
		{"list_stock", "list_stock"},
		{"  ", "export"},
		{"émoji 🚀 report", "moji-report"},
		{strings.Repeat("a", 80), strings.Repeat("a", maxNameLength)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in), tt.in)
	}
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(context.Background(), &filestore.Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = OpenStore(context.Background(), &filestore.Config{Provider: filestore.ProviderMemory, Bucket: "b", URLExpiry: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &filestore.MemoryStore{}, s)
}
