package grid

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records calls and serves rows from a slice.
type fakeBackend struct {
	mu       sync.Mutex
	rows     []map[string]any
	requests []tables.PageRequest
	inserted []map[string]any
	edits    []tables.CellEdit
	deleted  [][]any

	getErr    error
	insertErr error
	updateErr error
	deleteErr error

	// gate, when set, blocks GetRows for a page until a value is sent.
	gate map[int]chan struct{}
}

func newFakeBackend(n int) *fakeBackend {
	b := &fakeBackend{}
	for i := 1; i <= n; i++ {
		b.rows = append(b.rows, map[string]any{"id": i, "symbol": "S" + string(rune('A'+i-1))})
	}
	return b
}

func (b *fakeBackend) GetRows(ctx context.Context, req tables.PageRequest) (tables.PageResult, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	wait := b.gate[req.Page]
	b.mu.Unlock()
	if wait != nil {
		<-wait
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return tables.PageResult{}, b.getErr
	}
	start := (req.Page - 1) * req.PageSize
	end := min(start+req.PageSize, len(b.rows))
	var page []map[string]any
	if start < len(b.rows) {
		page = append(page, b.rows[start:end]...)
	}
	return tables.PageResult{
		Records: page,
		Pagination: tables.Pagination{
			Total:     int64(len(b.rows)),
			Page:      req.Page,
			PageSize:  req.PageSize,
			PageCount: tables.PageCount(int64(len(b.rows)), req.PageSize),
		},
	}, nil
}

func (b *fakeBackend) InsertRow(_ context.Context, _, _ string, data map[string]any) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	b.inserted = append(b.inserted, data)
	row := map[string]any{"id": len(b.rows) + 1}
	for k, v := range data {
		row[k] = v
	}
	b.rows = append(b.rows, row)
	return row, nil
}

func (b *fakeBackend) UpdateCell(_ context.Context, _, _ string, edit tables.CellEdit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, edit)
	return b.updateErr
}

func (b *fakeBackend) DeleteRows(_ context.Context, _, _ string, ids []any) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ids)
	if b.deleteErr != nil {
		return 0, b.deleteErr
	}
	return len(ids), nil
}

func (b *fakeBackend) lastRequest() tables.PageRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func (b *fakeBackend) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func openStock(t *testing.T, b *fakeBackend) *Controller {
	t.Helper()
	c := New(b)
	require.NoError(t, c.Open(context.Background(), "", "stock"))
	return c
}

func TestOpen(t *testing.T) {
	b := newFakeBackend(25)
	c := New(b)
	assert.Equal(t, StatusIdle, c.State().Status)

	require.NoError(t, c.Open(context.Background(), "", "stock"))

	st := c.State()
	assert.Equal(t, StatusLoaded, st.Status)
	assert.Equal(t, "public", st.Schema)
	assert.Len(t, st.Rows, 10)
	assert.Equal(t, int64(3), st.Pagination.PageCount)
	assert.Equal(t, tables.PageRequest{Schema: "public", Table: "stock", Page: 1, PageSize: 10}, b.lastRequest())
}

func TestReload_NoTable(t *testing.T) {
	err := New(newFakeBackend(1)).Reload(context.Background())
	assert.True(t, errs.IsInvalidInput(err))
}

func TestPaging(t *testing.T) {
	b := newFakeBackend(25)
	c := openStock(t, b)
	ctx := context.Background()

	require.NoError(t, c.SetPage(ctx, 3))
	st := c.State()
	assert.Len(t, st.Rows, 5)
	assert.Equal(t, 3, st.Pagination.Page)

	require.NoError(t, c.SetPageSize(ctx, 20))
	assert.Equal(t, 1, b.lastRequest().Page, "page size change returns to the first page")
	assert.Equal(t, 20, b.lastRequest().PageSize)

	require.NoError(t, c.SetFilters(ctx, []tables.Filter{{Column: "symbol", Operator: "=", Value: "SA"}}))
	assert.Len(t, b.lastRequest().Filters, 1)
}

func TestToggleSort(t *testing.T) {
	b := newFakeBackend(3)
	c := openStock(t, b)
	ctx := context.Background()

	steps := []Sort{
		{Column: "symbol", Direction: SortDesc},
		{Column: "symbol", Direction: SortAsc},
		{},
		{Column: "symbol", Direction: SortDesc},
	}
	for i, want := range steps {
		require.NoError(t, c.ToggleSort(ctx, "symbol"))
		assert.Equal(t, want, c.State().View.Sort, "click %d", i+1)
		assert.Equal(t, want.Column, b.lastRequest().SortColumn)
		assert.Equal(t, want.Direction, b.lastRequest().SortDirection)
	}

	require.NoError(t, c.ToggleSort(ctx, "symbol"))
	require.NoError(t, c.ToggleSort(ctx, "name"))
	assert.Equal(t, Sort{Column: "name", Direction: SortDesc}, c.State().View.Sort, "a new column starts at desc")
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	b := newFakeBackend(25)
	c := openStock(t, b)
	ctx := context.Background()

	slow := make(chan struct{})
	b.mu.Lock()
	b.gate = map[int]chan struct{}{2: slow}
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.SetPage(ctx, 2) }()

	// wait until the page 2 request is in flight
	require.Eventually(t, func() bool { return b.requestCount() == 2 }, timeout, tick)

	require.NoError(t, c.SetPage(ctx, 3))
	close(slow)
	require.NoError(t, <-done)

	st := c.State()
	assert.Equal(t, 3, st.Pagination.Page, "the older page 2 response must not overwrite page 3")
	assert.Len(t, st.Rows, 5)
	assert.Equal(t, StatusLoaded, st.Status)
}

func TestLoadFailure(t *testing.T) {
	b := newFakeBackend(3)
	c := openStock(t, b)

	b.mu.Lock()
	b.getErr = errs.New(errs.ErrKindConnectionFailed, "connection refused")
	b.mu.Unlock()

	err := c.Reload(context.Background())
	require.Error(t, err)

	st := c.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, "connection refused", st.Error)
	assert.Empty(t, st.Rows)
	require.Len(t, st.Notices, 1)
	assert.Equal(t, "connection refused", st.Notices[0].Message)

	c.Dismiss(st.Notices[0].ID)
	assert.Empty(t, c.State().Notices)
}

func TestAddRow(t *testing.T) {
	b := newFakeBackend(2)
	c := openStock(t, b)
	ctx := context.Background()

	require.True(t, c.AddRow())
	assert.False(t, c.AddRow(), "second add while adding is a no-op")

	draft := c.State().Draft
	require.NotNil(t, draft)
	assert.True(t, strings.HasPrefix(draft.ID, DraftPrefix), draft.ID)

	require.NoError(t, c.SetDraftValue("symbol", "MSFT"))
	row, err := c.SaveRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", row["symbol"])

	st := c.State()
	assert.Nil(t, st.Draft)
	assert.Equal(t, []map[string]any{{"symbol": "MSFT"}}, b.inserted)
	assert.Equal(t, int64(3), st.Pagination.Total, "save reloads the page")
}

func TestAddRow_CancelMakesNoCall(t *testing.T) {
	b := newFakeBackend(2)
	c := openStock(t, b)
	before := b.requestCount()

	require.True(t, c.AddRow())
	c.CancelRow()

	assert.Nil(t, c.State().Draft)
	assert.Empty(t, b.inserted)
	assert.Equal(t, before, b.requestCount())
	assert.Error(t, c.SetDraftValue("symbol", "x"))
}

func TestAddRow_FailureKeepsDraft(t *testing.T) {
	b := newFakeBackend(2)
	b.insertErr = errs.New(errs.ErrKindInvalidInput, "No valid columns provided for table 'stock'")
	c := openStock(t, b)

	c.AddRow()
	_, err := c.SaveRow(context.Background())
	require.Error(t, err)

	st := c.State()
	assert.NotNil(t, st.Draft)
	require.Len(t, st.Notices, 1)
}

func TestEditCell_Optimistic(t *testing.T) {
	b := newFakeBackend(2)
	c := openStock(t, b)
	before := b.requestCount()

	require.NoError(t, c.EditCell(context.Background(), json.Number("1"), "symbol", "MSFT"))

	st := c.State()
	assert.Equal(t, "MSFT", st.Rows[0]["symbol"])
	assert.Equal(t, "SB", st.Rows[1]["symbol"])
	assert.Equal(t, before, b.requestCount(), "a successful edit does not reload")
	assert.Equal(t, "SA", b.rows[0]["symbol"], "the backend rows were not touched by the local patch")
}

func TestEditCell_FailureReloads(t *testing.T) {
	b := newFakeBackend(2)
	b.updateErr = errs.New(errs.ErrKindQueryFailed, `invalid input syntax for type integer: "abc"`)
	c := openStock(t, b)
	before := b.requestCount()

	err := c.EditCell(context.Background(), 1, "symbol", "abc")
	require.Error(t, err)

	st := c.State()
	assert.Equal(t, "SA", st.Rows[0]["symbol"], "the optimistic change is discarded")
	assert.Equal(t, before+1, b.requestCount())
	assert.Len(t, st.Notices, 1)
}

func TestBulkDelete(t *testing.T) {
	b := newFakeBackend(5)
	c := openStock(t, b)
	ctx := context.Background()

	_, err := c.ConfirmDelete(ctx)
	assert.Error(t, err, "confirmation must be requested first")
	assert.True(t, errs.IsInvalidInput(c.RequestDelete()), "nothing selected")

	c.Select(1, 3)
	c.Select(3)
	require.NoError(t, c.RequestDelete())
	assert.True(t, c.State().ConfirmingDelete)

	c.CancelDelete()
	assert.False(t, c.State().ConfirmingDelete)
	assert.Empty(t, b.deleted, "cancelling never calls the server")
	assert.Equal(t, []any{1, 3}, c.State().Selection)

	require.NoError(t, c.RequestDelete())
	n, err := c.ConfirmDelete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]any{{1, 3}}, b.deleted)
	assert.Empty(t, c.State().Selection)
}

func TestBulkDelete_FailureKeepsSelection(t *testing.T) {
	b := newFakeBackend(5)
	b.deleteErr = errs.New(errs.ErrKindQueryFailed, "violates foreign key constraint")
	c := openStock(t, b)

	c.SelectPage()
	require.NoError(t, c.RequestDelete())
	_, err := c.ConfirmDelete(context.Background())
	require.Error(t, err)

	st := c.State()
	assert.Len(t, st.Selection, 5)
	assert.False(t, st.ConfirmingDelete)
	require.Len(t, st.Notices, 1)
	assert.Equal(t, "violates foreign key constraint", st.Notices[0].Message)
}

func TestViewRoundTrip(t *testing.T) {
	v := View{Page: 3, PageSize: 25, Sort: Sort{Column: "symbol", Direction: SortAsc}}
	vals := v.Values()
	assert.Equal(t, "dir=asc&page=3&pageSize=25&sort=symbol", vals.Encode())
	assert.Equal(t, v, ParseView(vals))

	assert.Empty(t, View{Page: 1, PageSize: tables.DefaultPageSize}.Values().Encode())

	vals, err := url.ParseQuery("page=-2&pageSize=abc&sort=symbol&dir=sideways")
	require.NoError(t, err)
	assert.Equal(t, View{Page: 1, PageSize: tables.DefaultPageSize}, ParseView(vals))
}

func TestSetView(t *testing.T) {
	b := newFakeBackend(30)
	c := openStock(t, b)

	vals, err := url.ParseQuery("page=2&sort=symbol&dir=desc")
	require.NoError(t, err)
	require.NoError(t, c.SetView(context.Background(), ParseView(vals)))

	req := b.lastRequest()
	assert.Equal(t, 2, req.Page)
	assert.Equal(t, "symbol", req.SortColumn)
	assert.Equal(t, "desc", req.SortDirection)
	assert.Equal(t, vals.Encode(), c.State().View.Values().Encode())
}

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)
