// Package grid drives a spreadsheet-like view of one table: paging, sorting,
// filtering, an inline add-row draft, optimistic cell edits and confirmed
// bulk deletes.
//
// The Controller holds the grid state behind a mutex and talks to the
// server actions through a Backend. Every load is tagged with a sequence
// number; a response that arrives after a newer one has been applied is
// dropped, so rapid page or sort changes never leave stale rows on screen.
package grid

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
	"github.com/koustreak/pgstudio/internal/tables"
)

// DraftPrefix starts the id of the placeholder row while a row is added.
const DraftPrefix = "new-"

// Backend is the set of server actions the grid needs.
type Backend interface {
	GetRows(ctx context.Context, req tables.PageRequest) (tables.PageResult, error)
	InsertRow(ctx context.Context, schema, table string, data map[string]any) (map[string]any, error)
	UpdateCell(ctx context.Context, schema, table string, edit tables.CellEdit) error
	DeleteRows(ctx context.Context, schema, table string, ids []any) (int, error)
}

// Status is the load state of the grid.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Draft is the placeholder row shown while a new row is being added.
type Draft struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Notice is a dismissible failure message.
type Notice struct {
	ID      int       `json:"id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is a snapshot of the grid.
type State struct {
	Schema     string
	Table      string
	View       View
	Filters    []tables.Filter
	Status     Status
	Rows       []map[string]any
	Pagination tables.Pagination
	Error      string

	Draft            *Draft
	Selection        []any
	ConfirmingDelete bool
	Notices          []Notice
}

// Option configures a Controller.
type Option func(*Controller)

// WithKeyColumn sets the column that identifies rows. Defaults to "id".
func WithKeyColumn(col string) Option {
	return func(c *Controller) { c.keyColumn = col }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// Controller is safe for concurrent use.
type Controller struct {
	backend   Backend
	log       *logger.Logger
	keyColumn string
	newID     func() string
	now       func() time.Time

	mu        sync.Mutex
	st        State
	selected  map[string]any
	seq       uint64 // last load issued
	applied   uint64 // last load whose response was applied
	noticeSeq int
}

// New creates an idle Controller.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		log:       logger.Nop(),
		keyColumn: "id",
		newID:     func() string { return DraftPrefix + uuid.NewString() },
		now:       time.Now,
		selected:  make(map[string]any),
		st: State{
			Schema: tables.DefaultSchema,
			View:   View{Page: 1, PageSize: tables.DefaultPageSize},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.st
	s.Rows = append([]map[string]any(nil), c.st.Rows...)
	s.Filters = append([]tables.Filter(nil), c.st.Filters...)
	s.Notices = append([]Notice(nil), c.st.Notices...)
	s.Selection = c.selectionLocked()
	if c.st.Draft != nil {
		d := *c.st.Draft
		d.Data = make(map[string]any, len(c.st.Draft.Data))
		for k, v := range c.st.Draft.Data {
			d.Data[k] = v
		}
		s.Draft = &d
	}
	return s
}

// Open switches to schema.table with a fresh view and loads the first page.
func (c *Controller) Open(ctx context.Context, schema, table string) error {
	c.mu.Lock()
	if schema == "" {
		schema = tables.DefaultSchema
	}
	c.st.Schema = schema
	c.st.Table = table
	c.st.View = View{Page: 1, PageSize: c.pageSizeLocked()}
	c.st.Filters = nil
	c.st.Draft = nil
	c.st.ConfirmingDelete = false
	c.selected = make(map[string]any)
	c.mu.Unlock()

	return c.Reload(ctx)
}

// SetView applies a view decoded from the URL and reloads.
func (c *Controller) SetView(ctx context.Context, v View) error {
	if v.Page < 1 {
		v.Page = 1
	}
	if v.PageSize < 1 {
		v.PageSize = tables.DefaultPageSize
	}
	c.mu.Lock()
	c.st.View = v
	c.mu.Unlock()
	return c.Reload(ctx)
}

// SetPage moves to page and reloads.
func (c *Controller) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.st.View.Page = page
	c.mu.Unlock()
	return c.Reload(ctx)
}

// SetPageSize changes the page size, returns to the first page and reloads.
func (c *Controller) SetPageSize(ctx context.Context, size int) error {
	if size < 1 {
		size = tables.DefaultPageSize
	}
	c.mu.Lock()
	c.st.View.PageSize = size
	c.st.View.Page = 1
	c.mu.Unlock()
	return c.Reload(ctx)
}

// SetFilters replaces the filters, returns to the first page and reloads.
func (c *Controller) SetFilters(ctx context.Context, filters []tables.Filter) error {
	c.mu.Lock()
	c.st.Filters = append([]tables.Filter(nil), filters...)
	c.st.View.Page = 1
	c.mu.Unlock()
	return c.Reload(ctx)
}

// ToggleSort advances the sort cycle of column and reloads.
func (c *Controller) ToggleSort(ctx context.Context, column string) error {
	c.mu.Lock()
	c.st.View.Sort = c.st.View.Sort.next(column)
	c.mu.Unlock()
	return c.Reload(ctx)
}

// Reload fetches the current page. A response superseded by a newer load
// is discarded and Reload returns nil.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.st.Table == "" {
		c.mu.Unlock()
		return errs.New(errs.ErrKindInvalidInput, "No table selected")
	}
	c.seq++
	seq := c.seq
	req := tables.PageRequest{
		Schema:        c.st.Schema,
		Table:         c.st.Table,
		Page:          c.st.View.Page,
		PageSize:      c.st.View.PageSize,
		SortColumn:    c.st.View.Sort.Column,
		SortDirection: c.st.View.Sort.Direction,
		Filters:       append([]tables.Filter(nil), c.st.Filters...),
	}
	c.st.Status = StatusLoading
	c.mu.Unlock()

	res, err := c.backend.GetRows(ctx, req)
	if err == nil && res.Error != "" {
		err = errs.New(errs.ErrKindQueryFailed, res.Error)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		c.log.With().Str("table", req.Table).Int("seq", int(seq)).Logger().Debug("discarding stale page")
		return nil
	}
	c.applied = seq
	if seq == c.seq {
		c.st.Status = StatusLoaded
	}

	if err != nil {
		c.st.Status = StatusError
		c.st.Error = errs.Message(err)
		c.st.Rows = nil
		c.st.Pagination = tables.Pagination{Page: req.Page, PageSize: req.PageSize}
		c.noticeLocked(err)
		return err
	}
	c.st.Error = ""
	c.st.Rows = res.Records
	c.st.Pagination = res.Pagination
	return nil
}

// --- add row ---

// AddRow shows a placeholder row. It returns false when a row is already
// being added.
func (c *Controller) AddRow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Draft != nil {
		return false
	}
	c.st.Draft = &Draft{ID: c.newID(), Data: make(map[string]any)}
	return true
}

// SetDraftValue edits a cell of the placeholder row.
func (c *Controller) SetDraftValue(column string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Draft == nil {
		return errs.New(errs.ErrKindInvalidInput, "No row is being added")
	}
	c.st.Draft.Data[column] = value
	return nil
}

// CancelRow drops the placeholder row without calling the server.
func (c *Controller) CancelRow() {
	c.mu.Lock()
	c.st.Draft = nil
	c.mu.Unlock()
}

// SaveRow inserts the placeholder row and reloads the page. On failure the
// draft stays so it can be corrected.
func (c *Controller) SaveRow(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	if c.st.Draft == nil {
		c.mu.Unlock()
		return nil, errs.New(errs.ErrKindInvalidInput, "No row is being added")
	}
	schema, table := c.st.Schema, c.st.Table
	data := make(map[string]any, len(c.st.Draft.Data))
	for k, v := range c.st.Draft.Data {
		data[k] = v
	}
	c.mu.Unlock()

	row, err := c.backend.InsertRow(ctx, schema, table, data)
	if err != nil {
		c.notice(err)
		return nil, err
	}

	c.mu.Lock()
	c.st.Draft = nil
	c.mu.Unlock()
	return row, c.Reload(ctx)
}

// --- cell edit ---

// EditCell patches the loaded row locally, then saves the cell. When the
// save fails the page is reloaded to drop the local change.
func (c *Controller) EditCell(ctx context.Context, rowID any, column string, value any) error {
	c.mu.Lock()
	schema, table := c.st.Schema, c.st.Table
	for i, row := range c.st.Rows {
		if sameID(row[c.keyColumn], rowID) {
			patched := make(map[string]any, len(row))
			for k, v := range row {
				patched[k] = v
			}
			patched[column] = value
			c.st.Rows[i] = patched
			break
		}
	}
	c.mu.Unlock()

	err := c.backend.UpdateCell(ctx, schema, table, tables.CellEdit{RowID: rowID, Column: column, Value: value})
	if err == nil {
		return nil
	}
	c.notice(err)
	if rerr := c.Reload(ctx); rerr != nil {
		c.log.WarnWith("reload after failed edit failed", rerr, map[string]interface{}{"table": table})
	}
	return err
}

// --- selection and delete ---

// Select adds ids to the selection.
func (c *Controller) Select(ids ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.selected[idKey(id)] = id
	}
}

// Deselect removes ids from the selection.
func (c *Controller) Deselect(ids ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.selected, idKey(id))
	}
}

// SelectPage selects every loaded row.
func (c *Controller) SelectPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.st.Rows {
		if id, ok := row[c.keyColumn]; ok {
			c.selected[idKey(id)] = id
		}
	}
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selected = make(map[string]any)
	c.st.ConfirmingDelete = false
	c.mu.Unlock()
}

// RequestDelete asks for confirmation before deleting the selection.
func (c *Controller) RequestDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selected) == 0 {
		return errs.New(errs.ErrKindInvalidInput, "No rows selected for deletion")
	}
	c.st.ConfirmingDelete = true
	return nil
}

// CancelDelete leaves the confirmation step and keeps the selection.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.st.ConfirmingDelete = false
	c.mu.Unlock()
}

// ConfirmDelete deletes the selected rows. Success clears the selection and
// reloads; failure keeps the selection and records a notice.
func (c *Controller) ConfirmDelete(ctx context.Context) (int, error) {
	c.mu.Lock()
	if !c.st.ConfirmingDelete {
		c.mu.Unlock()
		return 0, errs.New(errs.ErrKindInvalidInput, "Deletion has not been requested")
	}
	c.st.ConfirmingDelete = false
	schema, table := c.st.Schema, c.st.Table
	ids := c.selectionLocked()
	c.mu.Unlock()

	n, err := c.backend.DeleteRows(ctx, schema, table, ids)
	if err != nil {
		c.notice(err)
		return 0, err
	}

	c.mu.Lock()
	c.selected = make(map[string]any)
	c.mu.Unlock()
	return n, c.Reload(ctx)
}

func (c *Controller) selectionLocked() []any {
	out := make([]any, 0, len(c.selected))
	for _, id := range c.selected {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// --- notices ---

// Dismiss removes the notice with id.
func (c *Controller) Dismiss(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.st.Notices {
		if n.ID == id {
			c.st.Notices = append(c.st.Notices[:i], c.st.Notices[i+1:]...)
			return
		}
	}
}

// DismissAll clears every notice.
func (c *Controller) DismissAll() {
	c.mu.Lock()
	c.st.Notices = nil
	c.mu.Unlock()
}

func (c *Controller) notice(err error) {
	c.mu.Lock()
	c.noticeLocked(err)
	c.mu.Unlock()
}

func (c *Controller) noticeLocked(err error) {
	c.noticeSeq++
	c.st.Notices = append(c.st.Notices, Notice{ID: c.noticeSeq, Message: errs.Message(err), At: c.now()})
	c.log.WarnWith("grid action failed", err, map[string]interface{}{"table": c.st.Table})
}

func (c *Controller) pageSizeLocked() int {
	if c.st.View.PageSize > 0 {
		return c.st.View.PageSize
	}
	return tables.DefaultPageSize
}

// idKey compares row ids by their text so that 1, "1" and json.Number("1")
// name the same row.
func idKey(id any) string {
	return fmt.Sprint(id)
}

func sameID(a, b any) bool {
	return a != nil && b != nil && idKey(a) == idKey(b)
}

func sortIDs(ids []any) {
	sort.Slice(ids, func(i, j int) bool { return idKey(ids[i]) < idKey(ids[j]) })
}
