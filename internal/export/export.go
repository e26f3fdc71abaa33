// Package export renders query results and table pages as CSV or JSON and
// uploads them to the configured object store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/logger"
	"github.com/koustreak/pgstudio/internal/querygate"
	"github.com/koustreak/pgstudio/internal/tables"
)

// Format is the rendering of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

const maxNameLength = 64

var errDisabled = errs.New(errs.ErrKindInvalidInput, "Exports are disabled: no object store is configured")

// Request selects what to export. Exactly one of Query and Table is set.
type Request struct {
	Format Format              `json:"format"`
	Name   string              `json:"name,omitempty"`
	Query  string              `json:"query,omitempty"`
	Table  *tables.PageRequest `json:"table,omitempty"`
}

// Result describes an uploaded export.
type Result struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Key       string     `json:"key,omitempty"`
	URL       string     `json:"url,omitempty"`
	Size      int64      `json:"size"`
	SizeLabel string     `json:"sizeLabel,omitempty"`
	RowCount  int        `json:"rowCount"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	Kind errs.ErrKind `json:"kind,omitempty"`
}

// Exporter produces exports. A nil store disables it.
type Exporter struct {
	store  filestore.Store
	ttl    time.Duration
	gate   *querygate.Gate
	tables *tables.Store
	log    *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	ready bool
}

// New creates an Exporter writing to store. Download links live for
// cfg.URLExpiry.
func New(store filestore.Store, cfg filestore.Config, gate *querygate.Gate, tbl *tables.Store, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{
		store:  store,
		ttl:    cfg.URLExpiry,
		gate:   gate,
		tables: tbl,
		log:    log,
		now:    time.Now,
	}
}

// Enabled reports whether an object store is configured.
func (e *Exporter) Enabled() bool {
	return e != nil && e.store != nil
}

// Export renders and uploads req. Failures are returned as a Result with
// Success false.
func (e *Exporter) Export(ctx context.Context, req Request) Result {
	res, err := e.Upload(ctx, req)
	if err != nil {
		return Failure(err)
	}
	return res
}

// Failure converts err into a failed Result.
func Failure(err error) Result {
	return Result{Message: errs.Message(err), Kind: errs.KindOf(err)}
}

// Upload is Export with the error returned separately so callers can tell
// failure kinds apart. Failures are logged.
func (e *Exporter) Upload(ctx context.Context, req Request) (Result, error) {
	res, err := e.upload(ctx, req)
	if err != nil {
		e.log.ErrorWith("export failed", err, map[string]interface{}{
			"format": string(req.Format),
			"name":   req.Name,
		})
		return Result{}, err
	}
	return res, nil
}

func (e *Exporter) upload(ctx context.Context, req Request) (Result, error) {
	if !e.Enabled() {
		return Result{}, errDisabled
	}
	if req.Format == "" {
		req.Format = FormatCSV
	}
	if req.Format != FormatCSV && req.Format != FormatJSON {
		return Result{}, errs.Newf(errs.ErrKindInvalidInput, "Unsupported export format %q", req.Format)
	}
	if (req.Query == "") == (req.Table == nil) {
		return Result{}, errs.New(errs.ErrKindInvalidInput, "Provide either a query or a table to export")
	}

	columns, records, name, err := e.collect(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if req.Name != "" {
		name = req.Name
	}

	var body []byte
	switch req.Format {
	case FormatJSON:
		body, err = renderJSON(records)
	default:
		body, err = renderCSV(columns, records)
	}
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrKindInvalidInput, "failed to render export", err)
	}

	if err := e.prepare(ctx); err != nil {
		return Result{}, err
	}

	key := e.fileKey(name, req.Format)
	info, err := e.store.Save(ctx, key, bytes.NewReader(body), int64(len(body)), contentType(req.Format))
	if err != nil {
		return Result{}, err
	}

	url, err := e.store.URL(ctx, key, e.ttl)
	if err != nil {
		return Result{}, err
	}
	expires := e.now().Add(e.ttl).UTC()

	e.log.InfoWith("export uploaded", map[string]interface{}{
		"key":   key,
		"rows":  len(records),
		"bytes": info.Size,
	})
	return Result{
		Success:   true,
		Message:   fmt.Sprintf("Exported %d rows", len(records)),
		Key:       key,
		URL:       url,
		Size:      info.Size,
		SizeLabel: humanize.Bytes(uint64(info.Size)),
		RowCount:  len(records),
		ExpiresAt: &expires,
	}, nil
}

// collect returns the ordered column names, the rows and a default name.
func (e *Exporter) collect(ctx context.Context, req Request) ([]string, []map[string]any, string, error) {
	if req.Query != "" {
		res, err := e.gate.Query(ctx, req.Query)
		if err != nil {
			return nil, nil, "", err
		}
		cols := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			cols[i] = c.Name
		}
		return cols, res.Results, "query", nil
	}

	page := e.tables.GetPage(ctx, *req.Table)
	if page.Error != "" {
		return nil, nil, "", errs.New(errs.ErrKindQueryFailed, page.Error)
	}
	schema := req.Table.Schema
	if schema == "" {
		schema = tables.DefaultSchema
	}
	cols, err := e.tables.Catalog().ListColumns(ctx, schema, req.Table.Table)
	if err != nil {
		return nil, nil, "", err
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		names = recordKeys(page.Records)
	}
	return names, page.Records, req.Table.Table, nil
}

// prepare readies the store once per process.
func (e *Exporter) prepare(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	if err := e.store.Prepare(ctx); err != nil {
		return err
	}
	e.ready = true
	return nil
}

// fileKey is YYYY/MM/DD/<uuid>-<name>.<ext>.
func (e *Exporter) fileKey(name string, format Format) string {
	day := e.now().UTC().Format("2006/01/02")
	file := uuid.NewString() + "-" + sanitizeName(name) + "." + string(format)
	return path.Join(day, file)
}

// List returns the stored exports ordered by key, so oldest day first.
func (e *Exporter) List(ctx context.Context) ([]filestore.File, error) {
	if !e.Enabled() {
		return nil, errDisabled
	}
	if err := e.prepare(ctx); err != nil {
		return nil, err
	}
	return e.store.List(ctx, "", 0)
}

// Open streams one stored export.
func (e *Exporter) Open(ctx context.Context, key string) (filestore.Download, error) {
	if !e.Enabled() {
		return nil, errDisabled
	}
	if err := filestore.CheckKey(key); err != nil {
		return nil, err
	}
	return e.store.Open(ctx, key)
}

func contentType(f Format) string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// sanitizeName lowercases name and replaces anything outside [a-z0-9_-]
// with a dash.
func sanitizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > maxNameLength {
		s = strings.TrimRight(s[:maxNameLength], "-")
	}
	if s == "" {
		return "export"
	}
	return s
}

func recordKeys(records []map[string]any) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func renderCSV(columns []string, records []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			cell, err := cellText(rec[col])
			if err != nil {
				return nil, err
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderJSON(records []map[string]any) ([]byte, error) {
	if records == nil {
		records = []map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case json.Number:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		return string(b), err
	default:
		return fmt.Sprint(x), nil
	}
}
