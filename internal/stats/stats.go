// Package stats collects an at-a-glance performance snapshot of a database.
//
// Eight catalog queries run concurrently. A failing query leaves only its own
// field empty and is listed in Report.Errors; the snapshot as a whole never
// fails.
package stats

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/database/postgres"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
)

// SlowQueryThreshold is how long a statement must have been running to be
// reported.
const SlowQueryThreshold = time.Second

const topN = 5

// TableActivity is a table ranked by scan count.
type TableActivity struct {
	Schema     string `json:"schema"`
	Table      string `json:"table"`
	SeqScans   int64  `json:"seqScans"`
	IndexScans int64  `json:"indexScans"`
	TotalScans int64  `json:"totalScans"`
}

// TableSize is a table ranked by total on-disk size.
type TableSize struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Bytes  int64  `json:"bytes"`
	Size   string `json:"size"`
}

// SeqScanTable is a table read mostly by sequential scans, a hint that an
// index may be missing.
type SeqScanTable struct {
	Schema     string  `json:"schema"`
	Table      string  `json:"table"`
	SeqScans   int64   `json:"seqScans"`
	IndexScans int64   `json:"indexScans"`
	SeqRatio   float64 `json:"seqScanRatio"` // percent
}

// UnusedIndex is a non-unique index that has never been scanned.
type UnusedIndex struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Index  string `json:"index"`
	Size   string `json:"size"`
}

// SlowQuery is a statement running longer than SlowQueryThreshold.
type SlowQuery struct {
	PID        int32  `json:"pid"`
	DurationMs int64  `json:"durationMs"`
	Duration   string `json:"duration"`
	State      string `json:"state"`
	Query      string `json:"query"`
}

// Report is the aggregated snapshot.
type Report struct {
	CacheHitRatio     int             `json:"cacheHitRatio"`
	ActiveConnections int             `json:"activeConnections"`
	DatabaseSize      string          `json:"databaseSize"`
	MostActiveTables  []TableActivity `json:"mostActiveTables"`
	LargestTables     []TableSize     `json:"largestTables"`
	SeqScanTables     []SeqScanTable  `json:"seqScanTables"`
	UnusedIndexes     []UnusedIndex   `json:"unusedIndexes"`
	SlowQueries       []SlowQuery     `json:"slowQueries"`
	Errors            []string        `json:"errors,omitempty"`
}

// Collector runs the stats queries against one database.
type Collector struct {
	db  database.Querier
	log *logger.Logger
}

// NewCollector creates a Collector. A nil log discards output.
func NewCollector(db database.Querier, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{db: db, log: log}
}

// Collect runs every stats query concurrently and merges the results.
func (c *Collector) Collect(ctx context.Context) Report {
	r := Report{
		MostActiveTables: []TableActivity{},
		LargestTables:    []TableSize{},
		SeqScanTables:    []SeqScanTable{},
		UnusedIndexes:    []UnusedIndex{},
		SlowQueries:      []SlowQuery{},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	run := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				c.log.WarnWith("stats query failed", err, map[string]interface{}{"metric": name})
				mu.Lock()
				r.Errors = append(r.Errors, name+": "+errs.Message(err))
				mu.Unlock()
			}
			return nil
		})
	}

	run("cache_hit_ratio", fill(ctx, &r.CacheHitRatio, c.cacheHitRatio))
	run("active_connections", fill(ctx, &r.ActiveConnections, c.activeConnections))
	run("database_size", fill(ctx, &r.DatabaseSize, c.databaseSize))
	run("most_active_tables", fill(ctx, &r.MostActiveTables, c.mostActiveTables))
	run("largest_tables", fill(ctx, &r.LargestTables, c.largestTables))
	run("seq_scan_tables", fill(ctx, &r.SeqScanTables, c.seqScanTables))
	run("unused_indexes", fill(ctx, &r.UnusedIndexes, c.unusedIndexes))
	run("slow_queries", fill(ctx, &r.SlowQueries, c.slowQueries))

	_ = g.Wait()
	return r
}

// fill stores the result of fn in dst only when fn succeeds, so a failed
// metric keeps its zero value and lists stay empty rather than null.
func fill[T any](ctx context.Context, dst *T, fn func(context.Context) (T, error)) func() error {
	return func() error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// CollectWithConfig opens a temporary pool for conn, collects a report and
// closes the pool whatever the outcome. Only connection failures are
// returned as errors.
func CollectWithConfig(ctx context.Context, conn database.ConnConfig, log *logger.Logger) (Report, error) {
	var r Report
	err := postgres.WithTemporary(ctx, conn, func(db database.DB) error {
		r = NewCollector(db, log).Collect(ctx)
		return nil
	})
	return r, err
}

func (c *Collector) cacheHitRatio(ctx context.Context) (int, error) {
	const q = `
		SELECT COALESCE(
			SUM(blks_hit) * 100.0 / NULLIF(SUM(blks_hit) + SUM(blks_read), 0),
			0)::float8
		FROM pg_stat_database
		WHERE datname = current_database()`

	var ratio float64
	if err := c.db.QueryRow(ctx, q).Scan(&ratio); err != nil {
		return 0, err
	}
	return int(math.Round(ratio)), nil
}

func (c *Collector) activeConnections(ctx context.Context) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM pg_stat_activity
		WHERE state = 'active'
		  AND datname = current_database()`

	var n int64
	if err := c.db.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c *Collector) databaseSize(ctx context.Context) (string, error) {
	var size int64
	if err := c.db.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&size); err != nil {
		return "", err
	}
	return humanize.Bytes(uint64(size)), nil
}

func (c *Collector) mostActiveTables(ctx context.Context) ([]TableActivity, error) {
	const q = `
		SELECT
			schemaname::text,
			relname::text,
			COALESCE(seq_scan, 0)                          AS seq_scan,
			COALESCE(idx_scan, 0)                          AS idx_scan,
			COALESCE(seq_scan, 0) + COALESCE(idx_scan, 0) AS total_scans
		FROM pg_stat_user_tables
		ORDER BY total_scans DESC, relname
		LIMIT $1`

	rows, err := c.db.Query(ctx, q, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TableActivity, 0, topN)
	for rows.Next() {
		var t TableActivity
		if err := rows.Scan(&t.Schema, &t.Table, &t.SeqScans, &t.IndexScans, &t.TotalScans); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Collector) largestTables(ctx context.Context) ([]TableSize, error) {
	const q = `
		SELECT
			schemaname::text,
			relname::text,
			pg_total_relation_size(relid) AS total_bytes
		FROM pg_stat_user_tables
		ORDER BY total_bytes DESC, relname
		LIMIT $1`

	rows, err := c.db.Query(ctx, q, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TableSize, 0, topN)
	for rows.Next() {
		var t TableSize
		if err := rows.Scan(&t.Schema, &t.Table, &t.Bytes); err != nil {
			return nil, err
		}
		t.Size = humanize.Bytes(uint64(t.Bytes))
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Collector) seqScanTables(ctx context.Context) ([]SeqScanTable, error) {
	const q = `
		SELECT
			schemaname::text,
			relname::text,
			seq_scan,
			COALESCE(idx_scan, 0) AS idx_scan,
			ROUND((seq_scan * 100.0 / GREATEST(seq_scan + COALESCE(idx_scan, 0), 1))::numeric, 1)::float8 AS seq_ratio
		FROM pg_stat_user_tables
		WHERE seq_scan > 0
		  AND seq_scan > COALESCE(idx_scan, 0)
		ORDER BY seq_ratio DESC, seq_scan DESC
		LIMIT 10`

	rows, err := c.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SeqScanTable, 0)
	for rows.Next() {
		var t SeqScanTable
		if err := rows.Scan(&t.Schema, &t.Table, &t.SeqScans, &t.IndexScans, &t.SeqRatio); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Collector) unusedIndexes(ctx context.Context) ([]UnusedIndex, error) {
	const q = `
		SELECT
			s.schemaname::text,
			s.relname::text,
			s.indexrelname::text,
			pg_relation_size(s.indexrelid) AS index_bytes
		FROM pg_stat_user_indexes s
		JOIN pg_index i ON i.indexrelid = s.indexrelid
		WHERE s.idx_scan = 0
		  AND NOT i.indisunique
		ORDER BY index_bytes DESC, s.indexrelname
		LIMIT 10`

	rows, err := c.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]UnusedIndex, 0)
	for rows.Next() {
		var (
			idx   UnusedIndex
			bytes int64
		)
		if err := rows.Scan(&idx.Schema, &idx.Table, &idx.Index, &bytes); err != nil {
			return nil, err
		}
		idx.Size = humanize.Bytes(uint64(bytes))
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (c *Collector) slowQueries(ctx context.Context) ([]SlowQuery, error) {
	const q = `
		SELECT
			pid,
			(EXTRACT(EPOCH FROM (now() - query_start)) * 1000)::bigint AS duration_ms,
			COALESCE(state, '')::text,
			COALESCE(query, '')::text
		FROM pg_stat_activity
		WHERE state <> 'idle'
		  AND pid <> pg_backend_pid()
		  AND query_start < now() - make_interval(secs => $1)
		ORDER BY duration_ms DESC
		LIMIT 10`

	rows, err := c.db.Query(ctx, q, SlowQueryThreshold.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SlowQuery, 0)
	for rows.Next() {
		var s SlowQuery
		if err := rows.Scan(&s.PID, &s.DurationMs, &s.State, &s.Query); err != nil {
			return nil, err
		}
		s.Duration = (time.Duration(s.DurationMs) * time.Millisecond).String()
		out = append(out, s)
	}
	return out, rows.Err()
}
