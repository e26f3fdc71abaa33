package stats

import (
	"context"
	"time"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/database/postgres"
	"github.com/koustreak/pgstudio/internal/errs"
)

// Health is the result of a connectivity check.
type Health struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Version   string              `json:"version,omitempty"`
	LatencyMs int64               `json:"latencyMs"`
	Latency   string              `json:"latency"`
	Pool      *postgres.PoolStats `json:"pool,omitempty"`
}

type poolStatter interface {
	Stats() postgres.PoolStats
}

// CheckHealth pings db and reads the server version, reporting the round
// trip latency of the ping.
func CheckHealth(ctx context.Context, db database.DB) Health {
	start := time.Now()
	if err := db.Ping(ctx); err != nil {
		return unhealthy(err, time.Since(start))
	}
	latency := time.Since(start)

	var version string
	if err := db.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return unhealthy(err, latency)
	}

	h := Health{
		Success:   true,
		Message:   "Database connection is healthy",
		Version:   version,
		LatencyMs: latency.Milliseconds(),
		Latency:   latency.String(),
	}
	if ps, ok := db.(poolStatter); ok {
		s := ps.Stats()
		h.Pool = &s
	}
	return h
}

// TestConnection opens a temporary pool for conn, checks it and closes it.
func TestConnection(ctx context.Context, conn database.ConnConfig) Health {
	start := time.Now()
	var h Health
	err := postgres.WithTemporary(ctx, conn, func(db database.DB) error {
		h = CheckHealth(ctx, db)
		h.Pool = nil
		return nil
	})
	if err != nil {
		return unhealthy(err, time.Since(start))
	}
	if h.Success {
		h.Message = "Connection to " + conn.String() + " succeeded"
	}
	return h
}

func unhealthy(err error, latency time.Duration) Health {
	return Health{
		Success:   false,
		Message:   errs.Message(err),
		LatencyMs: latency.Milliseconds(),
		Latency:   latency.String(),
	}
}
