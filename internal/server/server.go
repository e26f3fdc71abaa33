// Package server exposes the pgstudio actions as a JSON API over HTTP.
//
// Every action answers with a JSON object. Failures carry success=false and
// a message, with the status code derived from the error kind.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/pgstudio/internal/admin"
	"github.com/koustreak/pgstudio/internal/config"
	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/export"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/logger"
	"github.com/koustreak/pgstudio/internal/querygate"
	"github.com/koustreak/pgstudio/internal/stats"
	"github.com/koustreak/pgstudio/internal/tables"
)

// Server wires the actions to one process-wide pool.
type Server struct {
	cfg      *config.Config
	db       database.DB
	tables   *tables.Store
	admin    *admin.Admin
	gate     *querygate.Gate
	stats    *stats.Collector
	exporter *export.Exporter
	log      *logger.Logger
	router   chi.Router
}

// New builds the server and its routes. A nil files store disables exports.
func New(cfg *config.Config, db database.DB, files filestore.Store, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	store := tables.NewStore(db, log.Component("tables"))
	gate := querygate.New(db, cfg.Database.QueryTimeout, log.Component("query"))

	s := &Server{
		cfg:      cfg,
		db:       db,
		tables:   store,
		admin:    admin.New(db, log.Component("admin")),
		gate:     gate,
		stats:    stats.NewCollector(db, log.Component("stats")),
		exporter: export.New(files, cfg.Export, gate, store, log.Component("export")),
		log:      log.Component("http"),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully. Closing the pool is left to the caller.
func (s *Server) Run(ctx context.Context) error {
	sc := s.cfg.Server
	srv := &http.Server{
		Addr:         sc.Addr,
		Handler:      s,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.InfoWith("http server listening", map[string]interface{}{"addr": sc.Addr})
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "http server failed", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "http server shutdown failed", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// requestTimeout bounds every action except exports and stats, which get
// the write timeout.
func (s *Server) requestTimeout() time.Duration {
	if d := s.cfg.Database.QueryTimeout; d > 0 {
		return d
	}
	return s.cfg.Server.WriteTimeout
}
