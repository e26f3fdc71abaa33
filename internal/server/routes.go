package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Get("/health", s.handleHealth)
		r.Post("/connections/test", s.handleTestConnection)

		r.Get("/stats", s.handleStats)
		r.Post("/stats", s.handleStatsWithConfig)

		r.Post("/export", s.handleExport)
		r.Get("/exports", s.handleListExports)
		r.Get("/exports/*", s.handleDownloadExport)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout()))

			r.Post("/query", s.handleQuery)

			r.Get("/schemas", s.handleListSchemas)
			r.Post("/schemas", s.handleCreateSchema)
			r.Route("/schemas/{schema}", func(r chi.Router) {
				r.Patch("/", s.handleRenameSchema)
				r.Delete("/", s.handleDeleteSchema)

				r.Get("/tables", s.handleListTables)
				r.Post("/tables", s.handleCreateTable)
				r.Route("/tables/{table}", func(r chi.Router) {
					r.Patch("/", s.handleRenameTable)
					r.Delete("/", s.handleDeleteTable)
					r.Get("/columns", s.handleListColumns)

					r.Get("/rows", s.handleGetRows)
					r.Post("/rows", s.handleInsertRow)
					r.Post("/rows/bulk-update", s.handleBulkUpdate)
					r.Post("/rows/delete", s.handleDeleteRows)
					r.Patch("/rows/{rowID}", s.handleUpdateCell)
				})
			})
		})
	})
	return r
}
