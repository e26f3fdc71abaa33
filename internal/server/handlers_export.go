package server

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/export"
	"github.com/koustreak/pgstudio/internal/filestore"
)

// ExportList is the answer of GET /api/exports.
type ExportList struct {
	Success bool             `json:"success"`
	Exports []filestore.File `json:"exports"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req export.Request
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, statusFor(err), export.Failure(err))
		return
	}
	res, err := s.exporter.Upload(r.Context(), req)
	if err != nil {
		s.writeJSON(w, statusFor(err), export.Failure(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	list, err := s.exporter.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, ExportList{Success: true, Exports: list})
}

// handleDownloadExport streams an export kept by the memory provider.
func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "Invalid export key", err), nil)
		return
	}
	dl, err := s.exporter.Open(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err, map[string]interface{}{"key": key})
		return
	}
	defer dl.Close()

	f := dl.File()
	w.Header().Set("Content-Type", f.ContentType)
	if f.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl); err != nil {
		s.log.WarnWith("export download interrupted", err, map[string]interface{}{"key": key})
	}
}
