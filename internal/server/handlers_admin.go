package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NameRequest is the body of the create actions.
type NameRequest struct {
	Name string `json:"name"`
}

// RenameRequest is the body of the rename actions.
type RenameRequest struct {
	NewName string `json:"newName"`
}

func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var body NameRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if err := s.admin.CreateSchema(r.Context(), body.Name); err != nil {
		s.writeError(w, r, err, map[string]interface{}{"schema": body.Name})
		return
	}
	s.writeJSON(w, http.StatusCreated, ok(fmt.Sprintf("Schema '%s' created", body.Name)))
}

func (s *Server) handleRenameSchema(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	var body RenameRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if err := s.admin.RenameSchema(r.Context(), schema, body.NewName); err != nil {
		s.writeError(w, r, err, map[string]interface{}{"schema": schema, "new_name": body.NewName})
		return
	}
	s.writeJSON(w, http.StatusOK, ok(fmt.Sprintf("Schema '%s' renamed to '%s'", schema, body.NewName)))
}

func (s *Server) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	if err := s.admin.DeleteSchema(r.Context(), schema); err != nil {
		s.writeError(w, r, err, map[string]interface{}{"schema": schema})
		return
	}
	s.writeJSON(w, http.StatusOK, ok(fmt.Sprintf("Schema '%s' deleted", schema)))
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	var body NameRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if err := s.admin.CreateTable(r.Context(), schema, body.Name); err != nil {
		s.writeError(w, r, err, tableFields(schema, body.Name))
		return
	}
	s.writeJSON(w, http.StatusCreated, ok(fmt.Sprintf("Table '%s' created", body.Name)))
}

func (s *Server) handleRenameTable(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	var body RenameRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if err := s.admin.RenameTable(r.Context(), schema, table, body.NewName); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusOK, ok(fmt.Sprintf("Table '%s' renamed to '%s'", table, body.NewName)))
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	schema, table := tableParams(r)
	if err := s.admin.DeleteTable(r.Context(), schema, table); err != nil {
		s.writeError(w, r, err, tableFields(schema, table))
		return
	}
	s.writeJSON(w, http.StatusOK, ok(fmt.Sprintf("Table '%s' deleted", table)))
}
