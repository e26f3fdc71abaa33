package server

import (
	"net/http"

	"github.com/koustreak/pgstudio/internal/database"
	"github.com/koustreak/pgstudio/internal/querygate"
	"github.com/koustreak/pgstudio/internal/stats"
)

// QueryRequest is the body of executeCustomSQLQuery.
type QueryRequest struct {
	Query string `json:"query"`
}

// handleConfig returns the connection settings without the password.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Database.ConnConfig.Redacted())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := stats.CheckHealth(r.Context(), s.db)
	status := http.StatusOK
	if !h.Success {
		s.log.WarnWith("health check failed", nil, map[string]interface{}{"message": h.Message})
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var conn database.ConnConfig
	if err := decode(r, &conn); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if err := conn.Validate(); err != nil {
		s.writeError(w, r, err, map[string]interface{}{"conn": conn.String()})
		return
	}

	h := stats.TestConnection(r.Context(), conn)
	status := http.StatusOK
	if !h.Success {
		s.log.WarnWith("connection test failed", nil, map[string]interface{}{"conn": conn.String(), "message": h.Message})
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Collect(r.Context()))
}

func (s *Server) handleStatsWithConfig(w http.ResponseWriter, r *http.Request) {
	var conn database.ConnConfig
	if err := decode(r, &conn); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	report, err := stats.CollectWithConfig(r.Context(), conn, s.log)
	if err != nil {
		s.writeError(w, r, err, map[string]interface{}{"conn": conn.String()})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body QueryRequest
	if err := decode(r, &body); err != nil {
		s.writeJSON(w, statusFor(err), querygate.Failure(err))
		return
	}
	res, err := s.gate.Query(r.Context(), body.Query)
	if err != nil {
		s.log.WarnWith("custom query failed", err, nil)
		s.writeJSON(w, statusFor(err), querygate.Failure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
