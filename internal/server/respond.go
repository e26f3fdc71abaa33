package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Response is the envelope of actions that have no richer result type.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Kind is set on failures so clients need not guess it from the status.
	Kind errs.ErrKind `json:"kind,omitempty"`
}

func ok(msg string) Response {
	return Response{Success: true, Message: msg}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindInvalidInput:
		return http.StatusUnprocessableEntity
	case errs.ErrKindPolicyViolation, errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WarnWith("failed to write response", err, nil)
	}
}

// writeError logs err with fields on the request's logger and answers with
// its status and message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fields logger.Fields) {
	log, ok := logger.FromContext(r.Context())
	if !ok {
		log = s.log
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.ErrorWith("action failed", err, fields)
	} else {
		log.WarnWith("action rejected", err, fields)
	}
	s.writeJSON(w, status, Response{Message: errs.Message(err), Kind: errs.KindOf(err)})
}

// decode reads a JSON body into v. Numbers stay json.Number so that large
// integers and decimals reach PostgreSQL unchanged.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errs.New(errs.ErrKindInvalidInput, "Request body cannot be empty")
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "Invalid JSON body", err)
	}
	return nil
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, Response{Message: "No route for " + r.Method + " " + r.URL.Path})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusMethodNotAllowed, Response{Message: "Method " + r.Method + " not allowed on " + r.URL.Path})
}
