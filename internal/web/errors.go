package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail server-side, then
// returned to the client as an operator-friendly message with an action
// suggestion and a support code. Status codes derive from the error
// kind: not-found, conflict, and blocked-publish each map to their own
// status.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/machikado/eventops/internal/ingest"
	"github.com/machikado/eventops/internal/store"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// respondError logs the technical error and writes the mapped JSON
// response with the given status code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := ingest.MapError(err)

	s.logger.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}

	// Echo the blocking validation codes back so the client can
	// highlight the exact fields.
	var blocked *ingest.PublishBlockedError
	if errors.As(err, &blocked) {
		for _, code := range blocked.Codes {
			resp.Details = append(resp.Details, string(code))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// respondServiceError picks the status code from the error kind.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *ingest.PublishBlockedError
	var headerErr *ingest.HeaderError

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, r, err, http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		s.respondError(w, r, err, http.StatusConflict)
	case errors.As(err, &blocked):
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
	case errors.As(err, &headerErr):
		s.respondError(w, r, err, http.StatusBadRequest)
	default:
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// writeError writes a minimal JSON error without going through the
// mapper, for middleware that has no Server receiver.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
