package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/machikado/eventops/internal/domain"
	"github.com/machikado/eventops/internal/ingest"
	"github.com/machikado/eventops/internal/store"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==========================================
// Import handlers
// ==========================================

// handleStartImport accepts a CSV upload and starts an asynchronous
// import. Returns the batch ID immediately; progress streams via SSE.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	batchID, err := s.service.StartImport(r.Context(), header.Filename, actorFrom(r), data)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"batchId": batchID})
}

// handleImportProgress streams import progress via Server-Sent Events.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	// Support resumption from last event ID. The event ID is the
	// progress percentage, letting clients skip already-received
	// events after reconnection.
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventID := lastEventID

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed, import finished one way or another
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events the client already received
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			eventID = currentPercent
			data, _ := json.Marshal(progress)

			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final outcome of an import, blocking
// until it completes.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	result, err := s.service.GetImportResult(batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelImport aborts an in-flight import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	if err := s.service.CancelImport(batchID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleListBatches returns all import batches, most recent first.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.service.ListBatches(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

// handleGetBatch returns one import batch.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.service.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// handlePreview analyzes a CSV file without staging anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	result, err := s.service.Preview(r.Context(), data)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ==========================================
// Staging handlers
// ==========================================

// handleListStaging returns staging rows, optionally filtered by batch
// and diagnostic status.
func (s *Server) handleListStaging(w http.ResponseWriter, r *http.Request) {
	filter := store.StagingFilter{
		BatchID: r.URL.Query().Get("batchId"),
		Status:  r.URL.Query().Get("status"),
	}

	switch filter.Status {
	case "", store.FilterErrors, store.FilterWarnings, store.FilterPublishable:
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	rows, err := s.service.ListStaging(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleGetStaging returns one staging row with its diagnostics.
func (s *Server) handleGetStaging(w http.ResponseWriter, r *http.Request) {
	row, err := s.service.GetStaging(r.Context(), chi.URLParam(r, "stagingID"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleUpdateStaging applies an operator edit and returns the row with
// refreshed diagnostics.
func (s *Server) handleUpdateStaging(w http.ResponseWriter, r *http.Request) {
	var patch ingest.StagingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch body")
		return
	}

	row, err := s.service.UpdateStaging(r.Context(), chi.URLParam(r, "stagingID"), patch, actorFrom(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handlePublish promotes one staging row to the published set.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ev, err := s.service.Publish(r.Context(), chi.URLParam(r, "stagingID"), actorFrom(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handlePublishBatch publishes a set of staging rows best-effort and
// reports the per-row outcomes.
func (s *Server) handlePublishBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "no ids provided")
		return
	}

	outcomes := s.service.PublishBatch(r.Context(), req.IDs, actorFrom(r))
	writeJSON(w, http.StatusOK, outcomes)
}

// handleArchive removes a staging row without publishing. Repeats are
// no-ops.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Archive(r.Context(), chi.URLParam(r, "stagingID"), actorFrom(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==========================================
// Published set and audit trail
// ==========================================

// handleListEvents returns the published event set.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.ListEvents(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleListOpsLog returns audit entries, most recent first.
func (s *Server) handleListOpsLog(w http.ResponseWriter, r *http.Request) {
	filter := store.OpsLogFilter{}
	if action := r.URL.Query().Get("action"); action != "" {
		filter.Action = parseAction(action)
		if filter.Action == "" {
			writeError(w, http.StatusBadRequest, "unknown action filter")
			return
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.service.ListOpsLog(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseAction validates an ops log action filter value.
func parseAction(s string) domain.OpsAction {
	switch action := domain.OpsAction(s); action {
	case domain.ActionImport, domain.ActionEdit, domain.ActionPublish, domain.ActionArchive:
		return action
	default:
		return ""
	}
}

// actorFrom identifies the acting operator for audit entries.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Operator"); actor != "" {
		return actor
	}
	if actor := r.FormValue("actor"); actor != "" {
		return actor
	}
	return "operator"
}
