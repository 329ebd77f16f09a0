package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/anne-chat/anne/internal/session"
)

// handleSessionSave stores the client's session snapshot verbatim,
// keyed by the payload's id field.
func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "session storage not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.sessions.Upsert(r.Context(), envelope.ID, body); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"ok": false, "error": verr.Error()}, s.logger)
			return
		}
		s.logger.Error("session save failed", "session", envelope.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"ok": true, "id": envelope.ID}, s.logger)
}

// handleSessionGet returns a stored snapshot filled out to the shape
// the widget expects. The payload is the client's own state; id and
// timestamps are only supplied when the snapshot lacks them.
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "session storage not configured")
		return
	}

	id := r.PathValue("id")
	rec, err := s.sessions.Fetch(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logger.Error("session fetch failed", "session", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil || payload == nil {
		payload = map[string]any{}
	}
	setDefault(payload, "id", rec.ID)
	setDefault(payload, "createdAt", rec.CreatedAt.UTC().Format(time.RFC3339))
	setDefault(payload, "updatedAt", rec.UpdatedAt.UTC().Format(time.RFC3339))

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, payload, s.logger)
}

// setDefault fills key with v only when the map has no value for it.
func setDefault(m map[string]any, key string, v any) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}
