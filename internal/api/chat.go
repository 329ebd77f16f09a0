package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/anne-chat/anne/internal/identity"
)

// ChatResponse is the reply envelope for the chat endpoints. Response
// is the canonical plain-text key; ResponseHTML carries the rendered
// markdown for clients that want rich display.
type ChatResponse struct {
	Response     string `json:"response"`
	ResponseHTML string `json:"response_html,omitempty"`
	SessionID    string `json:"session_id"`
}

// handleChat answers one message. The session identity comes from the
// payload's explicit keys when present, otherwise it is derived from
// the caller's address and user agent.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, _ := payload["message"].(string)
	sessionID := identity.Resolve(payload, r.RemoteAddr, r.UserAgent())

	reply, err := s.pipeline.Ask(r.Context(), sessionID, message)
	if err != nil {
		s.logger.Error("chat exchange failed", "session", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:     reply,
		ResponseHTML: s.renderHTML(reply),
		SessionID:    sessionID,
	}, s.logger)
}

// handleClearMemory forgets the conversation history for an explicitly
// named session. Unlike chat, there is no anonymous fallback here: a
// forget request that names nobody is rejected rather than guessed at.
func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		payload = nil
	}

	sessionID := identity.FromPayload(payload)
	if sessionID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{
			"ok":    false,
			"error": "need sessionId",
		}, s.logger)
		return
	}

	if err := s.pipeline.ClearMemory(r.Context(), sessionID); err != nil {
		s.logger.Error("clear memory failed", "session", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"ok":         true,
		"session_id": sessionID,
	}, s.logger)
}

// decodePayload reads the request body as a JSON object. Numeric
// identity keys stay json.Number so integral ids do not pick up a
// float exponent when stringified.
func decodePayload(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// renderHTML converts markdown reply text to HTML. Rendering is best
// effort: a failure drops the HTML variant, never the reply.
func (s *Server) renderHTML(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		s.logger.Debug("markdown render failed", "error", err)
		return ""
	}
	return strings.TrimSpace(buf.String())
}

const maxBodyBytes = 1 << 20
