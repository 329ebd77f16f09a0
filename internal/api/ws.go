package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/anne-chat/anne/internal/identity"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The widget is same-origin; other origins are fine for a
	// personal deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsError struct {
	Error string `json:"error"`
}

// handleChatWS serves the websocket chat channel: one JSON object per
// message in, one ChatResponse per message out. Identity resolves per
// message, falling back to the connection's address and user agent,
// so one socket can multiplex sessions the same way the POST endpoint
// does.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	remoteAddr := r.RemoteAddr
	userAgent := r.UserAgent()
	s.logger.Debug("websocket connected", "remote", remoteAddr)

	for {
		var payload map[string]any
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		message, _ := payload["message"].(string)
		sessionID := identity.Resolve(payload, remoteAddr, userAgent)

		reply, err := s.pipeline.Ask(r.Context(), sessionID, message)
		if err != nil {
			s.logger.Error("websocket exchange failed", "session", sessionID, "error", err)
			if err := conn.WriteJSON(wsError{Error: "storage error"}); err != nil {
				return
			}
			continue
		}

		resp := ChatResponse{
			Response:     reply,
			ResponseHTML: s.renderHTML(reply),
			SessionID:    sessionID,
		}
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}
