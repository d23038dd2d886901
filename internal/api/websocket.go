package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/propctl/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Display pages are served from anywhere on the show network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades a browser display client and hands it to the
// session backlog. From here on it is served by the dispatch loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := session.NewWebSocketConn(ws, session.WebSocketOptions{
		MaxMessageSize: int64(s.wsCfg.MaxMessageSize),
		PingInterval:   time.Duration(s.wsCfg.PingInterval) * time.Second,
		PongTimeout:    time.Duration(s.wsCfg.PongTimeout) * time.Second,
	})
	if err := s.backlog.Offer(conn); err != nil {
		s.logger.Warn("websocket client rejected", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	s.logger.Debug("websocket client queued", "id", conn.ID(), "remote", conn.RemoteAddr())
}
