package proxy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftware/harvester/internal/session"
	"github.com/driftware/harvester/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server proxies devtools websocket traffic between external clients and
// the Chrome instance inside a session's sandbox.
type Server struct {
	registry *session.Registry
	log      *slog.Logger
}

func NewServer(registry *session.Registry) *Server {
	return &Server{
		registry: registry,
		log:      slog.With("component", "proxy"),
	}
}

// HandleDevtoolsConnection upgrades the request and pumps messages in both
// directions until either side closes.
func (s *Server) HandleDevtoolsConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if sess.Status != models.StatusActive {
		http.Error(w, "session is not active", http.StatusConflict)
		return
	}

	devtoolsURL := toWebsocketURL(sess.DevtoolsURL)
	if devtoolsURL == "" {
		http.Error(w, "session has no devtools endpoint", http.StatusConflict)
		return
	}

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer clientConn.Close()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	chromeConn, _, err := websocket.DefaultDialer.DialContext(ctx, devtoolsURL, nil)
	if err != nil {
		s.log.Warn("devtools dial failed", "session_id", sessionID, "error", err)
		clientConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "devtools unreachable"))
		return
	}
	defer chromeConn.Close()

	s.log.Info("devtools proxy connected", "session_id", sessionID)

	errChan := make(chan error, 2)
	go func() { errChan <- s.pump(clientConn, chromeConn) }()
	go func() { errChan <- s.pump(chromeConn, clientConn) }()

	if err := <-errChan; err != nil && err != io.EOF {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			s.log.Warn("devtools proxy error", "session_id", sessionID, "error", err)
		}
	}

	s.log.Info("devtools proxy disconnected", "session_id", sessionID)
}

func (s *Server) pump(src, dst *websocket.Conn) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			return err
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			return err
		}
	}
}

// toWebsocketURL rewrites an http(s) devtools endpoint to its ws(s) form.
func toWebsocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	default:
		return url
	}
}
