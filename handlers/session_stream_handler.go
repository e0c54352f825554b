package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/upb/user-auth-api/middleware"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// SessionMessage is pushed to the client when the stream opens
type SessionMessage struct {
	Type       string     `json:"type"`
	User       MeResponse `json:"user"`
	ServerTime time.Time  `json:"server_time"`
}

// SessionStreamHandler serves /ws/session. The auth middleware has already
// checked both cookies by the time a connection gets here.
type SessionStreamHandler struct {
	upgrader   *websocket.Upgrader
	logger     *zap.Logger
	pingPeriod time.Duration
}

// NewSessionStreamHandler creates a new SessionStreamHandler
func NewSessionStreamHandler(upgrader *websocket.Upgrader, logger *zap.Logger) *SessionStreamHandler {
	return &SessionStreamHandler{
		upgrader:   upgrader,
		logger:     logger,
		pingPeriod: streamPingPeriod,
	}
}

// ServeHTTP upgrades the connection, sends the session message and keeps the
// connection alive until the client goes away
func (h *SessionStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		// RequireAuth missing from the chain
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("user_id", user.ID.String()))

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(SessionMessage{
		Type:       "session",
		User:       newMeResponse(user),
		ServerTime: time.Now().UTC(),
	}); err != nil {
		logger.Debug("failed to send session message", zap.Error(err))
		return
	}
	logger.Debug("session stream opened")

	done := make(chan struct{})
	go h.readLoop(conn, done)

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Debug("session stream closed")
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(streamWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed
func (h *SessionStreamHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}
