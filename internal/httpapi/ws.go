package httpapi

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/auth"
	"github.com/pigeon-chat/pigeon/internal/metrics"
)

// wsEvent is the wire form of a bus event pushed to websocket clients.
type wsEvent struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// WebSocketAuth validates the token query parameter before the upgrade.
// Browsers cannot set headers on websocket dials, so the token travels in
// the query string here.
func (s *Server) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := auth.ValidateToken(c.Query("token"), s.cfg.Auth.Secret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}
	c.Locals("user_id", claims.UserID)
	return c.Next()
}

// HandleWebSocket streams every bus event to the client until it
// disconnects.
func (s *Server) HandleWebSocket(conn *websocket.Conn) {
	metrics.WsClients.Inc()
	defer metrics.WsClients.Dec()

	events, unsub := s.bus.Subscribe("", 128)
	defer unsub()

	done := make(chan struct{})

	// Reads are discarded; the socket is push-only. The read loop exists to
	// notice the close frame.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			msg := wsEvent{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: evt.Payload}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
