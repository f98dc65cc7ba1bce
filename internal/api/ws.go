package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mattjoyce/foreman/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The control panel connects from its own origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is one message from a subscriber connection.
type clientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleWebSocket upgrades the connection, registers it with the broadcaster,
// and relays subscriber frames until disconnect. All outbound writes go
// through the broadcaster's writer goroutine; this loop only reads.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := s.events.Register(conn)
	// The request context is gone once this handler returns; the disconnect
	// record is persisted with its own context.
	defer s.events.Unregister(context.Background(), clientID)

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "client_id", clientID, "error", err)
			}
			return
		}

		switch frame.Type {
		case "register":
			var ident events.Identity
			if err := json.Unmarshal(frame.Data, &ident); err != nil {
				s.logger.Warn("invalid register frame", "client_id", clientID, "error", err)
				continue
			}
			s.events.Identify(r.Context(), clientID, ident)

		case "subscribe":
			if topic := topicOf(frame.Data); topic != "" {
				s.events.Subscribe(clientID, topic)
			}

		case "unsubscribe":
			if topic := topicOf(frame.Data); topic != "" {
				s.events.Unsubscribe(clientID, topic)
			}

		case "ping":
			s.events.Pong(clientID)

		default:
			s.logger.Warn("unknown subscriber frame", "client_id", clientID, "type", frame.Type)
		}
	}
}

func topicOf(data json.RawMessage) string {
	var payload struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Topic
}
