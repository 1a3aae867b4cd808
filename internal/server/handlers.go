package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tomqwilliamson/baap-notify/internal/logging"
	"github.com/tomqwilliamson/baap-notify/internal/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Browser clients connect from the dashboard origin
	},
}

// clientAction is an inbound WebSocket message from a connected client.
type clientAction struct {
	Action       string `json:"action"`
	AssessmentID string `json:"assessmentId"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		slog.Warn("Rejected WebSocket connection", "ip", ip, "reason", reason)
		return c.JSON(http.StatusTooManyRequests, map[string]string{
			"error":  "connection limit exceeded",
			"reason": string(reason),
		})
	}
	defer s.limits.Release(ip)

	// Identity is resolved once, before the upgrade. After that the
	// connection is addressed by its connection id only.
	id := s.resolver.FromRequest(c.Request())

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket", "error", err)
		return nil
	}

	connectionID, err := s.registry.Connect(conn, id)
	if err != nil {
		slog.Warn("Rejected WebSocket connection", "error", err)
		_ = conn.Close()
		return nil
	}

	// Read pump (blocks until disconnect)
	s.readPump(conn, connectionID)

	s.registry.Disconnect(connectionID)
	return nil
}

func (s *Server) readPump(conn *websocket.Conn, connectionID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var action clientAction
		if err := json.Unmarshal(data, &action); err != nil {
			logging.WithConnection(connectionID).Debug("Ignoring malformed client message", "error", err)
			continue
		}

		s.dispatchAction(connectionID, action)
	}
}

func (s *Server) dispatchAction(connectionID string, action clientAction) {
	switch action.Action {
	case "join":
		if action.AssessmentID == "" {
			return
		}
		s.registry.JoinGroup(connectionID, action.AssessmentID)
	case "leave":
		if action.AssessmentID == "" {
			return
		}
		s.registry.LeaveGroup(connectionID, action.AssessmentID)
	case "who":
		users := s.registry.ListConnections()
		s.registry.SendToConnection(connectionID, presence.EventConnectedUsers, map[string]any{
			"users": users,
			"count": len(users),
		})
	default:
		logging.WithConnection(connectionID).Debug("Ignoring unknown client action", "action", action.Action)
	}
}
