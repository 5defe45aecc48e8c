package handlers

import (
	"alumnichat/server/internal/presence"
	ws "alumnichat/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PresenceHandler exposes live connection state over HTTP
type PresenceHandler struct {
	hub    *ws.Hub
	mirror presence.Mirror
	log    *zap.Logger
}

func NewPresenceHandler(hub *ws.Hub, mirror presence.Mirror, log *zap.Logger) *PresenceHandler {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &PresenceHandler{hub: hub, mirror: mirror, log: log.Named("presence")}
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *PresenceHandler) GetWebSocketStats(c *fiber.Ctx) error {
	userIDs := h.hub.GetOnlineUsers()
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"onlineUsers": len(userIDs),
			"connections": h.hub.GetConnectionCount(),
			"userIds":     userIDs,
		},
	})
}

// GetPresence returns a user's status from the shared mirror, falling back
// to this instance's hub
func (h *PresenceHandler) GetPresence(c *fiber.Ctx) error {
	userID := c.Params("id")

	st, ok, err := h.mirror.Get(c.UserContext(), userID)
	if err != nil {
		h.log.Warn("presence mirror read failed", zap.String("user", userID), zap.Error(err))
	}
	if err != nil || !ok {
		status, online := h.hub.Status(userID)
		st = presence.Status{UserID: userID, Status: status}
		if online {
			st.Connections = int64(h.hub.UserConnectionCount(userID))
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"userId":      st.UserID,
			"status":      st.Status,
			"isOnline":    st.Connections > 0,
			"lastSeen":    st.LastSeen,
			"connections": st.Connections,
		},
	})
}
