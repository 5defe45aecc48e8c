package handlers

import (
	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/middleware"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/social"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectionHandler serves the alumni connection graph
type ConnectionHandler struct {
	users social.Directory
	log   *zap.Logger
}

func NewConnectionHandler(users social.Directory, log *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{users: users, log: log.Named("connections")}
}

// ConnectionRequest represents a connection request body
type ConnectionRequest struct {
	RecipientID string  `json:"recipientId" validate:"required"`
	Message     *string `json:"message" validate:"omitempty,max=500"`
}

// SendRequest asks another user to connect
func (h *ConnectionHandler) SendRequest(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req ConnectionRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	if _, err := h.users.UserByID(c.UserContext(), req.RecipientID); err != nil {
		return respondError(c, h.log, err)
	}

	conn, err := h.users.RequestConnection(c.UserContext(), userID, req.RecipientID, req.Message)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    conn,
	})
}

// Accept accepts a pending request addressed to the caller
func (h *ConnectionHandler) Accept(c *fiber.Ctx) error {
	return h.respond(c, true)
}

// Reject rejects a pending request addressed to the caller
func (h *ConnectionHandler) Reject(c *fiber.Ctx) error {
	return h.respond(c, false)
}

func (h *ConnectionHandler) respond(c *fiber.Ctx, accept bool) error {
	conn, err := h.users.RespondConnection(c.UserContext(), c.Params("id"), middleware.GetUserID(c), accept)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    conn,
	})
}

// GetConnections lists the caller's connections, accepted ones by default
func (h *ConnectionHandler) GetConnections(c *fiber.Ctx) error {
	status := models.ConnectionStatus(c.Query("status", string(models.ConnectionAccepted)))
	switch status {
	case models.ConnectionAccepted, models.ConnectionPending, models.ConnectionRejected:
	default:
		return respondError(c, h.log, apperror.Validation("status must be one of: pending accepted rejected"))
	}

	conns, err := h.users.ListConnections(c.UserContext(), middleware.GetUserID(c), status)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(conns),
		"data":    conns,
	})
}
