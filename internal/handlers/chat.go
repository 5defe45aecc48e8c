package handlers

import (
	"alumnichat/server/internal/chat"
	"alumnichat/server/internal/metrics"
	"alumnichat/server/internal/middleware"
	"alumnichat/server/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHandler serves the chat REST endpoints
type ChatHandler struct {
	chats *chat.Service
	log   *zap.Logger
}

func NewChatHandler(chats *chat.Service, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, log: log.Named("chat-http")}
}

// CreateDirectChatRequest represents create direct chat request body
type CreateDirectChatRequest struct {
	ParticipantID string `json:"participantId" validate:"required"`
}

// CreateGroupChatRequest represents create group chat request body
type CreateGroupChatRequest struct {
	Name           string   `json:"name" validate:"required,max=100"`
	Description    string   `json:"description" validate:"max=500"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=2,dive,required"`
}

// SendMessageRequest represents send message request body
type SendMessageRequest struct {
	Content     string `json:"content" validate:"max=1000"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image file"`
	FileData    *struct {
		FileURL  string `json:"fileUrl" validate:"required,max=2048"`
		FileName string `json:"fileName" validate:"max=255"`
	} `json:"fileData" validate:"omitempty"`
}

// MarkReadRequest represents mark as read request body
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"omitempty,dive,required"`
}

// EditMessageRequest represents edit message request body
type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// GetChats returns the caller's active chats, most recent activity first
func (h *ChatHandler) GetChats(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	chats, total, err := h.chats.ListChats(c.UserContext(), userID, page, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(chats),
		"total":   total,
		"data":    chats,
	})
}

// GetChat returns one chat with its most recent messages and marks them read
func (h *ChatHandler) GetChat(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	view, err := h.chats.GetChat(c.UserContext(), c.Params("id"), userID, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// CreateDirectChat finds or opens the direct chat with a connected user
func (h *ChatHandler) CreateDirectChat(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req CreateDirectChatRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	view, created, err := h.chats.CreateDirectChat(c.UserContext(), userID, req.ParticipantID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// CreateGroupChat creates a group chat with the caller as admin
func (h *ChatHandler) CreateGroupChat(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req CreateGroupChatRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	view, err := h.chats.CreateGroupChat(c.UserContext(), chat.GroupInput{
		CreatorID:   userID,
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.ParticipantIDs,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

// SendMessage appends a message to a chat and broadcasts it to the room
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	in := chat.SendInput{
		ChatID:      c.Params("id"),
		SenderID:    userID,
		Content:     req.Content,
		MessageType: models.MessageType(req.MessageType),
	}
	if req.FileData != nil {
		in.File = models.FileMeta{FileURL: req.FileData.FileURL, FileName: req.FileData.FileName}
	}

	msg, err := h.chats.SendMessage(c.UserContext(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	metrics.MessagesSent.WithLabelValues("http").Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// MarkAsRead marks the given messages, or every message, of a chat as read
func (h *ChatHandler) MarkAsRead(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req MarkReadRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, h.log, err)
		}
	}

	if _, err := h.chats.MarkAsRead(c.UserContext(), c.Params("id"), userID, req.MessageIDs); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Messages marked as read",
	})
}

// DeleteChat leaves a group or deactivates a direct chat
func (h *ChatHandler) DeleteChat(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	if err := h.chats.LeaveOrDeleteChat(c.UserContext(), c.Params("id"), userID); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Chat deleted successfully",
	})
}

// GetStats returns chat counters for the caller
func (h *ChatHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.chats.Stats(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// EditMessage changes the content of the caller's own message
func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req EditMessageRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	msg, err := h.chats.EditMessage(c.UserContext(), c.Params("id"), c.Params("messageId"), userID, req.Content)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// DeleteMessage soft-deletes the caller's own message
func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	msg, err := h.chats.DeleteMessage(c.UserContext(), c.Params("id"), c.Params("messageId"), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}
