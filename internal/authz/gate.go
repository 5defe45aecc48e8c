package authz

import (
	"context"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/models"
)

// ConnectionChecker answers whether two users share an accepted connection.
type ConnectionChecker interface {
	AreConnected(ctx context.Context, userA, userB string) (bool, error)
}

// Gate holds the access rules shared by the HTTP and live surfaces.
type Gate struct {
	conns ConnectionChecker
}

func NewGate(conns ConnectionChecker) *Gate {
	return &Gate{conns: conns}
}

// IsParticipant reports whether userID is a participant of chat.
func IsParticipant(chat *models.Chat, userID string) bool {
	return chat != nil && chat.IsParticipant(userID)
}

// RequireParticipant fails with Forbidden unless userID belongs to the chat.
// Deactivated chats are reported as missing.
func (g *Gate) RequireParticipant(chat *models.Chat, userID string) error {
	if chat == nil || !chat.IsActive {
		return apperror.NotFound("Chat not found")
	}
	if !IsParticipant(chat, userID) {
		return apperror.Forbidden("Not authorized to access this chat")
	}
	return nil
}

// RequireConnected fails with Forbidden unless the two users are connected.
func (g *Gate) RequireConnected(ctx context.Context, userA, userB string) error {
	ok, err := g.conns.AreConnected(ctx, userA, userB)
	if err != nil {
		return apperror.Internal("Failed to check connection", err)
	}
	if !ok {
		return apperror.Forbidden("You can only chat with connected alumni")
	}
	return nil
}

// RequireAllConnected checks RequireConnected between userID and each member.
func (g *Gate) RequireAllConnected(ctx context.Context, userID string, members []string) error {
	for _, m := range members {
		if m == userID {
			continue
		}
		if err := g.RequireConnected(ctx, userID, m); err != nil {
			return err
		}
	}
	return nil
}
