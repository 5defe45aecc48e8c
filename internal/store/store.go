package store

import (
	"context"

	"alumnichat/server/internal/models"
)

// maxCASAttempts bounds optimistic retries for read-modify-write updates.
const maxCASAttempts = 5

// ChatStore is the durable home of chats and their message logs.
// MemoryStore and MongoStore implement it.
type ChatStore interface {
	// FindOrCreateDirect returns the direct chat between userA and userB,
	// creating it (createdBy userA) or reactivating it when needed. opened
	// reports whether the chat became visible through this call.
	FindOrCreateDirect(ctx context.Context, userA, userB string) (chat *models.Chat, opened bool, err error)
	CreateGroup(ctx context.Context, chat *models.Chat) error

	// GetChat returns the chat with its full message log, active or not.
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	// ListChats returns the user's active chats, newest activity first.
	ListChats(ctx context.Context, userID string, page, limit int) ([]*models.Chat, int64, error)
	ActiveChatIDs(ctx context.Context, userID string) ([]string, error)

	AppendMessage(ctx context.Context, chatID, sender, content string, t models.MessageType, file models.FileMeta) (models.Message, *models.LastMessage, error)
	// MarkRead records read receipts for reader and reports whether any
	// receipt was added.
	MarkRead(ctx context.Context, chatID, reader string, messageIDs []string) (bool, error)
	DeactivateOrLeave(ctx context.Context, chatID, userID string) (*models.Chat, error)
	DeleteMessage(ctx context.Context, chatID, messageID, userID string) (models.Message, *models.LastMessage, error)
	EditMessage(ctx context.Context, chatID, messageID, userID, content string) (models.Message, *models.LastMessage, error)

	Stats(ctx context.Context, userID string) (models.ChatStats, error)
}

// Pagination normalizes page and limit the way every list endpoint does.
func Pagination(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

// readAccess is the error for reading or marking a chat userID cannot see.
func readAccess(chat *models.Chat, userID string) error {
	if !chat.IsActive {
		return errChatNotFound()
	}
	if !chat.IsParticipant(userID) {
		return errNotParticipant()
	}
	return nil
}
