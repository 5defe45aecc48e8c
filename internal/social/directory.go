package social

import (
	"context"

	"alumnichat/server/internal/models"
)

// Directory is the user and connection graph the chat layer consults.
type Directory interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	// Summaries resolves display fields for ids; unknown ids are omitted.
	Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)

	RequestConnection(ctx context.Context, requesterID, recipientID string, message *string) (*models.Connection, error)
	RespondConnection(ctx context.Context, connectionID, userID string, accept bool) (*models.Connection, error)
	ListConnections(ctx context.Context, userID string, status models.ConnectionStatus) ([]models.ConnectionWithUser, error)
	AreConnected(ctx context.Context, userA, userB string) (bool, error)
}
