package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OfflineMessage tells a recipient with no live session about a new message.
type OfflineMessage struct {
	RecipientID string    `json:"recipientId"`
	ChatID      string    `json:"chatId"`
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Preview     string    `json:"preview"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Notifier delivers offline notifications. Failures never affect the
// message that triggered them.
type Notifier interface {
	NotifyOffline(ctx context.Context, n OfflineMessage) error
	Close() error
}

// LogNotifier only logs; used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyOffline(_ context.Context, m OfflineMessage) error {
	n.log.Debug("offline notification",
		zap.String("recipient", m.RecipientID),
		zap.String("chat", m.ChatID),
		zap.String("message", m.MessageID))
	return nil
}

func (n *LogNotifier) Close() error { return nil }
