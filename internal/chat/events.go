package chat

import (
	"time"

	"alumnichat/server/internal/models"
)

// Events is how the service reaches live sessions. The websocket hub
// implements it; every call must return without blocking on clients.
type Events interface {
	MessageCreated(chatID string, msg models.MessageView)
	MessageUpdated(chatID string, msg models.MessageView)
	MessagesRead(chatID, userID string, messageIDs []string, at time.Time)
	// ChatOpened subscribes userID's sessions to the chat and tells them it exists.
	ChatOpened(userID string, chat models.ChatView)
	// Subscribe adds userID's sessions to the chat room without announcing it.
	Subscribe(userID, chatID string)
	// ChatLeft announces that userID left; when the chat is no longer active
	// every session is removed from its room.
	ChatLeft(chatID, userID string, stillActive bool)
	IsUserOnline(userID string) bool
}

type nopEvents struct{}

func (nopEvents) MessageCreated(string, models.MessageView)        {}
func (nopEvents) MessageUpdated(string, models.MessageView)        {}
func (nopEvents) MessagesRead(string, string, []string, time.Time) {}
func (nopEvents) ChatOpened(string, models.ChatView)               {}
func (nopEvents) Subscribe(string, string)                         {}
func (nopEvents) ChatLeft(string, string, bool)                    {}
func (nopEvents) IsUserOnline(string) bool                         { return false }
