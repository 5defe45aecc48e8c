package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/utils"
)

// EventType represents different WebSocket event types
type EventType string

const (
	// Client to server
	EventAuthenticate     EventType = "authenticate"
	EventJoinChat         EventType = "join_chat"
	EventLeaveChat        EventType = "leave_chat"
	EventSendMessage      EventType = "send_message"
	EventTypingStart      EventType = "typing_start"
	EventTypingStop       EventType = "typing_stop"
	EventMarkAsRead       EventType = "mark_as_read"
	EventCreateDirectChat EventType = "create_direct_chat"
	EventUpdateStatus     EventType = "update_status"

	// Server to client
	EventAuthenticated     EventType = "authenticated"
	EventJoinedChat        EventType = "joined_chat"
	EventLeftChat          EventType = "left_chat"
	EventNewMessage        EventType = "new_message"
	EventMessageUpdated    EventType = "message_updated"
	EventUserTyping        EventType = "user_typing"
	EventUserStoppedTyping EventType = "user_stopped_typing"
	EventMessagesRead      EventType = "messages_read"
	EventChatCreated       EventType = "chat_created"
	EventNewChatCreated    EventType = "new_chat_created"
	EventUserLeftChat      EventType = "user_left_chat"
	EventUserStatusChanged EventType = "user_status_changed"
	EventError             EventType = "error"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func newMessage(t EventType, payload interface{}) WSMessage {
	return WSMessage{Type: t, Payload: payload, Timestamp: time.Now()}
}

// IncomingMessage represents messages received from clients
type IncomingMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is one of the inbound events below; the set is closed.
type Event interface {
	Type() EventType
}

type AuthenticateEvent struct {
	Token string `json:"token" validate:"required"`
}

type JoinChatEvent struct {
	ChatID string `json:"chatId" validate:"required"`
}

type LeaveChatEvent struct {
	ChatID string `json:"chatId" validate:"required"`
}

// FileData is the attachment reference of an image or file message.
type FileData struct {
	FileURL  string `json:"fileUrl" validate:"required,max=2048"`
	FileName string `json:"fileName" validate:"max=255"`
}

type SendMessageEvent struct {
	ChatID      string    `json:"chatId" validate:"required"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType" validate:"omitempty,oneof=text image file"`
	FileData    *FileData `json:"fileData" validate:"omitempty"`
}

type TypingStartEvent struct {
	ChatID string `json:"chatId" validate:"required"`
}

type TypingStopEvent struct {
	ChatID string `json:"chatId" validate:"required"`
}

type MarkAsReadEvent struct {
	ChatID     string   `json:"chatId" validate:"required"`
	MessageIDs []string `json:"messageIds" validate:"omitempty,dive,required"`
}

type CreateDirectChatEvent struct {
	ParticipantID string `json:"participantId" validate:"required"`
}

type UpdateStatusEvent struct {
	Status string `json:"status" validate:"required,oneof=online away busy offline"`
}

func (*AuthenticateEvent) Type() EventType     { return EventAuthenticate }
func (*JoinChatEvent) Type() EventType         { return EventJoinChat }
func (*LeaveChatEvent) Type() EventType        { return EventLeaveChat }
func (*SendMessageEvent) Type() EventType      { return EventSendMessage }
func (*TypingStartEvent) Type() EventType      { return EventTypingStart }
func (*TypingStopEvent) Type() EventType       { return EventTypingStop }
func (*MarkAsReadEvent) Type() EventType       { return EventMarkAsRead }
func (*CreateDirectChatEvent) Type() EventType { return EventCreateDirectChat }
func (*UpdateStatusEvent) Type() EventType     { return EventUpdateStatus }

// File returns the attachment metadata of the message, if any.
func (e *SendMessageEvent) File() models.FileMeta {
	if e.FileData == nil {
		return models.FileMeta{}
	}
	return models.FileMeta{FileURL: e.FileData.FileURL, FileName: e.FileData.FileName}
}

// DecodeEvent parses and validates one inbound frame. Unknown types and
// malformed payloads are validation errors.
func DecodeEvent(data []byte) (Event, error) {
	var in IncomingMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, apperror.Validation("Malformed event")
	}

	var ev Event
	switch in.Type {
	case EventAuthenticate:
		ev = &AuthenticateEvent{}
	case EventJoinChat:
		ev = &JoinChatEvent{}
	case EventLeaveChat:
		ev = &LeaveChatEvent{}
	case EventSendMessage:
		ev = &SendMessageEvent{}
	case EventTypingStart:
		ev = &TypingStartEvent{}
	case EventTypingStop:
		ev = &TypingStopEvent{}
	case EventMarkAsRead:
		ev = &MarkAsReadEvent{}
	case EventCreateDirectChat:
		ev = &CreateDirectChatEvent{}
	case EventUpdateStatus:
		ev = &UpdateStatusEvent{}
	default:
		return nil, apperror.Validation(fmt.Sprintf("Unknown event type %q", in.Type))
	}

	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, ev); err != nil {
			return nil, apperror.Validation(fmt.Sprintf("Invalid payload for %s", in.Type))
		}
	}
	if err := utils.ValidateStruct(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Outbound payloads

type AuthenticatedPayload struct {
	UserID  string   `json:"userId"`
	ChatIDs []string `json:"chatIds"`
}

type ChatRefPayload struct {
	ChatID string `json:"chatId"`
}

// TypingPayload represents typing indicator payload
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type ReadPayload struct {
	ChatID     string    `json:"chatId"`
	UserID     string    `json:"userId"`
	MessageIDs []string  `json:"messageIds,omitempty"`
	ReadAt     time.Time `json:"readAt"`
}

type ChatCreatedPayload struct {
	Chat    models.ChatView `json:"chat"`
	Created bool            `json:"created"`
}

type NewChatPayload struct {
	Chat models.ChatView `json:"chat"`
}

type UserLeftPayload struct {
	ChatID      string `json:"chatId"`
	UserID      string `json:"userId"`
	ChatDeleted bool   `json:"chatDeleted"`
}

// PresencePayload represents user presence payload
type PresencePayload struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// ErrorPayload represents error event payload
type ErrorPayload struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Event   EventType `json:"event,omitempty"`
}
