package models

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"alumnichat/server/internal/apperror"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxMessageLength is the maximum number of characters in a message body.
const MaxMessageLength = 1000

// ChatType distinguishes two-party chats from group chats
type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// MessageType is the kind of content a message carries
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// FileMeta describes an attachment for image and file messages
type FileMeta struct {
	FileURL  string `bson:"fileUrl,omitempty" json:"fileUrl,omitempty"`
	FileName string `bson:"fileName,omitempty" json:"fileName,omitempty"`
}

// ReadReceipt records that a user has seen a message
type ReadReceipt struct {
	User   string    `bson:"user" json:"user"`
	ReadAt time.Time `bson:"readAt" json:"readAt"`
}

// Message is a single entry of a chat's message log
type Message struct {
	ID          string        `bson:"_id" json:"id"`
	Sender      string        `bson:"sender" json:"sender"`
	Content     string        `bson:"content" json:"content"`
	MessageType MessageType   `bson:"messageType" json:"messageType"`
	FileMeta    `bson:",inline"`
	ReadBy      []ReadReceipt `bson:"readBy" json:"readBy"`
	IsDeleted   bool          `bson:"isDeleted" json:"isDeleted"`
	EditedAt    *time.Time    `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// ReadByUser reports whether userID has read the message. Senders have
// implicitly read their own messages.
func (m *Message) ReadByUser(userID string) bool {
	if m.Sender == userID {
		return true
	}
	for _, r := range m.ReadBy {
		if r.User == userID {
			return true
		}
	}
	return false
}

// LastMessage is the denormalized summary of a chat's newest message
type LastMessage struct {
	Content   string    `bson:"content" json:"content"`
	Sender    string    `bson:"sender" json:"sender"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Chat is a conversation document with its embedded message log
type Chat struct {
	ID              string       `bson:"_id" json:"id"`
	Participants    []string     `bson:"participants" json:"participants"`
	ChatType        ChatType     `bson:"chatType" json:"chatType"`
	ChatName        string       `bson:"chatName,omitempty" json:"chatName,omitempty"`
	ChatDescription string       `bson:"chatDescription,omitempty" json:"chatDescription,omitempty"`
	PairKey         string       `bson:"pairKey,omitempty" json:"-"`
	Messages        []Message    `bson:"messages" json:"messages"`
	LastMessage     *LastMessage `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	IsActive        bool         `bson:"isActive" json:"isActive"`
	CreatedBy       string       `bson:"createdBy" json:"createdBy"`
	Admins          []string     `bson:"admins,omitempty" json:"admins,omitempty"`
	Version         int64        `bson:"version" json:"-"`
	CreatedAt       time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// NewID returns a fresh document identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// PairKey returns the order-independent key of a direct chat between a and b.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// NewDirectChat builds an active direct chat created by userA.
func NewDirectChat(userA, userB string, now time.Time) (*Chat, error) {
	if userA == "" || userB == "" {
		return nil, apperror.Validation("Participant ID is required")
	}
	if userA == userB {
		return nil, apperror.Validation("You cannot start a chat with yourself")
	}
	return &Chat{
		ID:           NewID(),
		Participants: []string{userA, userB},
		ChatType:     ChatTypeDirect,
		PairKey:      PairKey(userA, userB),
		Messages:     []Message{},
		IsActive:     true,
		CreatedBy:    userA,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewGroupChat builds a group chat. The creator is always a participant and
// the first admin; a group needs at least three distinct participants.
func NewGroupChat(creator, name, description string, members []string, now time.Time) (*Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Validation("Group name is required")
	}
	if utf8.RuneCountInString(description) > 500 {
		return nil, apperror.Validation("Description cannot exceed 500 characters")
	}

	seen := map[string]bool{creator: true}
	participants := []string{creator}
	for _, id := range members {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}
	if len(participants) < 3 {
		return nil, apperror.Validation("A group chat needs at least two other members")
	}

	return &Chat{
		ID:              NewID(),
		Participants:    participants,
		ChatType:        ChatTypeGroup,
		ChatName:        name,
		ChatDescription: strings.TrimSpace(description),
		Messages:        []Message{},
		IsActive:        true,
		CreatedBy:       creator,
		Admins:          []string{creator},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsParticipant reports whether userID currently belongs to the chat.
func (c *Chat) IsParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID.
func (c *Chat) OtherParticipants(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// Preview is the lastMessage text for a message.
func Preview(content string, t MessageType) string {
	if t == MessageTypeText || t == "" {
		return content
	}
	return "Sent a " + string(t)
}

// NewMessage validates the input and builds a message ready to be appended.
func NewMessage(sender, content string, t MessageType, file FileMeta, now time.Time) (Message, error) {
	content = strings.TrimSpace(content)
	if t == "" {
		t = MessageTypeText
	}
	if !t.Valid() {
		return Message{}, apperror.Validation("Invalid message type. Must be text, image, or file")
	}
	if content == "" {
		return Message{}, apperror.Validation("Message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return Message{}, apperror.Validation("Message cannot exceed 1000 characters")
	}
	return Message{
		ID:          NewID(),
		Sender:      sender,
		Content:     content,
		MessageType: t,
		FileMeta:    file,
		ReadBy:      []ReadReceipt{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// LastMessageFor returns the lastMessage summary for m.
func LastMessageFor(m Message) *LastMessage {
	return &LastMessage{
		Content:   Preview(m.Content, m.MessageType),
		Sender:    m.Sender,
		Timestamp: m.CreatedAt,
	}
}

// CheckWritable returns the error a sender gets when it may not post.
func (c *Chat) CheckWritable(sender string) error {
	if !c.IsActive {
		return apperror.NotFound("Chat not found")
	}
	if !c.IsParticipant(sender) {
		return apperror.Forbidden("Not authorized to send messages in this chat")
	}
	return nil
}

// AppendMessage validates and appends a message, refreshing lastMessage.
func (c *Chat) AppendMessage(msg Message) error {
	if err := c.CheckWritable(msg.Sender); err != nil {
		return err
	}
	c.Messages = append(c.Messages, msg)
	c.LastMessage = LastMessageFor(msg)
	c.UpdatedAt = msg.CreatedAt
	return nil
}

// MarkRead adds a read receipt for reader on every eligible message, or only
// on messageIDs when given. It returns the number of receipts added.
func (c *Chat) MarkRead(reader string, messageIDs []string, now time.Time) int {
	var wanted map[string]bool
	if len(messageIDs) > 0 {
		wanted = make(map[string]bool, len(messageIDs))
		for _, id := range messageIDs {
			wanted[id] = true
		}
	}

	added := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if wanted != nil && !wanted[m.ID] {
			continue
		}
		if m.ReadByUser(reader) {
			continue
		}
		m.ReadBy = append(m.ReadBy, ReadReceipt{User: reader, ReadAt: now})
		added++
	}
	return added
}

// UnreadCount is the number of messages from others that userID has not read.
func (c *Chat) UnreadCount(userID string) int {
	n := 0
	for i := range c.Messages {
		if !c.Messages[i].ReadByUser(userID) {
			n++
		}
	}
	return n
}

// Leave removes userID from the chat. Direct chats are deactivated for both
// parties; groups drop the member and deactivate once empty.
func (c *Chat) Leave(userID string, now time.Time) error {
	if !c.IsParticipant(userID) {
		return apperror.Forbidden("Not authorized to delete this chat")
	}
	c.UpdatedAt = now
	if c.ChatType == ChatTypeDirect {
		c.IsActive = false
		return nil
	}

	c.Participants = c.OtherParticipants(userID)
	admins := c.Admins[:0:0]
	for _, a := range c.Admins {
		if a != userID {
			admins = append(admins, a)
		}
	}
	c.Admins = admins
	if len(c.Participants) == 0 {
		c.IsActive = false
		return nil
	}
	if len(c.Admins) == 0 {
		c.Admins = []string{c.Participants[0]}
	}
	return nil
}

// FindMessage returns the index of the message with id, or -1.
func (c *Chat) FindMessage(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Chat) ownMessage(messageID, userID string) (*Message, error) {
	if !c.IsActive {
		return nil, apperror.NotFound("Chat not found")
	}
	if !c.IsParticipant(userID) {
		return nil, apperror.Forbidden("Not authorized to access this chat")
	}
	i := c.FindMessage(messageID)
	if i < 0 {
		return nil, apperror.NotFound("Message not found")
	}
	m := &c.Messages[i]
	if m.Sender != userID {
		return nil, apperror.Forbidden("You can only change your own messages")
	}
	return m, nil
}

// DeleteMessage soft-deletes one of userID's messages.
func (c *Chat) DeleteMessage(messageID, userID string, now time.Time) (*Message, error) {
	m, err := c.ownMessage(messageID, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsDeleted {
		m.IsDeleted = true
		m.UpdatedAt = now
		c.UpdatedAt = now
		c.RefreshLastMessage()
	}
	return m, nil
}

// EditMessage replaces the content of one of userID's messages.
func (c *Chat) EditMessage(messageID, userID, content string, now time.Time) (*Message, error) {
	m, err := c.ownMessage(messageID, userID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, apperror.Validation("Cannot edit a deleted message")
	}
	edited, err := NewMessage(userID, content, m.MessageType, m.FileMeta, now)
	if err != nil {
		return nil, err
	}
	m.Content = edited.Content
	m.EditedAt = &now
	m.UpdatedAt = now
	c.UpdatedAt = now
	c.RefreshLastMessage()
	return m, nil
}

// RefreshLastMessage points lastMessage at the newest non-deleted message.
func (c *Chat) RefreshLastMessage() {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if !c.Messages[i].IsDeleted {
			c.LastMessage = LastMessageFor(c.Messages[i])
			return
		}
	}
	c.LastMessage = nil
}

// Tail returns the newest limit messages in chronological order.
func (c *Chat) Tail(limit int) []Message {
	if limit <= 0 || limit >= len(c.Messages) {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-limit:]
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Admins = append([]string(nil), c.Admins...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		m.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
		if m.EditedAt != nil {
			t := *m.EditedAt
			m.EditedAt = &t
		}
		out.Messages[i] = m
	}
	return &out
}

// ChatStats aggregates a user's chat activity
type ChatStats struct {
	TotalChats    int64 `json:"totalChats"`
	UnreadChats   int64 `json:"unreadChats"`
	TotalMessages int64 `json:"totalMessages"`
}
