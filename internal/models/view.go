package models

import "time"

// MessageView is a message denormalized with its sender's display fields
type MessageView struct {
	ID          string        `json:"id"`
	ChatID      string        `json:"chatId"`
	Sender      UserSummary   `json:"sender"`
	Content     string        `json:"content"`
	MessageType MessageType   `json:"messageType"`
	FileURL     string        `json:"fileUrl,omitempty"`
	FileName    string        `json:"fileName,omitempty"`
	ReadBy      []ReadReceipt `json:"readBy"`
	IsDeleted   bool          `json:"isDeleted"`
	EditedAt    *time.Time    `json:"editedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// NewMessageView builds the client-facing form of m. Deleted messages keep
// their place in the log but lose their body.
func NewMessageView(chatID string, m Message, sender UserSummary) MessageView {
	v := MessageView{
		ID:          m.ID,
		ChatID:      chatID,
		Sender:      sender,
		Content:     m.Content,
		MessageType: m.MessageType,
		FileURL:     m.FileURL,
		FileName:    m.FileName,
		ReadBy:      m.ReadBy,
		IsDeleted:   m.IsDeleted,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
	}
	if v.ReadBy == nil {
		v.ReadBy = []ReadReceipt{}
	}
	if m.IsDeleted {
		v.Content = ""
		v.FileURL = ""
		v.FileName = ""
	}
	return v
}

// LastMessageView is lastMessage with the sender resolved
type LastMessageView struct {
	Content   string      `json:"content"`
	Sender    UserSummary `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChatView is a chat as returned to one particular user
type ChatView struct {
	ID              string           `json:"id"`
	ChatType        ChatType         `json:"chatType"`
	ChatName        string           `json:"chatName,omitempty"`
	ChatDescription string           `json:"chatDescription,omitempty"`
	Participants    []UserSummary    `json:"participants"`
	Admins          []string         `json:"admins,omitempty"`
	LastMessage     *LastMessageView `json:"lastMessage,omitempty"`
	IsActive        bool             `json:"isActive"`
	CreatedBy       string           `json:"createdBy"`
	UnreadCount     int              `json:"unreadCount"`
	TotalMessages   int              `json:"totalMessages"`
	Messages        []MessageView    `json:"messages,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// UserIDs returns every user referenced by the chat's participants and the
// given messages, for resolving display fields in one lookup.
func (c *Chat) UserIDs(messages []Message) []string {
	seen := make(map[string]bool, len(c.Participants))
	ids := make([]string, 0, len(c.Participants))
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, p := range c.Participants {
		add(p)
	}
	if c.LastMessage != nil {
		add(c.LastMessage.Sender)
	}
	for _, m := range messages {
		add(m.Sender)
	}
	return ids
}

// SummaryFor resolves id in users, falling back to an ID-only summary.
func SummaryFor(users map[string]UserSummary, id string) UserSummary {
	if s, ok := users[id]; ok {
		return s
	}
	return UserSummary{ID: id}
}

// NewChatView builds the view of c for viewer, including messages when given.
func NewChatView(c *Chat, viewer string, users map[string]UserSummary, messages []Message) ChatView {
	v := ChatView{
		ID:              c.ID,
		ChatType:        c.ChatType,
		ChatName:        c.ChatName,
		ChatDescription: c.ChatDescription,
		Participants:    make([]UserSummary, 0, len(c.Participants)),
		Admins:          c.Admins,
		IsActive:        c.IsActive,
		CreatedBy:       c.CreatedBy,
		UnreadCount:     c.UnreadCount(viewer),
		TotalMessages:   len(c.Messages),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	for _, p := range c.Participants {
		v.Participants = append(v.Participants, SummaryFor(users, p))
	}
	if c.LastMessage != nil {
		v.LastMessage = &LastMessageView{
			Content:   c.LastMessage.Content,
			Sender:    SummaryFor(users, c.LastMessage.Sender),
			Timestamp: c.LastMessage.Timestamp,
		}
	}
	if messages != nil {
		v.Messages = make([]MessageView, 0, len(messages))
		for _, m := range messages {
			v.Messages = append(v.Messages, NewMessageView(c.ID, m, SummaryFor(users, m.Sender)))
		}
	}
	return v
}
