package chat

import (
	"context"
	"strings"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/authz"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/notify"
	"alumnichat/server/internal/social"
	"alumnichat/server/internal/store"

	"go.uber.org/zap"
)

const (
	defaultMessageWindow = 50
	notifyTimeout        = 5 * time.Second
)

// Service owns the chat lifecycle. Both the HTTP handlers and the live
// gateway go through it, so they share one set of rules and errors.
type Service struct {
	store    store.ChatStore
	users    social.Directory
	gate     *authz.Gate
	events   Events
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(st store.ChatStore, users social.Directory, gate *authz.Gate, events Events, notifier notify.Notifier, log *zap.Logger) *Service {
	if events == nil {
		events = nopEvents{}
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Service{
		store:    st,
		users:    users,
		gate:     gate,
		events:   events,
		notifier: notifier,
		log:      log.Named("chat"),
		now:      time.Now,
	}
}

// SendInput is a message as submitted by a client.
type SendInput struct {
	ChatID      string
	SenderID    string
	Content     string
	MessageType models.MessageType
	File        models.FileMeta
}

// SendMessage appends a message and fans it out to the chat room.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (models.MessageView, error) {
	if in.ChatID == "" {
		return models.MessageView{}, apperror.Validation("Chat ID is required")
	}
	chat, err := s.store.GetChat(ctx, in.ChatID)
	if err != nil {
		return models.MessageView{}, err
	}
	if err := s.gate.RequireParticipant(chat, in.SenderID); err != nil {
		return models.MessageView{}, err
	}

	msg, _, err := s.store.AppendMessage(ctx, in.ChatID, in.SenderID, in.Content, in.MessageType, in.File)
	if err != nil {
		return models.MessageView{}, err
	}

	users := s.summaries(ctx, []string{in.SenderID})
	view := models.NewMessageView(in.ChatID, msg, models.SummaryFor(users, in.SenderID))
	s.events.MessageCreated(in.ChatID, view)
	s.notifyOffline(chat, view)
	return view, nil
}

// notifyOffline tells participants with no live session about msg. Delivery
// runs detached from the request and only logs failures.
func (s *Service) notifyOffline(chat *models.Chat, msg models.MessageView) {
	for _, p := range chat.OtherParticipants(msg.Sender.ID) {
		if s.events.IsUserOnline(p) {
			continue
		}
		n := notify.OfflineMessage{
			RecipientID: p,
			ChatID:      chat.ID,
			MessageID:   msg.ID,
			SenderID:    msg.Sender.ID,
			SenderName:  msg.Sender.FullName,
			Preview:     models.Preview(msg.Content, msg.MessageType),
			CreatedAt:   msg.CreatedAt,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := s.notifier.NotifyOffline(ctx, n); err != nil {
				s.log.Warn("offline notification failed", zap.String("recipient", n.RecipientID), zap.Error(err))
			}
		}()
	}
}

// CreateDirectChat finds or creates the direct chat between userID and
// participantID. created reports whether the chat became visible through
// this call. The peer is told about the chat either way, which also puts
// sessions that left the room back into it.
func (s *Service) CreateDirectChat(ctx context.Context, userID, participantID string) (view models.ChatView, created bool, err error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return view, false, apperror.Validation("Participant ID is required")
	}
	if participantID == userID {
		return view, false, apperror.Validation("You cannot start a chat with yourself")
	}
	peer, err := s.users.UserByID(ctx, participantID)
	if err != nil {
		return view, false, err
	}
	if !peer.IsActive {
		return view, false, apperror.NotFound("User not found")
	}
	if err := s.gate.RequireConnected(ctx, userID, participantID); err != nil {
		return view, false, err
	}

	chat, opened, err := s.store.FindOrCreateDirect(ctx, userID, participantID)
	if err != nil {
		return view, false, err
	}

	users := s.summaries(ctx, chat.UserIDs(nil))
	s.events.Subscribe(userID, chat.ID)
	s.events.ChatOpened(participantID, models.NewChatView(chat, participantID, users, nil))
	return models.NewChatView(chat, userID, users, nil), opened, nil
}

// GroupInput describes a new group chat.
type GroupInput struct {
	CreatorID   string
	Name        string
	Description string
	MemberIDs   []string
}

// CreateGroupChat creates a group of the creator and members, all of whom
// must be connected to the creator.
func (s *Service) CreateGroupChat(ctx context.Context, in GroupInput) (models.ChatView, error) {
	chat, err := models.NewGroupChat(in.CreatorID, in.Name, in.Description, in.MemberIDs, s.now())
	if err != nil {
		return models.ChatView{}, err
	}

	users, err := s.users.Summaries(ctx, chat.Participants)
	if err != nil {
		return models.ChatView{}, apperror.Internal("Failed to load members", err)
	}
	for _, p := range chat.Participants {
		if _, ok := users[p]; !ok {
			return models.ChatView{}, apperror.NotFound("User not found")
		}
	}
	if err := s.gate.RequireAllConnected(ctx, in.CreatorID, chat.Participants); err != nil {
		return models.ChatView{}, err
	}
	if err := s.store.CreateGroup(ctx, chat); err != nil {
		return models.ChatView{}, err
	}

	s.events.Subscribe(in.CreatorID, chat.ID)
	for _, p := range chat.OtherParticipants(in.CreatorID) {
		s.events.ChatOpened(p, models.NewChatView(chat, p, users, nil))
	}
	return models.NewChatView(chat, in.CreatorID, users, nil), nil
}

// MarkAsRead records read receipts. changed is false when there was nothing
// left to mark; the room is only told about actual changes.
func (s *Service) MarkAsRead(ctx context.Context, chatID, userID string, messageIDs []string) (changed bool, err error) {
	if chatID == "" {
		return false, apperror.Validation("Chat ID is required")
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if err := s.gate.RequireParticipant(chat, userID); err != nil {
		return false, err
	}

	changed, err = s.store.MarkRead(ctx, chatID, userID, messageIDs)
	if err != nil {
		return false, err
	}
	if changed {
		s.events.MessagesRead(chatID, userID, messageIDs, s.now())
	}
	return changed, nil
}

// LeaveOrDeleteChat deactivates a direct chat or removes userID from a group.
func (s *Service) LeaveOrDeleteChat(ctx context.Context, chatID, userID string) error {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.gate.RequireParticipant(chat, userID); err != nil {
		return err
	}

	updated, err := s.store.DeactivateOrLeave(ctx, chatID, userID)
	if err != nil {
		return err
	}
	s.events.ChatLeft(chatID, userID, updated.IsActive)
	return nil
}

// ListChats returns the user's active chats with unread counts.
func (s *Service) ListChats(ctx context.Context, userID string, page, limit int) ([]models.ChatView, int64, error) {
	chats, total, err := s.store.ListChats(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	var ids []string
	for _, c := range chats {
		ids = append(ids, c.UserIDs(nil)...)
	}
	users := s.summaries(ctx, ids)

	views := make([]models.ChatView, 0, len(chats))
	for _, c := range chats {
		views = append(views, models.NewChatView(c, userID, users, nil))
	}
	return views, total, nil
}

// GetChat returns the chat with its newest limit messages and marks
// everything as read for userID.
func (s *Service) GetChat(ctx context.Context, chatID, userID string, limit int) (models.ChatView, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	if err := s.gate.RequireParticipant(chat, userID); err != nil {
		return models.ChatView{}, err
	}

	changed, err := s.store.MarkRead(ctx, chatID, userID, nil)
	if err != nil {
		return models.ChatView{}, err
	}
	if changed {
		now := s.now()
		chat.MarkRead(userID, nil, now)
		s.events.MessagesRead(chatID, userID, nil, now)
	}

	if limit <= 0 {
		limit = defaultMessageWindow
	}
	window := chat.Tail(limit)
	users := s.summaries(ctx, chat.UserIDs(window))
	return models.NewChatView(chat, userID, users, window), nil
}

// JoinableChat checks that userID may subscribe to the chat's live room.
func (s *Service) JoinableChat(ctx context.Context, chatID, userID string) error {
	if chatID == "" {
		return apperror.Validation("Chat ID is required")
	}
	return s.authorize(ctx, chatID, userID)
}

func (s *Service) ActiveChatIDs(ctx context.Context, userID string) ([]string, error) {
	return s.store.ActiveChatIDs(ctx, userID)
}

func (s *Service) Stats(ctx context.Context, userID string) (models.ChatStats, error) {
	return s.store.Stats(ctx, userID)
}

// authorize loads the chat and checks that userID takes part in it.
func (s *Service) authorize(ctx context.Context, chatID, userID string) error {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	return s.gate.RequireParticipant(chat, userID)
}

// DeleteMessage soft-deletes one of userID's messages.
func (s *Service) DeleteMessage(ctx context.Context, chatID, messageID, userID string) (models.MessageView, error) {
	if err := s.authorize(ctx, chatID, userID); err != nil {
		return models.MessageView{}, err
	}
	msg, _, err := s.store.DeleteMessage(ctx, chatID, messageID, userID)
	if err != nil {
		return models.MessageView{}, err
	}
	return s.messageUpdated(ctx, chatID, msg), nil
}

// EditMessage replaces the content of one of userID's messages.
func (s *Service) EditMessage(ctx context.Context, chatID, messageID, userID, content string) (models.MessageView, error) {
	if err := s.authorize(ctx, chatID, userID); err != nil {
		return models.MessageView{}, err
	}
	msg, _, err := s.store.EditMessage(ctx, chatID, messageID, userID, content)
	if err != nil {
		return models.MessageView{}, err
	}
	return s.messageUpdated(ctx, chatID, msg), nil
}

func (s *Service) messageUpdated(ctx context.Context, chatID string, msg models.Message) models.MessageView {
	users := s.summaries(ctx, []string{msg.Sender})
	view := models.NewMessageView(chatID, msg, models.SummaryFor(users, msg.Sender))
	s.events.MessageUpdated(chatID, view)
	return view
}

// summaries resolves display fields, degrading to bare IDs when the
// directory is unavailable.
func (s *Service) summaries(ctx context.Context, ids []string) map[string]models.UserSummary {
	users, err := s.users.Summaries(ctx, ids)
	if err != nil {
		s.log.Warn("user lookup failed", zap.Error(err))
		return map[string]models.UserSummary{}
	}
	return users
}
