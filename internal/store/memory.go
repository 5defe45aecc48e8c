package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"alumnichat/server/internal/models"
)

// MemoryStore keeps chats in process memory. Every mutation runs under one
// lock, so appends and read receipts on a chat are linearized.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string]*models.Chat
	pairs map[string]string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats: make(map[string]*models.Chat),
		pairs: make(map[string]string),
		now:   time.Now,
	}
}

func (s *MemoryStore) FindOrCreateDirect(_ context.Context, userA, userB string) (*models.Chat, bool, error) {
	fresh, err := models.NewDirectChat(userA, userB, s.now())
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairs[fresh.PairKey]; ok {
		chat := s.chats[id]
		opened := false
		if !chat.IsActive {
			chat.IsActive = true
			chat.UpdatedAt = fresh.CreatedAt
			chat.Version++
			opened = true
		}
		return chat.Clone(), opened, nil
	}

	s.chats[fresh.ID] = fresh
	s.pairs[fresh.PairKey] = fresh.ID
	return fresh.Clone(), true, nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat.Clone()
	return nil
}

func (s *MemoryStore) GetChat(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, errChatNotFound()
	}
	return chat.Clone(), nil
}

func (s *MemoryStore) ListChats(_ context.Context, userID string, page, limit int) ([]*models.Chat, int64, error) {
	page, limit = Pagination(page, limit, 20)

	s.mu.RLock()
	var matched []*models.Chat
	for _, chat := range s.chats {
		if chat.IsActive && chat.IsParticipant(userID) {
			matched = append(matched, chat.Clone())
		}
	}
	s.mu.RUnlock()

	sortByActivity(matched)
	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []*models.Chat{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// sortByActivity orders chats by lastMessage timestamp descending; chats
// without messages follow, newest update first.
func sortByActivity(chats []*models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		switch {
		case a.LastMessage != nil && b.LastMessage == nil:
			return true
		case a.LastMessage == nil && b.LastMessage != nil:
			return false
		case a.LastMessage != nil && !a.LastMessage.Timestamp.Equal(b.LastMessage.Timestamp):
			return a.LastMessage.Timestamp.After(b.LastMessage.Timestamp)
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}

func (s *MemoryStore) ActiveChatIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []string{}
	for id, chat := range s.chats {
		if chat.IsActive && chat.IsParticipant(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, chatID, sender, content string, t models.MessageType, file models.FileMeta) (models.Message, *models.LastMessage, error) {
	msg, err := models.NewMessage(sender, content, t, file, s.now())
	if err != nil {
		return models.Message{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Message{}, nil, errChatNotFound()
	}
	if err := chat.AppendMessage(msg); err != nil {
		return models.Message{}, nil, err
	}
	chat.Version++
	last := *chat.LastMessage
	return msg, &last, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, chatID, reader string, messageIDs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return false, errChatNotFound()
	}
	if err := readAccess(chat, reader); err != nil {
		return false, err
	}
	if chat.MarkRead(reader, messageIDs, s.now()) == 0 {
		return false, nil
	}
	chat.Version++
	return true, nil
}

// mutate applies fn to the stored chat under the write lock and returns a
// copy of the result. fn must leave the chat untouched when it fails.
func (s *MemoryStore) mutate(chatID string, fn func(*models.Chat) error) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, errChatNotFound()
	}
	work := chat.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.Version = chat.Version + 1
	s.chats[chatID] = work
	return work.Clone(), nil
}

func (s *MemoryStore) DeactivateOrLeave(_ context.Context, chatID, userID string) (*models.Chat, error) {
	return s.mutate(chatID, func(c *models.Chat) error {
		if !c.IsActive {
			return errChatNotFound()
		}
		return c.Leave(userID, s.now())
	})
}

func (s *MemoryStore) DeleteMessage(_ context.Context, chatID, messageID, userID string) (models.Message, *models.LastMessage, error) {
	var msg models.Message
	chat, err := s.mutate(chatID, func(c *models.Chat) error {
		m, err := c.DeleteMessage(messageID, userID, s.now())
		if err != nil {
			return err
		}
		msg = detach(*m)
		return nil
	})
	if err != nil {
		return models.Message{}, nil, err
	}
	return msg, chat.LastMessage, nil
}

func (s *MemoryStore) EditMessage(_ context.Context, chatID, messageID, userID, content string) (models.Message, *models.LastMessage, error) {
	var msg models.Message
	chat, err := s.mutate(chatID, func(c *models.Chat) error {
		m, err := c.EditMessage(messageID, userID, content, s.now())
		if err != nil {
			return err
		}
		msg = detach(*m)
		return nil
	})
	if err != nil {
		return models.Message{}, nil, err
	}
	return msg, chat.LastMessage, nil
}

func (s *MemoryStore) Stats(_ context.Context, userID string) (models.ChatStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.ChatStats
	for _, chat := range s.chats {
		if !chat.IsActive || !chat.IsParticipant(userID) {
			continue
		}
		stats.TotalChats++
		stats.TotalMessages += int64(len(chat.Messages))
		if chat.UnreadCount(userID) > 0 {
			stats.UnreadChats++
		}
	}
	return stats, nil
}

func detach(m models.Message) models.Message {
	m.ReadBy = append([]models.ReadReceipt{}, m.ReadBy...)
	return m
}
