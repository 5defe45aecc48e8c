package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/metrics"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/presence"

	"go.uber.org/zap"
)

const (
	mirrorTimeout = 3 * time.Second
	mirrorBacklog = 1024
)

func chatRoom(chatID string) string { return "chat:" + chatID }

// Hub tracks live sessions per user and per chat room and fans events out
// to them. It implements chat.Events.
type Hub struct {
	// Sessions by user ID; a user may be connected from several devices
	clients map[string]map[*Client]bool

	// Room members by room name
	rooms map[string]map[*Client]bool

	// Self-reported status of online users
	status map[string]string

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	mirror  presence.Mirror
	mirrorQ chan func(ctx context.Context) error
	log     *zap.Logger
	done    chan struct{}

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(mirror presence.Mirror, log *zap.Logger) *Hub {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		status:     make(map[string]string),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		mirror:     mirror,
		mirrorQ:    make(chan func(ctx context.Context) error, mirrorBacklog),
		log:        log.Named("hub"),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.mirrorLoop(ctx)
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			return
		}
	}
}

// register hands c to the run loop and waits until it is live.
func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
	case <-h.done:
		return false
	}
	select {
	case <-c.registered:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// registerClient adds a client to its user's sessions and to the rooms it
// was seeded with. The first session of a user announces them online.
func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	sessions, ok := h.clients[c.UserID]
	first := !ok
	if first {
		sessions = make(map[*Client]bool)
		h.clients[c.UserID] = sessions
		h.status[c.UserID] = presence.StatusOnline
	}
	sessions[c] = true
	for room := range c.rooms {
		h.joinLocked(c, room)
	}
	if first {
		h.broadcastPresenceLocked(c.UserID, presence.StatusOnline, true)
	}
	h.updateGaugesLocked()
	h.mirrorLocked(func(ctx context.Context) error { return h.mirror.Connected(ctx, c.UserID) })
	h.mu.Unlock()
	close(c.registered)

	h.log.Debug("client connected", zap.String("user", c.UserID), zap.String("conn", c.ID), zap.Bool("first", first))
}

// unregisterClient removes a client everywhere and closes its send queue.
// The last session of a user announces them offline.
func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	sessions, ok := h.clients[c.UserID]
	if !ok || !sessions[c] {
		h.mu.Unlock()
		return
	}

	last := len(sessions) == 1
	if last {
		// Peers are found through the rooms, so announce before leaving them.
		h.broadcastPresenceLocked(c.UserID, presence.StatusOffline, false)
		delete(h.clients, c.UserID)
		delete(h.status, c.UserID)
	} else {
		delete(sessions, c)
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.Send)
	h.updateGaugesLocked()
	h.mirrorLocked(func(ctx context.Context) error { return h.mirror.Disconnected(ctx, c.UserID) })
	h.mu.Unlock()

	h.log.Debug("client disconnected", zap.String("user", c.UserID), zap.String("conn", c.ID), zap.Bool("last", last))
}

func (h *Hub) updateGaugesLocked() {
	n := 0
	for _, sessions := range h.clients {
		n += len(sessions)
	}
	metrics.LiveConnections.Set(float64(n))
	metrics.OnlineUsers.Set(float64(len(h.clients)))
}

// mirrorLocked queues a presence mirror update. Callers hold h.mu so the
// queue order matches the order of local state changes.
func (h *Hub) mirrorLocked(fn func(ctx context.Context) error) {
	select {
	case h.mirrorQ <- fn:
	default:
		h.log.Warn("presence mirror backlog full, dropping update")
	}
}

// mirrorLoop applies mirror updates one at a time, in order.
func (h *Hub) mirrorLoop(ctx context.Context) {
	for {
		select {
		case fn := <-h.mirrorQ:
			mctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			if err := fn(mctx); err != nil {
				h.log.Warn("presence mirror update failed", zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	c.rooms[room] = true
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// JoinRoom subscribes one session to a chat room.
func (h *Hub) JoinRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.UserID][c] {
		h.joinLocked(c, chatRoom(chatID))
	}
}

// LeaveRoom unsubscribes one session from a chat room.
func (h *Hub) LeaveRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, chatRoom(chatID))
}

// InRoom reports whether the session is subscribed to the chat room.
func (h *Hub) InRoom(c *Client, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[chatRoom(chatID)][c]
}

func encode(msg WSMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// deliver queues data on c without blocking. A client whose queue is full
// is disconnected.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		h.log.Warn("send queue full, dropping client", zap.String("user", c.UserID), zap.String("conn", c.ID))
		go h.unregister(c)
	}
}

// BroadcastToRoom sends msg to every session in the chat room except those
// of excludeUserID.
func (h *Hub) BroadcastToRoom(chatID string, msg WSMessage, excludeUserID string) {
	data, err := encode(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[chatRoom(chatID)] {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		h.deliver(c, data)
	}
}

// SendToUser sends msg to every session of userID.
func (h *Hub) SendToUser(userID string, msg WSMessage) {
	data, err := encode(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		h.deliver(c, data)
	}
}

// peersLocked returns the other users sharing a chat room with userID.
func (h *Hub) peersLocked(userID string) map[string]bool {
	peers := make(map[string]bool)
	for c := range h.clients[userID] {
		for room := range c.rooms {
			for member := range h.rooms[room] {
				if member.UserID != userID {
					peers[member.UserID] = true
				}
			}
		}
	}
	return peers
}

func (h *Hub) broadcastPresenceLocked(userID, status string, online bool) {
	data, err := encode(newMessage(EventUserStatusChanged, PresencePayload{
		UserID:   userID,
		Status:   status,
		IsOnline: online,
		LastSeen: time.Now(),
	}))
	if err != nil {
		h.log.Error("failed to marshal presence message", zap.Error(err))
		return
	}
	for peer := range h.peersLocked(userID) {
		for c := range h.clients[peer] {
			h.deliver(c, data)
		}
	}
}

// SetStatus records a self-reported status and tells the user's peers.
// Users without a live session are ignored.
func (h *Hub) SetStatus(userID, status string) error {
	if !presence.ValidStatus(status) {
		return apperror.Validation("Invalid status")
	}
	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.mu.Unlock()
		return nil
	}
	h.status[userID] = status
	h.broadcastPresenceLocked(userID, status, true)
	h.mirrorLocked(func(ctx context.Context) error { return h.mirror.SetStatus(ctx, userID, status) })
	h.mu.Unlock()
	return nil
}

// Status returns the user's status as seen by this instance.
func (h *Hub) Status(userID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status, ok := h.status[userID]
	if !ok {
		return presence.StatusOffline, false
	}
	return status, true
}

// IsUserOnline checks if a user is currently connected
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetOnlineUsers returns a list of currently online user IDs
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userIDs := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}
	return userIDs
}

// UserConnectionCount returns the number of open sessions of userID
func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// GetConnectionCount returns the number of open sessions
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sessions := range h.clients {
		n += len(sessions)
	}
	return n
}

// chat.Events

func (h *Hub) MessageCreated(chatID string, msg models.MessageView) {
	h.BroadcastToRoom(chatID, newMessage(EventNewMessage, msg), "")
}

func (h *Hub) MessageUpdated(chatID string, msg models.MessageView) {
	h.BroadcastToRoom(chatID, newMessage(EventMessageUpdated, msg), "")
}

func (h *Hub) MessagesRead(chatID, userID string, messageIDs []string, at time.Time) {
	h.BroadcastToRoom(chatID, newMessage(EventMessagesRead, ReadPayload{
		ChatID:     chatID,
		UserID:     userID,
		MessageIDs: messageIDs,
		ReadAt:     at,
	}), "")
}

func (h *Hub) Subscribe(userID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		h.joinLocked(c, chatRoom(chatID))
	}
}

func (h *Hub) ChatOpened(userID string, chat models.ChatView) {
	h.Subscribe(userID, chat.ID)
	h.SendToUser(userID, newMessage(EventNewChatCreated, NewChatPayload{Chat: chat}))
}

func (h *Hub) ChatLeft(chatID, userID string, stillActive bool) {
	h.BroadcastToRoom(chatID, newMessage(EventUserLeftChat, UserLeftPayload{
		ChatID:      chatID,
		UserID:      userID,
		ChatDeleted: !stillActive,
	}), "")

	h.mu.Lock()
	defer h.mu.Unlock()
	room := chatRoom(chatID)
	for c := range h.rooms[room] {
		if !stillActive || c.UserID == userID {
			h.leaveLocked(c, room)
		}
	}
}
