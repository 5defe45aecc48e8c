package websocket

import (
	"errors"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/config"
	"alumnichat/server/internal/metrics"
	"alumnichat/server/internal/models"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is where a connection is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoined
	StateActive
	StateIdle
	StateDisconnected
)

var stateNames = [...]string{"connecting", "authenticating", "joined", "active", "idle", "disconnected"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// allowed lists the legal transitions; any state may disconnect.
var allowed = map[State][]State{
	StateConnecting:     {StateAuthenticating, StateJoined},
	StateAuthenticating: {StateJoined},
	StateJoined:         {StateActive, StateIdle},
	StateActive:         {StateIdle, StateActive},
	StateIdle:           {StateActive, StateIdle},
}

var errBadTransition = errors.New("illegal connection state transition")

// Client represents one WebSocket session of a user
type Client struct {
	ID     string // Connection ID
	UserID string
	User   models.UserSummary
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte

	registered chan struct{}
	closed     chan struct{}

	state   State
	limiter *rate.Limiter
	cfg     config.WSConfig
	log     *zap.Logger

	// Rooms this session is subscribed to; guarded by Hub.mu
	rooms map[string]bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, cfg config.WSConfig, log *zap.Logger) *Client {
	burst := int(cfg.EventsPerSecond * 2)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		ID:         uuid.NewString(),
		Conn:       conn,
		Hub:        hub,
		Send:       make(chan []byte, 256),
		registered: make(chan struct{}),
		closed:     make(chan struct{}),
		state:      StateConnecting,
		limiter:    rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), burst),
		cfg:        cfg,
		log:        log,
		rooms:      make(map[string]bool),
	}
}

// State returns the connection state. Only the read loop changes it.
func (c *Client) State() State { return c.state }

func (c *Client) transition(to State) error {
	if to == StateDisconnected {
		c.state = to
		return nil
	}
	for _, s := range allowed[c.state] {
		if s == to {
			c.state = to
			return nil
		}
	}
	return errBadTransition
}

// seed sets the rooms the session joins on registration.
func (c *Client) seed(chatIDs []string) {
	for _, id := range chatIDs {
		c.rooms[chatRoom(id)] = true
	}
}

// ReadPump reads frames until the connection fails and hands each one to
// handle. Frames from one connection are handled strictly in arrival order.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer func() {
		_ = c.transition(StateDisconnected)
		c.Hub.unregister(c)
		close(c.closed)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		if c.state == StateActive {
			_ = c.transition(StateIdle)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket read error", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		_ = c.transition(StateActive)

		if !c.limiter.Allow() {
			metrics.GatewayEvents.WithLabelValues("any", "rate_limited").Inc()
			c.SendError("", apperror.Validation("Too many events, slow down"))
			continue
		}
		handle(c, message)
	}
}

// WritePump handles outgoing messages to the client. It returns once the
// send queue is closed or the read loop has ended.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write error", zap.String("conn", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			return
		}
	}
}

// SendMessage queues a message for this session only.
func (c *Client) SendMessage(msg WSMessage) {
	data, err := encode(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if c.Hub.clients[c.UserID][c] {
		c.Hub.deliver(c, data)
	}
}

// SendError reports a failed event to this session only.
func (c *Client) SendError(event EventType, err error) {
	c.SendMessage(newMessage(EventError, errorPayload(event, err)))
}

func errorPayload(event EventType, err error) ErrorPayload {
	return ErrorPayload{
		Code:    string(apperror.KindOf(err)),
		Message: apperror.PublicMessage(err),
		Event:   event,
	}
}
