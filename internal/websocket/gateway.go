package websocket

import (
	"context"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/chat"
	"alumnichat/server/internal/config"
	"alumnichat/server/internal/metrics"
	"alumnichat/server/internal/middleware"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/social"
	"alumnichat/server/internal/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

// Gateway accepts live connections and turns their events into chat
// service calls.
type Gateway struct {
	hub    *Hub
	chats  *chat.Service
	users  social.Directory
	tokens *utils.JWTManager
	cfg    config.WSConfig
	log    *zap.Logger
}

func NewGateway(hub *Hub, chats *chat.Service, users social.Directory, tokens *utils.JWTManager, cfg config.WSConfig, log *zap.Logger) *Gateway {
	return &Gateway{hub: hub, chats: chats, users: users, tokens: tokens, cfg: cfg, log: log.Named("gateway")}
}

// Upgrade gates the websocket route. A token in the Authorization header,
// the token cookie or the token query parameter authenticates the handshake;
// without one the client must send an authenticate event first.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"success": false,
			"message": "WebSocket upgrade required",
		})
	}

	token := middleware.TokenFromRequest(c)
	if token == "" {
		token = c.Query("token")
	}
	if token != "" {
		claims, err := g.tokens.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Unauthorized - Invalid token",
			})
		}
		c.Locals("userID", claims.UserID)
	}
	return c.Next()
}

// Handler returns the fiber handler serving upgraded connections.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(g.serve)
}

func (g *Gateway) serve(conn *websocket.Conn) {
	client := NewClient(conn, g.hub, g.cfg, g.log)
	conn.SetReadLimit(g.cfg.MaxMessageSize)

	userID, _ := conn.Locals("userID").(string)
	if userID == "" {
		_ = client.transition(StateAuthenticating)
		id, err := g.authenticateInBand(conn)
		if err != nil {
			g.reject(conn, err)
			return
		}
		userID = id
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.AuthTimeout)
	user, chatIDs, err := g.admit(ctx, userID)
	cancel()
	if err != nil {
		g.reject(conn, err)
		return
	}

	client.UserID = userID
	client.User = user.Summary()
	client.seed(chatIDs)
	_ = client.transition(StateJoined)
	if !g.hub.register(client) {
		conn.Close()
		return
	}

	client.SendMessage(newMessage(EventAuthenticated, AuthenticatedPayload{UserID: userID, ChatIDs: chatIDs}))

	// conn is recycled by the websocket middleware as soon as serve
	// returns, so the writer must be gone by then.
	writer := make(chan struct{})
	go func() {
		defer close(writer)
		client.WritePump()
	}()
	client.ReadPump(g.dispatch)
	<-writer
}

// authenticateInBand waits for an authenticate event within AuthTimeout.
func (g *Gateway) authenticateInBand(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(g.cfg.AuthTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", apperror.Authentication("Authentication timed out")
	}
	ev, err := DecodeEvent(data)
	if err != nil {
		return "", err
	}
	auth, ok := ev.(*AuthenticateEvent)
	if !ok {
		return "", apperror.Authentication("Authentication required")
	}
	claims, err := g.tokens.ValidateToken(auth.Token)
	if err != nil {
		return "", apperror.Authentication("Invalid token")
	}
	return claims.UserID, nil
}

// admit loads the user and the chats whose rooms the session starts in.
func (g *Gateway) admit(ctx context.Context, userID string) (*models.User, []string, error) {
	user, err := g.users.UserByID(ctx, userID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, nil, apperror.Authentication("User not found")
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, apperror.Authentication("Account is deactivated")
	}
	chatIDs, err := g.chats.ActiveChatIDs(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, chatIDs, nil
}

// reject reports err on a connection that never joined the hub and closes it.
func (g *Gateway) reject(conn *websocket.Conn, err error) {
	g.log.Info("websocket rejected", zap.Error(err))
	conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
	_ = conn.WriteJSON(newMessage(EventError, errorPayload(EventAuthenticate, err)))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, apperror.PublicMessage(err)))
	conn.Close()
}

func (g *Gateway) dispatch(c *Client, data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		g.fail(c, "", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := g.handle(ctx, c, ev); err != nil {
		g.fail(c, ev.Type(), err)
		return
	}
	metrics.GatewayEvents.WithLabelValues(string(ev.Type()), "ok").Inc()
}

func (g *Gateway) fail(c *Client, event EventType, err error) {
	kind := apperror.KindOf(err)
	label := string(event)
	if label == "" {
		label = "invalid"
	}
	metrics.GatewayEvents.WithLabelValues(label, string(kind)).Inc()
	if kind == apperror.KindInternal {
		g.log.Error("event failed", zap.String("event", label), zap.String("user", c.UserID), zap.Error(err))
	}
	c.SendError(event, err)
}

func (g *Gateway) handle(ctx context.Context, c *Client, ev Event) error {
	switch e := ev.(type) {
	case *AuthenticateEvent:
		return apperror.Validation("Already authenticated")

	case *JoinChatEvent:
		if err := g.chats.JoinableChat(ctx, e.ChatID, c.UserID); err != nil {
			return err
		}
		g.hub.JoinRoom(c, e.ChatID)
		c.SendMessage(newMessage(EventJoinedChat, ChatRefPayload{ChatID: e.ChatID}))

	case *LeaveChatEvent:
		g.hub.LeaveRoom(c, e.ChatID)
		c.SendMessage(newMessage(EventLeftChat, ChatRefPayload{ChatID: e.ChatID}))

	case *SendMessageEvent:
		_, err := g.chats.SendMessage(ctx, chat.SendInput{
			ChatID:      e.ChatID,
			SenderID:    c.UserID,
			Content:     e.Content,
			MessageType: models.MessageType(e.MessageType),
			File:        e.File(),
		})
		if err != nil {
			return err
		}
		metrics.MessagesSent.WithLabelValues("ws").Inc()

	case *TypingStartEvent:
		return g.typing(c, e.ChatID, EventUserTyping)

	case *TypingStopEvent:
		return g.typing(c, e.ChatID, EventUserStoppedTyping)

	case *MarkAsReadEvent:
		changed, err := g.chats.MarkAsRead(ctx, e.ChatID, c.UserID, e.MessageIDs)
		if err != nil {
			return err
		}
		if !changed {
			c.SendMessage(newMessage(EventMessagesRead, ReadPayload{
				ChatID:     e.ChatID,
				UserID:     c.UserID,
				MessageIDs: e.MessageIDs,
				ReadAt:     time.Now(),
			}))
		}

	case *CreateDirectChatEvent:
		view, created, err := g.chats.CreateDirectChat(ctx, c.UserID, e.ParticipantID)
		if err != nil {
			return err
		}
		c.SendMessage(newMessage(EventChatCreated, ChatCreatedPayload{Chat: view, Created: created}))

	case *UpdateStatusEvent:
		return g.hub.SetStatus(c.UserID, e.Status)

	default:
		return apperror.Validation("Unsupported event")
	}
	return nil
}

// typing relays a typing indicator to the rest of a room the session is in.
func (g *Gateway) typing(c *Client, chatID string, t EventType) error {
	if !g.hub.InRoom(c, chatID) {
		return apperror.Forbidden("Join the chat before sending typing events")
	}
	g.hub.BroadcastToRoom(chatID, newMessage(t, TypingPayload{
		ChatID:   chatID,
		UserID:   c.UserID,
		UserName: c.User.FullName,
	}), c.UserID)
	return nil
}
