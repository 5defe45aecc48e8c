package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alumnichat/server/internal/authz"
	"alumnichat/server/internal/chat"
	"alumnichat/server/internal/config"
	"alumnichat/server/internal/handlers"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/notify"
	"alumnichat/server/internal/routes"
	"alumnichat/server/internal/social"
	"alumnichat/server/internal/store"
	"alumnichat/server/internal/utils"
	ws "alumnichat/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type apiFixture struct {
	app    *fiber.App
	users  *social.MemoryDirectory
	tokens *utils.JWTManager
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log := zap.NewNop()
	users := social.NewMemoryDirectory()
	hub := ws.NewHub(nil, log)
	service := chat.NewService(store.NewMemoryStore(), users, authz.NewGate(users), hub, notify.NewLogNotifier(log), log)
	tokens := utils.NewJWTManager("test-secret", time.Hour)

	app := fiber.New()
	routes.SetupRoutes(app, routes.Handlers{
		Auth:        handlers.NewAuthHandler(users, tokens, time.Hour, false, log),
		Chats:       handlers.NewChatHandler(service, log),
		Connections: handlers.NewConnectionHandler(users, log),
		Uploads:     handlers.NewUploadHandler(t.TempDir(), log),
		Presence:    handlers.NewPresenceHandler(hub, nil, log),
		Gateway:     ws.NewGateway(hub, service, users, tokens, config.WSConfig{}, log),
		Tokens:      tokens,
	})
	return &apiFixture{app: app, users: users, tokens: tokens}
}

// member creates an active user and returns it with a bearer token.
func (f *apiFixture) member(t *testing.T, name string) (*models.User, string) {
	t.Helper()
	u := &models.User{Email: name + "@alumni.test", FullName: name}
	if err := f.users.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	token, err := f.tokens.GenerateToken(u.ID, u.Email)
	if err != nil {
		t.Fatal(err)
	}
	return u, token
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Total   int             `json:"total"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode body: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func TestChatRoutesRequireAuth(t *testing.T) {
	f := newAPI(t)
	status, env := f.do(t, http.MethodGet, "/api/v1/chats", "", nil)
	if status != http.StatusUnauthorized || env.Success {
		t.Fatalf("status = %d, env = %+v", status, env)
	}
	status, _ = f.do(t, http.MethodGet, "/api/v1/chats", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
}

func TestDirectChatLifecycle(t *testing.T) {
	f := newAPI(t)
	alice, aliceToken := f.member(t, "alice")
	bob, bobToken := f.member(t, "bob")
	f.users.Connect(alice.ID, bob.ID)

	status, env := f.do(t, http.MethodPost, "/api/v1/chats/direct", aliceToken, map[string]string{"participantId": bob.ID})
	if status != http.StatusCreated {
		t.Fatalf("create: status = %d, message = %q", status, env.Message)
	}
	var created models.ChatView
	_ = json.Unmarshal(env.Data, &created)

	status, env = f.do(t, http.MethodPost, "/api/v1/chats/direct", bobToken, map[string]string{"participantId": alice.ID})
	var again models.ChatView
	_ = json.Unmarshal(env.Data, &again)
	if status != http.StatusOK || again.ID != created.ID {
		t.Fatalf("find: status = %d, id = %s, want %s", status, again.ID, created.ID)
	}

	chatPath := "/api/v1/chats/" + created.ID
	status, env = f.do(t, http.MethodPost, chatPath+"/messages", aliceToken, map[string]string{"content": "welcome back"})
	if status != http.StatusCreated {
		t.Fatalf("send: status = %d, message = %q", status, env.Message)
	}

	status, env = f.do(t, http.MethodGet, "/api/v1/chats", bobToken, nil)
	var list []models.ChatView
	_ = json.Unmarshal(env.Data, &list)
	if status != http.StatusOK || env.Count != 1 || env.Total != 1 {
		t.Fatalf("list: status = %d, count = %d, total = %d", status, env.Count, env.Total)
	}
	if list[0].UnreadCount != 1 || list[0].LastMessage == nil || list[0].LastMessage.Content != "welcome back" {
		t.Fatalf("unexpected list entry %+v", list[0])
	}

	// Opening the chat marks it read.
	status, env = f.do(t, http.MethodGet, chatPath, bobToken, nil)
	var opened models.ChatView
	_ = json.Unmarshal(env.Data, &opened)
	if status != http.StatusOK || len(opened.Messages) != 1 || opened.UnreadCount != 0 {
		t.Fatalf("get: status = %d, view = %+v", status, opened)
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/chats/stats", bobToken, nil)
	var stats models.ChatStats
	_ = json.Unmarshal(env.Data, &stats)
	if stats != (models.ChatStats{TotalChats: 1, UnreadChats: 0, TotalMessages: 1}) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	status, _ = f.do(t, http.MethodPut, chatPath+"/read", bobToken, map[string][]string{"messageIds": {}})
	if status != http.StatusOK {
		t.Fatalf("read: status = %d", status)
	}

	status, _ = f.do(t, http.MethodDelete, chatPath, aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: status = %d", status)
	}
	status, _ = f.do(t, http.MethodGet, chatPath, bobToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("deleted chat: status = %d", status)
	}
}

func TestDirectChatRequiresConnection(t *testing.T) {
	f := newAPI(t)
	_, aliceToken := f.member(t, "alice")
	carol, _ := f.member(t, "carol")

	status, env := f.do(t, http.MethodPost, "/api/v1/chats/direct", aliceToken, map[string]string{"participantId": carol.ID})
	if status != http.StatusForbidden || env.Message != "You can only chat with connected alumni" {
		t.Fatalf("status = %d, message = %q", status, env.Message)
	}

	status, _ = f.do(t, http.MethodPost, "/api/v1/chats/direct", aliceToken, map[string]string{})
	if status != http.StatusBadRequest {
		t.Fatalf("missing participant: status = %d", status)
	}
}

func TestOutsiderIsForbidden(t *testing.T) {
	f := newAPI(t)
	alice, aliceToken := f.member(t, "alice")
	bob, _ := f.member(t, "bob")
	_, malloryToken := f.member(t, "mallory")
	f.users.Connect(alice.ID, bob.ID)

	_, env := f.do(t, http.MethodPost, "/api/v1/chats/direct", aliceToken, map[string]string{"participantId": bob.ID})
	var view models.ChatView
	_ = json.Unmarshal(env.Data, &view)
	chatPath := "/api/v1/chats/" + view.ID

	for _, tc := range []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, chatPath, nil},
		{http.MethodPost, chatPath + "/messages", map[string]string{"content": "hi"}},
		{http.MethodPut, chatPath + "/read", nil},
		{http.MethodDelete, chatPath, nil},
	} {
		status, env := f.do(t, tc.method, tc.path, malloryToken, tc.body)
		if status != http.StatusForbidden || env.Message != "Not authorized to access this chat" {
			t.Errorf("%s %s: status = %d, message = %q", tc.method, tc.path, status, env.Message)
		}
	}

	// The chat is still intact for its participants.
	status, _ := f.do(t, http.MethodGet, chatPath, aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("participant lost access: %d", status)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newAPI(t)
	alice, aliceToken := f.member(t, "alice")
	bob, _ := f.member(t, "bob")
	f.users.Connect(alice.ID, bob.ID)
	_, env := f.do(t, http.MethodPost, "/api/v1/chats/direct", aliceToken, map[string]string{"participantId": bob.ID})
	var view models.ChatView
	_ = json.Unmarshal(env.Data, &view)
	path := "/api/v1/chats/" + view.ID + "/messages"

	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty", map[string]string{"content": "   "}},
		{"bad type", map[string]string{"content": "x", "messageType": "video"}},
		{"image without file", map[string]string{"messageType": "image"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := f.do(t, http.MethodPost, path, aliceToken, tt.body)
			if status != http.StatusBadRequest || env.Success {
				t.Fatalf("status = %d, message = %q", status, env.Message)
			}
		})
	}

	status, _ := f.do(t, http.MethodPost, "/api/v1/chats/missing/messages", aliceToken, map[string]string{"content": "x"})
	if status != http.StatusNotFound {
		t.Fatalf("missing chat: status = %d", status)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "Dana@Alumni.test",
		"password": "secret123",
		"fullName": "Dana",
		"role":     "alumni",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: status = %d, message = %q", status, env.Message)
	}

	status, _ = f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "dana@alumni.test",
		"password": "secret123",
		"fullName": "Dana again",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate register: status = %d", status)
	}

	status, _ = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "dana@alumni.test", "password": "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad login: status = %d", status)
	}

	status, env = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "dana@alumni.test", "password": "secret123"})
	if status != http.StatusOK {
		t.Fatalf("login: status = %d, message = %q", status, env.Message)
	}
	var login struct {
		Token string              `json:"token"`
		User  models.UserResponse `json:"user"`
	}
	_ = json.Unmarshal(env.Data, &login)

	status, env = f.do(t, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	var me models.UserResponse
	_ = json.Unmarshal(env.Data, &me)
	if status != http.StatusOK || me.ID != login.User.ID || me.Email != "dana@alumni.test" {
		t.Fatalf("me: status = %d, user = %+v", status, me)
	}
}

func TestConnectionRequestFlow(t *testing.T) {
	f := newAPI(t)
	_, aliceToken := f.member(t, "alice")
	bob, bobToken := f.member(t, "bob")

	status, env := f.do(t, http.MethodPost, "/api/v1/connections/request", aliceToken, map[string]string{"recipientId": bob.ID})
	if status != http.StatusCreated {
		t.Fatalf("request: status = %d, message = %q", status, env.Message)
	}
	var conn models.Connection
	_ = json.Unmarshal(env.Data, &conn)

	status, _ = f.do(t, http.MethodPut, "/api/v1/connections/"+conn.ID+"/accept", aliceToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("requester accepted own request: status = %d", status)
	}

	status, _ = f.do(t, http.MethodPut, "/api/v1/connections/"+conn.ID+"/accept", bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("accept: status = %d", status)
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/connections", aliceToken, nil)
	if env.Count != 1 {
		t.Fatalf("connections = %d", env.Count)
	}

	status, _ = f.do(t, http.MethodPost, "/api/v1/chats/direct", aliceToken, map[string]string{"participantId": bob.ID})
	if status != http.StatusCreated {
		t.Fatalf("chat after connecting: status = %d", status)
	}
}

func TestPresenceFallsBackToHub(t *testing.T) {
	f := newAPI(t)
	bob, bobToken := f.member(t, "bob")

	status, env := f.do(t, http.MethodGet, "/api/v1/users/"+bob.ID+"/presence", bobToken, nil)
	var p struct {
		Status   string `json:"status"`
		IsOnline bool   `json:"isOnline"`
	}
	_ = json.Unmarshal(env.Data, &p)
	if status != http.StatusOK || p.Status != "offline" || p.IsOnline {
		t.Fatalf("status = %d, presence = %+v", status, p)
	}
}
