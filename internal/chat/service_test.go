package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/authz"
	"alumnichat/server/internal/models"
	"alumnichat/server/internal/notify"
	"alumnichat/server/internal/social"
	"alumnichat/server/internal/store"

	"go.uber.org/zap"
)

type recordedEvent struct {
	kind   string
	chatID string
	userID string
	msg    models.MessageView
	chat   models.ChatView
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	online map[string]bool
}

func (r *recorder) add(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) MessageCreated(chatID string, msg models.MessageView) {
	r.add(recordedEvent{kind: "new_message", chatID: chatID, msg: msg})
}
func (r *recorder) MessageUpdated(chatID string, msg models.MessageView) {
	r.add(recordedEvent{kind: "message_updated", chatID: chatID, msg: msg})
}
func (r *recorder) MessagesRead(chatID, userID string, _ []string, _ time.Time) {
	r.add(recordedEvent{kind: "messages_read", chatID: chatID, userID: userID})
}
func (r *recorder) ChatOpened(userID string, chat models.ChatView) {
	r.add(recordedEvent{kind: "new_chat_created", userID: userID, chat: chat})
}
func (r *recorder) Subscribe(userID, chatID string) {
	r.add(recordedEvent{kind: "subscribe", userID: userID, chatID: chatID})
}
func (r *recorder) ChatLeft(chatID, userID string, _ bool) {
	r.add(recordedEvent{kind: "user_left_chat", chatID: chatID, userID: userID})
}
func (r *recorder) IsUserOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID]
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].kind == kind {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

type chanNotifier struct {
	sent chan notify.OfflineMessage
}

func (n *chanNotifier) NotifyOffline(_ context.Context, m notify.OfflineMessage) error {
	n.sent <- m
	return nil
}

func (n *chanNotifier) Close() error { return nil }

type fixture struct {
	svc      *Service
	store    *store.MemoryStore
	dir      *social.MemoryDirectory
	events   *recorder
	notifier *chanNotifier
	ids      map[string]string
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemoryStore(),
		dir:      social.NewMemoryDirectory(),
		events:   &recorder{online: map[string]bool{}},
		notifier: &chanNotifier{sent: make(chan notify.OfflineMessage, 16)},
		ids:      map[string]string{},
	}
	for _, n := range names {
		u := &models.User{Email: n + "@example.com", FullName: n}
		if err := f.dir.CreateUser(context.Background(), u); err != nil {
			t.Fatal(err)
		}
		f.ids[n] = u.ID
	}
	f.svc = NewService(f.store, f.dir, authz.NewGate(f.dir), f.events, f.notifier, zap.NewNop())
	return f
}

func (f *fixture) connect(a, b string) {
	f.dir.Connect(f.ids[a], f.ids[b])
}

func (f *fixture) direct(t *testing.T, a, b string) models.ChatView {
	t.Helper()
	view, _, err := f.svc.CreateDirectChat(context.Background(), f.ids[a], f.ids[b])
	if err != nil {
		t.Fatal(err)
	}
	return view
}

func (f *fixture) send(t *testing.T, chatID, sender, content string) models.MessageView {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), SendInput{ChatID: chatID, SenderID: f.ids[sender], Content: content})
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestConcurrentCreateDirectChatYieldsOneChat(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.ids["alice"], f.ids["bob"]
			if i%2 == 1 {
				a, b = b, a
			}
			view, _, err := f.svc.CreateDirectChat(context.Background(), a, b)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- view.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("two chats for one pair: %s, %s", first, id)
		}
	}
	chats, total, _ := f.svc.ListChats(context.Background(), f.ids["alice"], 1, 20)
	if total != 1 || len(chats[0].Participants) != 2 {
		t.Fatalf("expected one chat with two participants, got %d", total)
	}
	if n := f.events.count("new_chat_created"); n != 20 {
		t.Fatalf("peer notified %d times, want once per call", n)
	}
}

func TestCreateDirectChatAlwaysNotifiesPeer(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	ctx := context.Background()

	chat, created, err := f.svc.CreateDirectChat(ctx, f.ids["alice"], f.ids["bob"])
	if err != nil || !created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	opened, _ := f.events.last("new_chat_created")
	if opened.userID != f.ids["bob"] || opened.chat.ID != chat.ID {
		t.Fatalf("unexpected notification %+v", opened)
	}

	again, created, err := f.svc.CreateDirectChat(ctx, f.ids["bob"], f.ids["alice"])
	if err != nil || created || again.ID != chat.ID {
		t.Fatalf("expected existing chat, got id=%s created=%v err=%v", again.ID, created, err)
	}
	opened, _ = f.events.last("new_chat_created")
	if opened.userID != f.ids["alice"] || opened.chat.ID != chat.ID {
		t.Fatalf("existing chat not announced to alice: %+v", opened)
	}
	if n := f.events.count("new_chat_created"); n != 2 {
		t.Fatalf("new_chat_created sent %d times", n)
	}
}

func TestSendMessageUpdatesLastMessageAndBroadcasts(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	f.events.online[f.ids["bob"]] = true

	chat := f.direct(t, "alice", "bob")
	if len(chat.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(chat.Participants))
	}
	f.send(t, chat.ID, "alice", "hello")

	ev, ok := f.events.last("new_message")
	if !ok || ev.chatID != chat.ID || ev.msg.Content != "hello" || ev.msg.Sender.FullName != "alice" {
		t.Fatalf("unexpected broadcast %+v", ev)
	}
	got, err := f.svc.GetChat(context.Background(), chat.ID, f.ids["bob"], 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessage == nil || got.LastMessage.Content != "hello" || got.TotalMessages != 1 {
		t.Fatalf("unexpected chat %+v", got)
	}
}

func TestUnconnectedUserCannotCreateChat(t *testing.T) {
	f := newFixture(t, "alice", "carol")
	_, _, err := f.svc.CreateDirectChat(context.Background(), f.ids["carol"], f.ids["alice"])
	if !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if ids, _ := f.store.ActiveChatIDs(context.Background(), f.ids["alice"]); len(ids) != 0 {
		t.Fatal("chat was created")
	}
}

func TestCreateDirectChatValidation(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()
	if _, _, err := f.svc.CreateDirectChat(ctx, f.ids["alice"], ""); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("empty participant: %v", err)
	}
	if _, _, err := f.svc.CreateDirectChat(ctx, f.ids["alice"], f.ids["alice"]); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("self chat: %v", err)
	}
	if _, _, err := f.svc.CreateDirectChat(ctx, f.ids["alice"], "nobody"); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestNonParticipantIsForbiddenAndStoreUntouched(t *testing.T) {
	f := newFixture(t, "alice", "bob", "mallory")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	f.send(t, chat.ID, "alice", "hello")
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, SendInput{ChatID: chat.ID, SenderID: f.ids["mallory"], Content: "hi"})
	if !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("send: expected forbidden, got %v", err)
	}
	if _, err := f.svc.MarkAsRead(ctx, chat.ID, f.ids["mallory"], nil); !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("mark: expected forbidden, got %v", err)
	}
	if _, err := f.svc.GetChat(ctx, chat.ID, f.ids["mallory"], 0); !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("get: expected forbidden, got %v", err)
	}
	if err := f.svc.LeaveOrDeleteChat(ctx, chat.ID, f.ids["mallory"]); !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("leave: expected forbidden, got %v", err)
	}

	stored, _ := f.store.GetChat(ctx, chat.ID)
	if len(stored.Messages) != 1 || len(stored.Messages[0].ReadBy) != 0 || !stored.IsActive {
		t.Fatal("store modified by a non-participant")
	}
}

func TestMarkAsReadIdempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	f.send(t, chat.ID, "alice", "one")
	f.send(t, chat.ID, "alice", "two")
	ctx := context.Background()

	changed, err := f.svc.MarkAsRead(ctx, chat.ID, f.ids["bob"], nil)
	if err != nil || !changed {
		t.Fatalf("first mark: changed=%v err=%v", changed, err)
	}
	once, _ := f.store.GetChat(ctx, chat.ID)

	changed, err = f.svc.MarkAsRead(ctx, chat.ID, f.ids["bob"], nil)
	if err != nil || changed {
		t.Fatalf("second mark: changed=%v err=%v", changed, err)
	}
	twice, _ := f.store.GetChat(ctx, chat.ID)
	for i := range once.Messages {
		if len(once.Messages[i].ReadBy) != len(twice.Messages[i].ReadBy) {
			t.Fatal("second mark changed readBy")
		}
	}
	if n := f.events.count("messages_read"); n != 1 {
		t.Fatalf("messages_read broadcast %d times", n)
	}
}

func TestOfflineRecipientCatchesUp(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	ctx := context.Background()

	// bob has no live session, so a notification replaces the live event.
	msg := f.send(t, chat.ID, "alice", "while you were away")
	select {
	case n := <-f.notifier.sent:
		if n.RecipientID != f.ids["bob"] || n.MessageID != msg.ID {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no offline notification")
	}

	list, _, _ := f.svc.ListChats(ctx, f.ids["bob"], 1, 20)
	if len(list) != 1 || list[0].UnreadCount != 1 {
		t.Fatalf("expected 1 unread, got %+v", list)
	}

	got, err := f.svc.GetChat(ctx, chat.ID, f.ids["bob"], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "while you were away" {
		t.Fatalf("message missing after reconnect: %+v", got.Messages)
	}
	if _, err := f.svc.MarkAsRead(ctx, chat.ID, f.ids["bob"], nil); err != nil {
		t.Fatal(err)
	}
	list, _, _ = f.svc.ListChats(ctx, f.ids["bob"], 1, 20)
	if list[0].UnreadCount != 0 {
		t.Fatalf("unread count = %d after reading", list[0].UnreadCount)
	}
}

func TestGetChatReturnsTailWindow(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	for _, c := range []string{"one", "two", "three"} {
		f.send(t, chat.ID, "alice", c)
	}

	got, err := f.svc.GetChat(context.Background(), chat.ID, f.ids["bob"], 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "two" || got.TotalMessages != 3 {
		t.Fatalf("unexpected window %+v", got.Messages)
	}
	if got.UnreadCount != 0 {
		t.Fatalf("get chat did not mark read: %d", got.UnreadCount)
	}
}

func TestLeaveDirectChatHidesIt(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	ctx := context.Background()

	if err := f.svc.LeaveOrDeleteChat(ctx, chat.ID, f.ids["alice"]); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.events.last("user_left_chat"); !ok {
		t.Fatal("no leave event")
	}
	if _, err := f.svc.GetChat(ctx, chat.ID, f.ids["bob"], 0); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	again, created, err := f.svc.CreateDirectChat(ctx, f.ids["bob"], f.ids["alice"])
	if err != nil || !created || again.ID != chat.ID {
		t.Fatalf("expected reopened chat, got id=%s created=%v err=%v", again.ID, created, err)
	}
}

func TestCreateGroupChat(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.connect("alice", "bob")
	f.connect("alice", "carol")
	ctx := context.Background()

	view, err := f.svc.CreateGroupChat(ctx, GroupInput{
		CreatorID: f.ids["alice"], Name: "Class of 2015",
		MemberIDs: []string{f.ids["bob"], f.ids["carol"]},
	})
	if err != nil {
		t.Fatal(err)
	}
	if view.ChatType != models.ChatTypeGroup || len(view.Participants) != 3 {
		t.Fatalf("unexpected group %+v", view)
	}
	if n := f.events.count("new_chat_created"); n != 2 {
		t.Fatalf("members notified %d times", n)
	}

	_, err = f.svc.CreateGroupChat(ctx, GroupInput{
		CreatorID: f.ids["alice"], Name: "Strangers",
		MemberIDs: []string{f.ids["bob"], f.ids["dave"]},
	})
	if !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("expected forbidden for unconnected member, got %v", err)
	}
}

func TestEditAndDeleteBroadcastUpdates(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	msg := f.send(t, chat.ID, "alice", "helo")
	ctx := context.Background()

	if _, err := f.svc.EditMessage(ctx, chat.ID, msg.ID, f.ids["bob"], "nope"); !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	edited, err := f.svc.EditMessage(ctx, chat.ID, msg.ID, f.ids["alice"], "hello")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Content != "hello" || edited.EditedAt == nil {
		t.Fatalf("unexpected edit %+v", edited)
	}
	deleted, err := f.svc.DeleteMessage(ctx, chat.ID, msg.ID, f.ids["alice"])
	if err != nil {
		t.Fatal(err)
	}
	if !deleted.IsDeleted || deleted.Content != "" {
		t.Fatalf("deleted message leaks content: %+v", deleted)
	}
	if n := f.events.count("message_updated"); n != 2 {
		t.Fatalf("message_updated broadcast %d times", n)
	}
}

func TestEditAndDeleteRequireParticipant(t *testing.T) {
	f := newFixture(t, "alice", "bob", "mallory")
	f.connect("alice", "bob")
	chat := f.direct(t, "alice", "bob")
	msg := f.send(t, chat.ID, "alice", "hello")
	ctx := context.Background()

	if _, err := f.svc.EditMessage(ctx, chat.ID, msg.ID, f.ids["mallory"], "mine now"); !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("expected forbidden edit, got %v", err)
	}
	if _, err := f.svc.DeleteMessage(ctx, chat.ID, msg.ID, f.ids["mallory"]); !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if _, err := f.svc.DeleteMessage(ctx, "missing", msg.ID, f.ids["alice"]); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := f.events.count("message_updated"); n != 0 {
		t.Fatalf("message_updated broadcast %d times", n)
	}

	stored, err := f.store.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if m := stored.Messages[0]; m.Content != "hello" || m.IsDeleted {
		t.Fatalf("store changed by an outsider: %+v", m)
	}
}
