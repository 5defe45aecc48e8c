package websocket

import (
	"testing"

	"alumnichat/server/internal/apperror"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    EventType
		wantErr bool
	}{
		{"authenticate", `{"type":"authenticate","payload":{"token":"abc"}}`, EventAuthenticate, false},
		{"send text", `{"type":"send_message","payload":{"chatId":"c1","content":"hi"}}`, EventSendMessage, false},
		{"send image", `{"type":"send_message","payload":{"chatId":"c1","messageType":"image","fileData":{"fileUrl":"/uploads/images/a.png"}}}`, EventSendMessage, false},
		{"mark all read", `{"type":"mark_as_read","payload":{"chatId":"c1"}}`, EventMarkAsRead, false},
		{"status", `{"type":"update_status","payload":{"status":"away"}}`, EventUpdateStatus, false},
		{"malformed json", `{"type":`, "", true},
		{"unknown type", `{"type":"delete_everything","payload":{}}`, "", true},
		{"missing payload", `{"type":"join_chat"}`, "", true},
		{"missing chat id", `{"type":"typing_start","payload":{}}`, "", true},
		{"bad message type", `{"type":"send_message","payload":{"chatId":"c1","content":"x","messageType":"video"}}`, "", true},
		{"file without url", `{"type":"send_message","payload":{"chatId":"c1","messageType":"file","fileData":{"fileName":"a.pdf"}}}`, "", true},
		{"bad status", `{"type":"update_status","payload":{"status":"invisible"}}`, "", true},
		{"payload of wrong shape", `{"type":"join_chat","payload":[1,2]}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.frame))
			if tt.wantErr {
				if !apperror.Is(err, apperror.KindValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Type() != tt.want {
				t.Fatalf("type = %s, want %s", ev.Type(), tt.want)
			}
		})
	}
}

func TestSendMessageEventFile(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"send_message","payload":{"chatId":"c1","messageType":"file","fileData":{"fileUrl":"/uploads/files/a.pdf","fileName":"a.pdf"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	file := ev.(*SendMessageEvent).File()
	if file.FileURL != "/uploads/files/a.pdf" || file.FileName != "a.pdf" {
		t.Fatalf("unexpected file %+v", file)
	}
}

func TestStateTransitions(t *testing.T) {
	c := &Client{state: StateConnecting}
	if err := c.transition(StateActive); err == nil {
		t.Fatal("connecting -> active should be rejected")
	}
	for _, s := range []State{StateAuthenticating, StateJoined, StateActive, StateIdle, StateActive} {
		if err := c.transition(s); err != nil {
			t.Fatalf("-> %s: %v", s, err)
		}
	}
	if err := c.transition(StateDisconnected); err != nil || c.State() != StateDisconnected {
		t.Fatalf("disconnect: %v, state %s", err, c.State())
	}
}
