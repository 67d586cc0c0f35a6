package protocol

import (
	"errors"
	"net/url"
	"testing"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

func TestParseClientMessageSend(t *testing.T) {
	raw := []byte(`{"type":"client_send","session_id":"s1","text":"is this phishing?","attachment":{"filename":"a.png","content_type":"image/png","data_base64":"AQID"}}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	send, ok := msg.(ClientSend)
	if !ok {
		t.Fatalf("message type = %T, want ClientSend", msg)
	}
	att, err := send.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if att == nil || att.Filename != "a.png" || len(att.Data) != 3 {
		t.Fatalf("attachment = %+v", att)
	}
}

func TestParseClientMessageRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `nope`},
		{name: "send without session", raw: `{"type":"client_send","text":"hi"}`},
		{name: "empty send", raw: `{"type":"client_send","session_id":"s1","text":"  "}`},
		{name: "control without action", raw: `{"type":"client_control","session_id":"s1"}`},
		{name: "unknown action", raw: `{"type":"client_control","session_id":"s1","action":"stop"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("ParseClientMessage(%s) expected error", tc.raw)
			}
		})
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"s1","action":"start_complaint"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionStartComplaint {
		t.Fatalf("Action = %q", control.Action)
	}
}

func TestFromEvent(t *testing.T) {
	turn := conversation.Turn{ID: "t1", Role: conversation.RoleAssistant, Intent: conversation.IntentAnalyzeThreat}
	draft := complaint.Draft{TurnID: "t4", Params: url.Values{"title": {"Phishing"}}, URL: "/form?title=Phishing"}

	cases := []struct {
		ev   triage.Event
		want MessageType
	}{
		{ev: triage.Event{Type: triage.EventTurnAppended, Turn: &turn}, want: TypeTurnAppended},
		{ev: triage.Event{Type: triage.EventStateChanged, State: triage.StateIdle}, want: TypeStateChanged},
		{ev: triage.Event{Type: triage.EventNotification, Notification: &triage.Notification{Message: "x"}}, want: TypeNotification},
		{ev: triage.Event{Type: triage.EventHandoff, Draft: &draft}, want: TypeHandoff},
		{ev: triage.Event{Type: triage.EventCleared}, want: TypeCleared},
	}
	for _, tc := range cases {
		msg, ok := FromEvent("s1", tc.ev)
		if !ok {
			t.Fatalf("FromEvent(%s) not converted", tc.ev.Type)
		}
		got, ok := TypeOf(msg)
		if !ok || got != tc.want {
			t.Fatalf("TypeOf(FromEvent(%s)) = %q, want %q", tc.ev.Type, got, tc.want)
		}
	}

	if _, ok := FromEvent("s1", triage.Event{Type: triage.EventTurnAppended}); ok {
		t.Fatalf("turn event without turn should not convert")
	}
}
