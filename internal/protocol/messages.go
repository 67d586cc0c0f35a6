package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientSend    MessageType = "client_send"
	TypeClientControl MessageType = "client_control"
	TypeSnapshot      MessageType = "snapshot"
	TypeTurnAppended  MessageType = "turn_appended"
	TypeStateChanged  MessageType = "state_changed"
	TypeNotification  MessageType = "notification"
	TypeHandoff       MessageType = "handoff"
	TypeCleared       MessageType = "cleared"
	TypeErrorEvent    MessageType = "error_event"
)

// Control actions accepted in client_control.
const (
	ActionStartComplaint = "start_complaint"
	ActionProceed        = "proceed"
	ActionResume         = "resume"
	ActionNewChat        = "new_chat"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAttachment is an inline upload carried by client_send.
type ClientAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
}

type ClientSend struct {
	Type       MessageType       `json:"type"`
	SessionID  string            `json:"session_id"`
	Text       string            `json:"text"`
	Attachment *ClientAttachment `json:"attachment,omitempty"`
}

// Decode returns the attachment bytes, or nil when none was sent.
func (m ClientSend) Decode() (*conversation.Attachment, error) {
	if m.Attachment == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(m.Attachment.DataBase64)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return &conversation.Attachment{
		Filename:    m.Attachment.Filename,
		ContentType: m.Attachment.ContentType,
		Data:        data,
	}, nil
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type Snapshot struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	Snapshot  triage.Snapshot `json:"snapshot"`
}

type TurnAppended struct {
	Type       MessageType       `json:"type"`
	SessionID  string            `json:"session_id"`
	Turn       conversation.Turn `json:"turn"`
	State      triage.State      `json:"state"`
	Affordance triage.Affordance `json:"affordance"`
}

type StateChanged struct {
	Type       MessageType       `json:"type"`
	SessionID  string            `json:"session_id"`
	State      triage.State      `json:"state"`
	Outcome    triage.Outcome    `json:"outcome,omitempty"`
	Affordance triage.Affordance `json:"affordance"`
}

type Notification struct {
	Type         MessageType         `json:"type"`
	SessionID    string              `json:"session_id"`
	Notification triage.Notification `json:"notification"`
}

type Handoff struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Params    url.Values  `json:"params"`
	URL       string      `json:"url,omitempty"`
}

type Cleared struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientSend:
		var msg ClientSend
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_send")
		}
		if strings.TrimSpace(msg.Text) == "" && msg.Attachment == nil {
			return nil, errors.New("invalid client_send: text or attachment required")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionStartComplaint, ActionProceed, ActionResume, ActionNewChat:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// FromEvent converts a router event to its websocket message.
func FromEvent(sessionID string, ev triage.Event) (any, bool) {
	switch ev.Type {
	case triage.EventTurnAppended:
		if ev.Turn == nil {
			return nil, false
		}
		return TurnAppended{
			Type:       TypeTurnAppended,
			SessionID:  sessionID,
			Turn:       *ev.Turn,
			State:      ev.State,
			Affordance: ev.Affordance,
		}, true
	case triage.EventStateChanged:
		return StateChanged{
			Type:       TypeStateChanged,
			SessionID:  sessionID,
			State:      ev.State,
			Outcome:    ev.Outcome,
			Affordance: ev.Affordance,
		}, true
	case triage.EventNotification:
		if ev.Notification == nil {
			return nil, false
		}
		return Notification{Type: TypeNotification, SessionID: sessionID, Notification: *ev.Notification}, true
	case triage.EventHandoff:
		if ev.Draft == nil {
			return nil, false
		}
		return Handoff{
			Type:      TypeHandoff,
			SessionID: sessionID,
			TurnID:    ev.Draft.TurnID,
			Params:    ev.Draft.Params,
			URL:       ev.Draft.URL,
		}, true
	case triage.EventCleared:
		return Cleared{Type: TypeCleared, SessionID: sessionID}, true
	default:
		return nil, false
	}
}

// TypeOf reports the message type of a websocket payload.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientSend:
		return m.Type, true
	case ClientControl:
		return m.Type, true
	case Snapshot:
		return m.Type, true
	case TurnAppended:
		return m.Type, true
	case StateChanged:
		return m.Type, true
	case Notification:
		return m.Type, true
	case Handoff:
		return m.Type, true
	case Cleared:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
