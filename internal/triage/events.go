package triage

import (
	"context"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
)

// EventType identifies router events delivered to observers.
type EventType string

const (
	EventTurnAppended EventType = "turn_appended"
	EventStateChanged EventType = "state_changed"
	EventNotification EventType = "notification"
	EventHandoff      EventType = "handoff"
	EventCleared      EventType = "cleared"
)

// Event is a change observers can project into a UI.
type Event struct {
	Type         EventType
	Turn         *conversation.Turn
	State        State
	Outcome      Outcome
	Affordance   Affordance
	Notification *Notification
	Draft        *complaint.Draft
}

// Notification is a transient, toast-style message raised once per failure.
type Notification struct {
	Kind      analysis.Kind `json:"kind"`
	Message   string        `json:"message"`
	Retryable bool          `json:"retryable"`
}

// Notifier receives notifications alongside the error turn.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
