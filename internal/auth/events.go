package auth

import (
	"context"
	"time"
)

// EventType names an auth lifecycle event.
type EventType string

// Auth event types.
const (
	EventRegistered      EventType = "registered"
	EventUserCreated     EventType = "user_created"
	EventLoginSucceeded  EventType = "login_succeeded"
	EventLoginFailed     EventType = "login_failed"
	EventRefreshed       EventType = "refreshed"
	EventRefreshRejected EventType = "refresh_rejected"
	EventLoggedOut       EventType = "logged_out"
	EventPasswordChanged EventType = "password_changed"
)

// Outcome values for Event.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event describes one auth lifecycle occurrence. It never carries
// passwords or token values.
type Event struct {
	Type    EventType `json:"type"`
	Outcome string    `json:"outcome"`
	UserID  string    `json:"userId,omitempty"`
	Email   string    `json:"email,omitempty"`
	Role    Role      `json:"role,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// EventSink receives auth events. Implementations must not block the caller
// for long and must not fail the originating request.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// nopSink discards events.
type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}
