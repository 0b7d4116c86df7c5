// Package queue defines the auth events exchanged over the message broker,
// the publisher used by the identity service and the audit consumer.
package queue

import "time"

// AuthEventsQueue is the durable queue every auth event is routed to.
const AuthEventsQueue = "auth.events"

// Event types.
const (
    EventUserRegistered       = "user.registered"
    EventSessionStarted       = "session.started"
    EventSessionRevoked       = "session.revoked"
    EventAccountStatusChanged = "account.status_changed"
)

// AuthEvent is published after a state change in the credential store.  It
// never carries passwords or token material.
type AuthEvent struct {
    Type       string `json:"type"`
    UserID     string `json:"user_id"`
    Email      string `json:"email,omitempty"`
    Role       string `json:"role,omitempty"`
    Channel    string `json:"channel,omitempty"` // "self-service" | "employee" for session.started
    Active     *bool  `json:"active,omitempty"`  // account.status_changed only
    ActorID    string `json:"actor_id,omitempty"`
    OccurredAt string `json:"occurred_at"` // RFC 3339, UTC
}

// NewEvent stamps an event of the given type with the current time.
func NewEvent(typ, userID string, at time.Time) AuthEvent {
    return AuthEvent{Type: typ, UserID: userID, OccurredAt: at.UTC().Format(time.RFC3339)}
}
