// Package domain contains core domain types for the takeover engine.
package domain

import (
	"time"
)

// Session represents one visitor's continuous interaction with the chat
// widget, keyed by a client-generated id.
type Session struct {
	SessionID        string     `json:"session_id"`
	IsLive           bool       `json:"is_live"`
	OperatorJoinedAt *time.Time `json:"operator_joined_at,omitempty"`
	DeclaredContext  string     `json:"declared_context,omitempty"`
	LastActivity     time.Time  `json:"last_activity"`
	CreatedAt        time.Time  `json:"created_at"`
}

// LiveState is the answer to "who answers next" for a session. IsLive is the
// single source of truth: exactly one of {AI, operator} is authoritative at a
// time, last write wins.
type LiveState struct {
	IsLive           bool       `json:"is_live"`
	OperatorJoinedAt *time.Time `json:"operator_joined_at,omitempty"`
}

// SessionInfo is a session row enriched with aggregates for the admin
// console's session list.
type SessionInfo struct {
	Session
	MessageCount int `json:"message_count"`
}

// IdleFor reports how long the session has been without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// TypingState is advisory operator-typing state shown to the visitor. It is
// short-lived and never blocks message delivery.
type TypingState struct {
	SessionID string `json:"session_id"`
	IsTyping  bool   `json:"is_typing"`
}
