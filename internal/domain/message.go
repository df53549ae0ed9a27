package domain

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleVisitor  Role = "visitor"
	RoleAI       Role = "ai"
	RoleOperator Role = "operator"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleVisitor, RoleAI, RoleOperator:
		return true
	}
	return false
}

// Message is one entry in a session's append-only message log. Seq is
// store-assigned and monotonically increasing per session; total order within
// a session is Seq ascending. Messages are never edited or deleted —
// corrections are new messages.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
