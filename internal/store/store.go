// Package store provides the session/message store and its change streams.
package store

import (
	"context"
	"time"

	"github.com/avdeev/takeover/internal/domain"
)

// Store is the arbiter of session and message persistence. All writes are
// independently atomic at the single-field / single-append level; there are
// no transaction boundaries spanning operations.
//
// The is_live flag uses overwrite semantics (last writer wins, no merge).
// Messages are append-only with a store-assigned per-session sequence number.
type Store interface {
	// TouchSession creates the session row if missing and bumps last_activity.
	// A non-empty declaredContext overwrites the stored hint.
	TouchSession(ctx context.Context, sessionID, declaredContext string) error

	// GetSession retrieves a session, or nil if it does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// GetLive reads the liveness flag. Callers treat an error as the safe
	// default: not live.
	GetLive(ctx context.Context, sessionID string) (domain.LiveState, error)

	// SetLive overwrites the liveness flag. Flipping to live stamps
	// operator_joined_at (kept if already set); flipping to not-live clears
	// it. Re-asserting the current value is a no-op effect-wise.
	SetLive(ctx context.Context, sessionID string, live bool) error

	// AppendMessage appends to the session's ordered message log and fans the
	// new message out to all message subscribers, including the writer's own.
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) (domain.Message, error)

	// Messages returns messages with seq > afterSeq in ascending seq order.
	Messages(ctx context.Context, sessionID string, afterSeq int64) ([]domain.Message, error)

	// ListSessions returns recent sessions ordered by last_activity descending.
	// There is no push API for the session list; the admin console polls this.
	ListSessions(ctx context.Context, limit int) ([]domain.SessionInfo, error)

	// ReleaseIdleSessions flips live sessions idle beyond ttl back to not-live
	// and returns how many were released.
	ReleaseIdleSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// SetTyping records advisory operator-typing state. It expires on its own
	// after the configured TTL and never blocks message delivery.
	SetTyping(sessionID string, isTyping bool)

	// Typing reads the current advisory typing state.
	Typing(sessionID string) bool

	// SubscribeMessages streams every append for a session until cancel is
	// called. Slow subscribers may miss events; the channel never blocks a
	// writer.
	SubscribeMessages(sessionID string) (<-chan domain.Message, func())

	// SubscribeLive streams liveness changes for a session.
	SubscribeLive(sessionID string) (<-chan domain.LiveState, func())

	// SubscribeTyping streams advisory typing changes for a session.
	SubscribeTyping(sessionID string) (<-chan domain.TypingState, func())

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}
