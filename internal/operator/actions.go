// Package operator implements the operator-side session state machine. The
// admin console and the chat-ops command channel are two front-ends over
// exactly these actions, so their store effects cannot drift apart.
package operator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/store"
)

// Greeting is the system-authored operator message appended on an explicit
// join. Free-text replies auto-join silently without it.
const Greeting = "👋 Hi — you're now chatting with a real human. The AI is off; ask me anything."

// Actions mutates session state on behalf of the operator.
type Actions struct {
	store store.Store
}

// NewActions creates the operator action set over a store.
func NewActions(s store.Store) *Actions {
	return &Actions{store: s}
}

// Join flips the session live and appends the greeting. Re-delivery is safe:
// setting is_live to its current value is a no-op effect-wise, though the
// greeting will repeat (at-least-once delivery, accepted).
func (a *Actions) Join(ctx context.Context, sessionID string) error {
	if err := a.store.SetLive(ctx, sessionID, true); err != nil {
		return fmt.Errorf("join session: %w", err)
	}
	if _, err := a.store.AppendMessage(ctx, sessionID, domain.RoleOperator, Greeting); err != nil {
		// The session is live; a missing greeting is cosmetic.
		slog.Warn("failed to append join greeting", "session_id", sessionID, "error", err)
	}
	slog.Info("operator joined session", "session_id", sessionID)
	return nil
}

// Leave hands the session back to the AI.
func (a *Actions) Leave(ctx context.Context, sessionID string) error {
	if err := a.store.SetLive(ctx, sessionID, false); err != nil {
		return fmt.Errorf("leave session: %w", err)
	}
	a.store.SetTyping(sessionID, false)
	slog.Info("operator left session", "session_id", sessionID)
	return nil
}

// Say re-asserts live mode (auto-join on send, without the greeting) and
// appends the operator message.
func (a *Actions) Say(ctx context.Context, sessionID, content string) error {
	if err := a.store.SetLive(ctx, sessionID, true); err != nil {
		return fmt.Errorf("auto-join on send: %w", err)
	}
	if _, err := a.store.AppendMessage(ctx, sessionID, domain.RoleOperator, content); err != nil {
		return fmt.Errorf("append operator message: %w", err)
	}
	a.store.SetTyping(sessionID, false)
	return nil
}

// Typing records advisory operator-typing state.
func (a *Actions) Typing(sessionID string, isTyping bool) {
	a.store.SetTyping(sessionID, isTyping)
}
