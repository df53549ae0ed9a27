package store

import (
	"log/slog"
	"sync"

	"github.com/avdeev/takeover/internal/domain"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events rather than blocking writers.
const subscriberBuffer = 32

// hub fans out store changes to per-session subscribers. It is the in-process
// realization of the change-subscription semantics the engine requires from
// its store: every append is emitted to every subscriber of that session,
// including the one whose client just wrote it.
type hub struct {
	mu         sync.RWMutex
	nextID     int64
	msgSubs    map[string]map[int64]chan domain.Message
	liveSubs   map[string]map[int64]chan domain.LiveState
	typingSubs map[string]map[int64]chan domain.TypingState
}

func newHub() *hub {
	return &hub{
		msgSubs:    make(map[string]map[int64]chan domain.Message),
		liveSubs:   make(map[string]map[int64]chan domain.LiveState),
		typingSubs: make(map[string]map[int64]chan domain.TypingState),
	}
}

func (h *hub) subscribeMessages(sessionID string) (<-chan domain.Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan domain.Message, subscriberBuffer)
	if _, ok := h.msgSubs[sessionID]; !ok {
		h.msgSubs[sessionID] = make(map[int64]chan domain.Message)
	}
	h.msgSubs[sessionID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.msgSubs[sessionID]; ok {
			if _, exists := subs[id]; exists {
				delete(subs, id)
				close(ch)
				if len(subs) == 0 {
					delete(h.msgSubs, sessionID)
				}
			}
		}
	}
	return ch, cancel
}

func (h *hub) subscribeLive(sessionID string) (<-chan domain.LiveState, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan domain.LiveState, subscriberBuffer)
	if _, ok := h.liveSubs[sessionID]; !ok {
		h.liveSubs[sessionID] = make(map[int64]chan domain.LiveState)
	}
	h.liveSubs[sessionID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.liveSubs[sessionID]; ok {
			if _, exists := subs[id]; exists {
				delete(subs, id)
				close(ch)
				if len(subs) == 0 {
					delete(h.liveSubs, sessionID)
				}
			}
		}
	}
	return ch, cancel
}

func (h *hub) subscribeTyping(sessionID string) (<-chan domain.TypingState, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan domain.TypingState, subscriberBuffer)
	if _, ok := h.typingSubs[sessionID]; !ok {
		h.typingSubs[sessionID] = make(map[int64]chan domain.TypingState)
	}
	h.typingSubs[sessionID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.typingSubs[sessionID]; ok {
			if _, exists := subs[id]; exists {
				delete(subs, id)
				close(ch)
				if len(subs) == 0 {
					delete(h.typingSubs, sessionID)
				}
			}
		}
	}
	return ch, cancel
}

func (h *hub) publishMessage(msg domain.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.msgSubs[msg.SessionID] {
		select {
		case ch <- msg:
		default:
			slog.Warn("message subscriber lagging, dropping event",
				"session_id", msg.SessionID, "subscriber", id, "seq", msg.Seq)
		}
	}
}

func (h *hub) publishLive(sessionID string, state domain.LiveState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.liveSubs[sessionID] {
		select {
		case ch <- state:
		default:
			slog.Warn("live subscriber lagging, dropping event",
				"session_id", sessionID, "subscriber", id)
		}
	}
}

func (h *hub) publishTyping(state domain.TypingState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.typingSubs[state.SessionID] {
		select {
		case ch <- state:
		default:
			slog.Warn("typing subscriber lagging, dropping event",
				"session_id", state.SessionID, "subscriber", id)
		}
	}
}
