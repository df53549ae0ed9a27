package store

import (
	"sync"
	"time"

	"github.com/avdeev/takeover/internal/domain"
)

// typingTable holds short-TTL advisory typing state in memory. Entries expire
// on their own; expiry publishes a final "not typing" event so visitors never
// see a stuck indicator.
type typingTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	expiry  map[string]time.Time
	timers  map[string]*time.Timer
	publish func(domain.TypingState)
}

func newTypingTable(ttl time.Duration, publish func(domain.TypingState)) *typingTable {
	return &typingTable{
		ttl:     ttl,
		expiry:  make(map[string]time.Time),
		timers:  make(map[string]*time.Timer),
		publish: publish,
	}
}

func (t *typingTable) set(sessionID string, isTyping bool) {
	t.mu.Lock()
	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
		delete(t.timers, sessionID)
	}
	if isTyping {
		t.expiry[sessionID] = time.Now().Add(t.ttl)
		t.timers[sessionID] = time.AfterFunc(t.ttl, func() { t.expire(sessionID) })
	} else {
		delete(t.expiry, sessionID)
	}
	t.mu.Unlock()

	t.publish(domain.TypingState{SessionID: sessionID, IsTyping: isTyping})
}

func (t *typingTable) get(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp, ok := t.expiry[sessionID]
	return ok && time.Now().Before(exp)
}

func (t *typingTable) expire(sessionID string) {
	t.mu.Lock()
	exp, ok := t.expiry[sessionID]
	if !ok || time.Now().Before(exp) {
		t.mu.Unlock()
		return
	}
	delete(t.expiry, sessionID)
	delete(t.timers, sessionID)
	t.mu.Unlock()

	t.publish(domain.TypingState{SessionID: sessionID, IsTyping: false})
}

func (t *typingTable) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
