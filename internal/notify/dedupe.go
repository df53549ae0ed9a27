// Package notify formats and delivers best-effort operator alerts.
package notify

import (
	"sync"

	"github.com/avdeev/takeover/internal/domain"
)

// Deduper bounds notification spam per session. The contract is "at most once
// per trigger class per client session", not globally exactly-once: state is
// process-lifetime, and Forget releases a session when its client goes away
// so a page reload starts a fresh budget.
type Deduper interface {
	// ClaimFirstQuestion returns true exactly once per session.
	ClaimFirstQuestion(sessionID string) bool
	// ClaimTrigger returns true when this trigger class differs from the
	// last one sent for the session.
	ClaimTrigger(sessionID string, t domain.Trigger) bool
	// ClaimHotLead returns true exactly once per session.
	ClaimHotLead(sessionID string) bool
	// Forget drops all dedupe state for a session.
	Forget(sessionID string)
}

type dedupeRecord struct {
	notifiedFirstTurn bool
	lastTriggerSent   domain.Trigger
	notifiedHotLead   bool
}

// MemoryDeduper is the in-memory Deduper used in production. Swap it for a
// persistent implementation if exactly-once across restarts ever matters.
type MemoryDeduper struct {
	mu      sync.Mutex
	records map[string]*dedupeRecord
}

// NewMemoryDeduper creates an empty process-lifetime deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{records: make(map[string]*dedupeRecord)}
}

func (d *MemoryDeduper) record(sessionID string) *dedupeRecord {
	rec, ok := d.records[sessionID]
	if !ok {
		rec = &dedupeRecord{}
		d.records[sessionID] = rec
	}
	return rec
}

// ClaimFirstQuestion returns true exactly once per session.
func (d *MemoryDeduper) ClaimFirstQuestion(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.record(sessionID)
	if rec.notifiedFirstTurn {
		return false
	}
	rec.notifiedFirstTurn = true
	return true
}

// ClaimTrigger suppresses re-sending the trigger class most recently sent for
// this session. A different class resets the suppression.
func (d *MemoryDeduper) ClaimTrigger(sessionID string, t domain.Trigger) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.record(sessionID)
	if rec.lastTriggerSent == t {
		return false
	}
	rec.lastTriggerSent = t
	return true
}

// ClaimHotLead returns true exactly once per session.
func (d *MemoryDeduper) ClaimHotLead(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec := d.record(sessionID)
	if rec.notifiedHotLead {
		return false
	}
	rec.notifiedHotLead = true
	return true
}

// Forget drops all dedupe state for a session.
func (d *MemoryDeduper) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, sessionID)
}
