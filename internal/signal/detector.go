package signal

import (
	"strings"

	"github.com/avdeev/takeover/internal/domain"
)

const (
	// recruiterTurnCeiling: the recruiter rule only fires early in a
	// conversation. A recruiter introduces themselves up front; the same
	// words at turn twelve are conversation, not a signal.
	recruiterTurnCeiling = 2

	// deepTechnicalMinTurn and deepTechnicalWindow gate the deep-technical
	// rule: at least two of the last deepTechnicalWindow turns must contain
	// technical terms and the conversation must have some depth already.
	deepTechnicalMinTurn = 4
	deepTechnicalWindow  = 5
)

// Context carries the conversation shape a single classification needs.
// Callers supply it freshly each turn; the detector keeps no state.
type Context struct {
	// DeclaredContext is the visitor's free-text self-description, if any.
	DeclaredContext string
	// TurnIndex is the zero-based index of this visitor turn.
	TurnIndex int
	// RecentMessages holds the most recent visitor messages, oldest first,
	// not including the current one.
	RecentMessages []string
}

// Detect classifies a visitor utterance into exactly one intervention
// trigger, or TriggerNone. Rule groups are evaluated in fixed priority order;
// the first match wins even when several categories match.
func Detect(message string, ctx Context) domain.Trigger {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return domain.TriggerNone
	}

	if ctx.TurnIndex <= recruiterTurnCeiling && matchAny(text, recruiterPhrases) {
		return domain.TriggerRecruiter
	}
	if matchAny(text, availabilityPhrases) {
		return domain.TriggerAvailability
	}
	if matchAny(text, salaryPhrases) {
		return domain.TriggerSalary
	}
	if matchAny(text, resumePhrases) {
		return domain.TriggerResumeRequest
	}
	if matchAny(text, contactPhrases) {
		return domain.TriggerContactRequest
	}
	if matchAny(text, highInterestPhrases) {
		return domain.TriggerHighInterest
	}
	if ctx.TurnIndex >= deepTechnicalMinTurn && matchAny(text, technicalPhrases) && technicalDepth(ctx.RecentMessages) >= 2 {
		return domain.TriggerDeepTechnical
	}

	return domain.TriggerNone
}

// RecruiterDeclared reports whether the visitor's declared context reads as a
// recruiter introduction. The policy consumes this as an explicit flag rather
// than re-matching the free-text field at each call site.
func RecruiterDeclared(declaredContext string) bool {
	text := strings.ToLower(strings.TrimSpace(declaredContext))
	if text == "" {
		return false
	}
	return matchAny(text, recruiterPhrases) || matchAny(text, hiringIntentPhrases)
}

// technicalDepth counts how many of the last deepTechnicalWindow messages
// contain at least one technical term.
func technicalDepth(recent []string) int {
	if len(recent) > deepTechnicalWindow {
		recent = recent[len(recent)-deepTechnicalWindow:]
	}
	n := 0
	for _, m := range recent {
		if matchAny(strings.ToLower(m), technicalPhrases) {
			n++
		}
	}
	return n
}
