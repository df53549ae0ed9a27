// Package policy decides what to do about a detected intervention trigger.
package policy

import (
	"github.com/avdeev/takeover/internal/domain"
)

// Action is the policy's verdict for one visitor turn.
type Action int

const (
	// ActionNone: no trigger worth anything.
	ActionNone Action = iota
	// ActionSuggestSwitch: ask the visitor whether they'd like a human,
	// without forcing it.
	ActionSuggestSwitch
	// ActionNotifyOnly: alert the operator but leave the AI answering.
	ActionNotifyOnly
	// ActionAutoEscalate: flip the session live without visitor action.
	ActionAutoEscalate
)

func (a Action) String() string {
	switch a {
	case ActionSuggestSwitch:
		return "suggest_switch"
	case ActionNotifyOnly:
		return "notify_only"
	case ActionAutoEscalate:
		return "auto_escalate"
	default:
		return "none"
	}
}

const (
	// engagementFloor: any conversation this long earns a human regardless
	// of trigger content.
	engagementFloor = 7

	// recruiterEscalateTurn: a declared recruiter still talking at this
	// depth auto-escalates.
	recruiterEscalateTurn = 3

	// deepTechnicalEscalateTurn: sustained technical conversation at this
	// depth auto-escalates.
	deepTechnicalEscalateTurn = 5

	// suggestWindowLow opens the softer suggest-a-switch window: from this
	// turn until the engagement floor forces the issue, the client offers
	// the visitor a human instead of escalating behind their back.
	suggestWindowLow = 5
)

// Context carries the conversation shape one decision needs. Callers supply
// it freshly on every visitor turn; the policy keeps no state.
type Context struct {
	TurnIndex         int
	RecruiterDeclared bool
}

// Decide maps a trigger plus conversation shape to an action. It is pure and
// idempotent: same inputs, same decision. The caller owns the "escalate at
// most once" side-effect discipline — the policy will happily keep returning
// ActionAutoEscalate for an already-live session.
//
// Auto-escalate conditions are checked first; the suggest window is the
// softer precursor state reachable only when no auto-escalate rule fired.
func Decide(trigger domain.Trigger, ctx Context) Action {
	switch trigger {
	case domain.TriggerAvailability, domain.TriggerSalary, domain.TriggerResumeRequest,
		domain.TriggerContactRequest, domain.TriggerHighInterest:
		return ActionAutoEscalate
	}
	if ctx.RecruiterDeclared && ctx.TurnIndex >= recruiterEscalateTurn {
		return ActionAutoEscalate
	}
	if ctx.TurnIndex >= engagementFloor {
		return ActionAutoEscalate
	}
	if trigger == domain.TriggerDeepTechnical && ctx.TurnIndex >= deepTechnicalEscalateTurn {
		return ActionAutoEscalate
	}

	if ctx.TurnIndex >= suggestWindowLow {
		return ActionSuggestSwitch
	}

	if !trigger.IsNone() {
		return ActionNotifyOnly
	}
	return ActionNone
}
