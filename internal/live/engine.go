// Package live drives visitor sessions: the per-turn escalation pipeline and
// the WebSocket hook that streams session changes to the visitor's client.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/avdeev/takeover/internal/ai"
	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/notify"
	"github.com/avdeev/takeover/internal/policy"
	"github.com/avdeev/takeover/internal/signal"
	"github.com/avdeev/takeover/internal/store"
	"github.com/avdeev/takeover/internal/telemetry"
)

// Notifier is what the engine needs from the notification dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, kind notify.Kind, sessionID string, p notify.Payload) bool
}

// Engine runs the handoff pipeline for one visitor turn: classify, decide,
// escalate, notify, and answer. It is stateless between turns; callers supply
// the turn index and declared context freshly each time.
type Engine struct {
	store      store.Store
	dispatcher Notifier
	responder  ai.Responder
	metrics    *telemetry.Metrics
}

// NewEngine wires the pipeline.
func NewEngine(s store.Store, d Notifier, r ai.Responder, m *telemetry.Metrics) *Engine {
	return &Engine{store: s, dispatcher: d, responder: r, metrics: m}
}

// TurnResult summarizes what one visitor turn caused.
type TurnResult struct {
	Trigger domain.Trigger
	Action  policy.Action
	// Escalated is true when this turn flipped the session live.
	Escalated bool
	// Suggest asks the client to offer a channel switch to the visitor.
	Suggest bool
	// Live reports the session was already operator-controlled; the message
	// was appended for the operator and nothing else ran.
	Live bool
	// AIReply is the assistant's answer when the AI path ran. Appended is
	// false when the store rejected it and the caller must deliver the text
	// itself.
	AIReply  string
	Appended bool
	// AIErr is the one failure class that may surface to the visitor.
	AIErr error
}

// VisitorTurn processes one visitor message. turnIndex is the zero-based
// count of visitor turns in this client session.
//
// Store failures never abort the turn: a dropped append is logged and the
// flow continues, because the engine's own failures must stay invisible to
// the visitor.
func (e *Engine) VisitorTurn(ctx context.Context, sessionID, content string, turnIndex int, declaredContext string) TurnResult {
	e.metrics.Add(ctx, e.metrics.VisitorTurns)

	liveState, err := e.store.GetLive(ctx, sessionID)
	if err != nil {
		// Safe default: treat as not live, keep the AI answering.
		slog.Warn("live read failed, assuming not live", "session_id", sessionID, "error", err)
		liveState = domain.LiveState{}
	}

	if _, err := e.store.AppendMessage(ctx, sessionID, domain.RoleVisitor, content); err != nil {
		slog.Warn("dropped visitor message write", "session_id", sessionID, "error", err)
	}

	if liveState.IsLive {
		// Operator is authoritative; the append above already routed the
		// message past the AI.
		return TurnResult{Live: true}
	}

	history, err := e.store.Messages(ctx, sessionID, 0)
	if err != nil {
		slog.Warn("history read failed, classifying with current turn only",
			"session_id", sessionID, "error", err)
		history = []domain.Message{{SessionID: sessionID, Role: domain.RoleVisitor, Content: content}}
	}

	trigger := signal.Detect(content, signal.Context{
		DeclaredContext: declaredContext,
		TurnIndex:       turnIndex,
		RecentMessages:  visitorTexts(history, content),
	})
	action := policy.Decide(trigger, policy.Context{
		TurnIndex:         turnIndex,
		RecruiterDeclared: signal.RecruiterDeclared(declaredContext),
	})

	result := TurnResult{Trigger: trigger, Action: action}
	e.notifyForTurn(ctx, sessionID, content, turnIndex, trigger, action, history, &result)

	// The AI answers this turn even when it escalated: promotion is silent
	// and the visitor should not be met with dead air while the operator
	// walks to their keyboard. Further turns route past the AI.
	reply, replyErr := e.responder.Reply(ctx, historyForPrompt(history, content))
	if replyErr != nil {
		slog.Error("AI responder failed", "session_id", sessionID, "error", replyErr)
		result.AIErr = fmt.Errorf("ai responder: %w", replyErr)
	} else {
		result.AIReply = reply
		if _, err := e.store.AppendMessage(ctx, sessionID, domain.RoleAI, reply); err != nil {
			slog.Warn("dropped ai message write, delivering directly",
				"session_id", sessionID, "error", err)
		} else {
			result.Appended = true
		}
	}

	if action == policy.ActionAutoEscalate {
		if err := e.store.SetLive(ctx, sessionID, true); err != nil {
			slog.Error("auto-escalation write failed", "session_id", sessionID, "error", err)
		} else {
			result.Escalated = true
			e.metrics.Add(ctx, e.metrics.Escalations)
		}
	}

	return result
}

// notifyForTurn fires the turn's alerts. All dispatches are fire-and-forget:
// a notification must never delay or break the chat flow.
func (e *Engine) notifyForTurn(ctx context.Context, sessionID, content string, turnIndex int,
	trigger domain.Trigger, action policy.Action, history []domain.Message, result *TurnResult) {

	excerpt := excerptLines(history)
	prediction, predicted := signal.Predict(content)

	if turnIndex == 0 {
		go e.dispatch(notify.KindFirstQuestion, sessionID, notify.Payload{Excerpt: excerpt})
	}

	switch action {
	case policy.ActionAutoEscalate:
		go e.dispatch(notify.KindIntervention, sessionID, notify.Payload{
			Trigger:       trigger,
			AutoEscalated: true,
			Excerpt:       excerpt,
			Prediction:    prediction,
		})
	case policy.ActionNotifyOnly:
		go e.dispatch(notify.KindIntervention, sessionID, notify.Payload{
			Trigger:    trigger,
			Excerpt:    excerpt,
			Prediction: prediction,
		})
	case policy.ActionSuggestSwitch:
		result.Suggest = true
		go e.dispatch(notify.KindIntervention, sessionID, notify.Payload{
			Trigger:    trigger,
			Excerpt:    excerpt,
			Prediction: prediction,
		})
	default:
		// No action, but a predictive signal still earns its informational
		// alert.
		if predicted {
			go e.dispatch(notify.KindIntervention, sessionID, notify.Payload{
				Trigger:    domain.TriggerPredictiveSignal,
				Excerpt:    excerpt,
				Prediction: prediction,
			})
		}
	}

	// The periodic intent pass covers paths with no per-turn detection.
	if (turnIndex+1)%signal.IntentEvery == 0 {
		if intent, hot := signal.AnalyzeIntent(history); hot {
			go e.dispatch(notify.KindHotLead, sessionID, notify.Payload{
				Excerpt:       excerpt,
				IntentSummary: intent.Summary,
			})
		}
	}
}

// dispatch runs outside the request context: an in-flight alert finishing
// after the visitor disconnects is harmless.
func (e *Engine) dispatch(kind notify.Kind, sessionID string, p notify.Payload) {
	e.dispatcher.Dispatch(context.Background(), kind, sessionID, p)
}

// visitorTexts extracts prior visitor messages, oldest first, excluding the
// current turn if it already landed in the log.
func visitorTexts(history []domain.Message, current string) []string {
	var out []string
	for _, m := range history {
		if m.Role == domain.RoleVisitor {
			out = append(out, m.Content)
		}
	}
	if n := len(out); n > 0 && out[n-1] == current {
		out = out[:n-1]
	}
	return out
}

// historyForPrompt ensures the current turn is present even when its append
// was dropped.
func historyForPrompt(history []domain.Message, current string) []domain.Message {
	if n := len(history); n > 0 && history[n-1].Role == domain.RoleVisitor && history[n-1].Content == current {
		return history
	}
	return append(history, domain.Message{Role: domain.RoleVisitor, Content: current})
}

func excerptLines(history []domain.Message) []string {
	var lines []string
	for _, m := range history {
		content := m.Content
		if len(content) > 160 {
			cut := 157
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "..."
		}
		lines = append(lines, string(m.Role)+": "+content)
	}
	return lines
}
