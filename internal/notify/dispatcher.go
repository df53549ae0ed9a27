package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/telemetry"
	"github.com/google/uuid"
)

// Kind distinguishes the three alert classes the engine sends.
type Kind string

const (
	// KindFirstQuestion fires once per session, informational only.
	KindFirstQuestion Kind = "first_question"
	// KindIntervention fires per unique trigger class per session and may
	// carry the auto-escalated flag.
	KindIntervention Kind = "intervention"
	// KindHotLead fires once per session from the periodic intent
	// classifier (the voice path's only escalation signal).
	KindHotLead Kind = "hot_lead"
)

// Payload carries everything an alert needs rendered.
type Payload struct {
	Trigger       domain.Trigger
	AutoEscalated bool
	// Excerpt holds recent conversation lines, oldest first, already
	// formatted as "role: content".
	Excerpt       []string
	Prediction    string
	IntentSummary string
}

// Dispatcher formats human-readable alerts and pushes them through the
// chat-ops webhook. Delivery is best-effort by contract: a failed push falls
// back to local structured logging and is still reported as success, because
// notification failure must never surface as a chat error.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	dedupe     Deduper
	metrics    *telemetry.Metrics
}

// NewDispatcher creates a dispatcher. An empty webhookURL degrades to
// log-only delivery.
func NewDispatcher(webhookURL string, dedupe Deduper, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		dedupe:     dedupe,
		metrics:    metrics,
	}
}

// Dispatch sends one alert. Returns false only when the dedupe record
// suppressed it; delivery failures are swallowed, logged, and counted, and
// still return true.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, sessionID string, p Payload) bool {
	if !d.claim(kind, sessionID, p.Trigger) {
		slog.Debug("notification suppressed by dedupe",
			"kind", string(kind), "session_id", sessionID, "trigger", string(p.Trigger))
		d.metrics.Add(ctx, d.metrics.NotificationsSup)
		return false
	}

	alert := d.buildAlert(kind, sessionID, p)
	if err := d.post(ctx, alert); err != nil {
		// Degrade to local logging; the operator loses a ping, the visitor
		// loses nothing.
		slog.Warn("notification delivery failed, falling back to log",
			"kind", string(kind),
			"session_id", sessionID,
			"trigger", string(p.Trigger),
			"auto_escalated", p.AutoEscalated,
			"alert", alert.Text,
			"error", err,
		)
		d.metrics.Add(ctx, d.metrics.NotificationsErr)
		return true
	}

	slog.Info("notification dispatched",
		"kind", string(kind), "session_id", sessionID, "trigger", string(p.Trigger))
	d.metrics.Add(ctx, d.metrics.NotificationsOK)
	return true
}

func (d *Dispatcher) claim(kind Kind, sessionID string, trigger domain.Trigger) bool {
	switch kind {
	case KindFirstQuestion:
		return d.dedupe.ClaimFirstQuestion(sessionID)
	case KindIntervention:
		return d.dedupe.ClaimTrigger(sessionID, trigger)
	case KindHotLead:
		return d.dedupe.ClaimHotLead(sessionID)
	default:
		return false
	}
}

// alertPayload is the chat-ops webhook body: header text plus an ordered list
// of field blocks (Slack-compatible block kit shape).
type alertPayload struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type   string      `json:"type"`
	Text   *blockText  `json:"text,omitempty"`
	Fields []blockText `json:"fields,omitempty"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (d *Dispatcher) buildAlert(kind Kind, sessionID string, p Payload) alertPayload {
	var header string
	switch kind {
	case KindFirstQuestion:
		header = "👋 New chat session started"
	case KindHotLead:
		header = "🔥 Hot lead detected"
	default:
		if p.AutoEscalated {
			header = "🚨 Session auto-escalated to live mode"
		} else {
			header = "⚡ Intervention signal detected"
		}
	}

	fields := []blockText{
		{Type: "mrkdwn", Text: "*Session:*\n`" + sessionID + "`"},
	}
	if !p.Trigger.IsNone() {
		fields = append(fields, blockText{Type: "mrkdwn", Text: "*Trigger:*\n" + string(p.Trigger)})
	}
	if p.IntentSummary != "" {
		fields = append(fields, blockText{Type: "mrkdwn", Text: "*Intent:*\n" + p.IntentSummary})
	}
	if p.Prediction != "" {
		fields = append(fields, blockText{Type: "mrkdwn", Text: "*Prediction:*\n" + p.Prediction})
	}

	blocks := []block{
		{Type: "header", Text: &blockText{Type: "plain_text", Text: header}},
		{Type: "section", Fields: fields},
	}

	if len(p.Excerpt) > 0 {
		excerpt := p.Excerpt
		if len(excerpt) > 6 {
			excerpt = excerpt[len(excerpt)-6:]
		}
		blocks = append(blocks, block{
			Type: "section",
			Text: &blockText{Type: "mrkdwn", Text: "*Recent conversation:*\n>" + strings.Join(excerpt, "\n>")},
		})
	}

	if kind == KindIntervention || kind == KindHotLead {
		blocks = append(blocks, block{
			Type: "section",
			Text: &blockText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("Reply `[%s] your message` to answer the visitor directly, `/join %s` to take over, `/leave %s` to hand back to the AI.",
					sessionID, sessionID, sessionID),
			},
		})
	}

	return alertPayload{Text: header + " — session " + sessionID, Blocks: blocks}
}

func (d *Dispatcher) post(ctx context.Context, alert alertPayload) error {
	if d.webhookURL == "" {
		return fmt.Errorf("no webhook configured")
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close alert response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert rejected: status %d", resp.StatusCode)
	}
	return nil
}
