package ai

import (
	"context"

	"github.com/avdeev/takeover/internal/domain"
)

// StaticResponder answers every turn with a fixed message. It stands in when
// no API key is configured so the widget keeps working: detection and
// escalation still run, only the AI persona is absent.
type StaticResponder struct {
	Text string
}

const staticFallback = "Thanks for reaching out! I can't generate a live answer " +
	"right now, but leave your question and contact details and the site owner " +
	"will get back to you."

// NewStaticResponder returns a responder with the default fallback text.
func NewStaticResponder() *StaticResponder {
	return &StaticResponder{Text: staticFallback}
}

// Reply returns the fixed text.
func (r *StaticResponder) Reply(_ context.Context, _ []domain.Message) (string, error) {
	return r.Text, nil
}
