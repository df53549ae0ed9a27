package command

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/avdeev/takeover/internal/api"
	"github.com/avdeev/takeover/internal/operator"
	"github.com/avdeev/takeover/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

// inboundEvent is the chat-ops tool's webhook envelope (Slack Events API
// shape): either a url_verification handshake or an event_callback wrapping
// an inner message event.
type inboundEvent struct {
	Type      string        `json:"type"`
	Token     string        `json:"token,omitempty"`
	Challenge string        `json:"challenge,omitempty"`
	Event     *messageEvent `json:"event,omitempty"`
}

type messageEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	BotID   string `json:"bot_id,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Handler is the inbound command channel endpoint. It always answers success
// to the calling tool — external retry storms help nobody — and logs internal
// failures instead.
type Handler struct {
	actions *operator.Actions
	metrics *telemetry.Metrics
}

// NewHandler creates the command channel handler.
func NewHandler(actions *operator.Actions, metrics *telemetry.Metrics) *Handler {
	return &Handler{actions: actions, metrics: metrics}
}

// RegisterRoutes registers the inbound webhook route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/hooks/chatops", h.HandleEvent)
}

// HandleEvent processes one inbound chat-ops event.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev inboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		slog.Warn("malformed chat-ops event", "error", err)
		api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	h.metrics.Add(r.Context(), h.metrics.CommandEvents)

	// Handshake verification: echo the token back synchronously, no session
	// effect.
	if ev.Type == "url_verification" {
		api.JSON(w, http.StatusOK, map[string]string{"challenge": ev.Challenge})
		return
	}

	if ev.Type == "event_callback" && ev.Event != nil {
		h.handleMessageEvent(r, ev.Event)
	} else {
		slog.Debug("ignoring chat-ops event", "type", ev.Type)
	}

	api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleMessageEvent(r *http.Request, ev *messageEvent) {
	if ev.Type != "message" {
		slog.Debug("ignoring non-message event", "type", ev.Type)
		return
	}
	// Bot-originated and system-subtype events would feed back our own
	// notifications into the command channel.
	if ev.BotID != "" || ev.Subtype != "" {
		slog.Debug("ignoring bot or system event", "bot_id", ev.BotID, "subtype", ev.Subtype)
		return
	}

	cmd, ok := Parse(ev.Text)
	if !ok {
		slog.Debug("ignoring unaddressed chat-ops message")
		return
	}

	ctx := r.Context()
	var err error
	switch cmd.Kind {
	case KindJoin:
		err = h.actions.Join(ctx, cmd.SessionID)
	case KindLeave:
		err = h.actions.Leave(ctx, cmd.SessionID)
	case KindSay:
		err = h.actions.Say(ctx, cmd.SessionID, cmd.Text)
	}
	if err != nil {
		// Internal failure stays internal; the tool still gets its 200.
		slog.Error("chat-ops command failed",
			"kind", cmd.Kind, "session_id", cmd.SessionID, "error", err)
	}
}
