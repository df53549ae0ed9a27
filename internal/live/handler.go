package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/identity"
	"github.com/avdeev/takeover/internal/notify"
	"github.com/avdeev/takeover/internal/store"
	"github.com/coder/websocket"
)

// Handler upgrades visitor clients to WebSocket and bridges them to the
// session's change streams. One connection serves one session.
type Handler struct {
	store         store.Store
	engine        *Engine
	dedupe        notify.Deduper
	allowedOrigin string
	isDev         bool
}

// NewHandler creates the live session WebSocket handler.
func NewHandler(s store.Store, engine *Engine, dedupe notify.Deduper, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		store:         s,
		engine:        engine,
		dedupe:        dedupe,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientFrame is a message from the visitor's client.
type clientFrame struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id,omitempty"`
	DeclaredContext string `json:"declared_context,omitempty"`
	Content         string `json:"content,omitempty"`
}

// serverEvent is a message to the visitor's client.
type serverEvent struct {
	Type string `json:"type"`
	// SessionID rides on the ready event so a client whose id was minted
	// server-side can persist it.
	SessionID string          `json:"session_id,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
	IsLive    *bool           `json:"is_live,omitempty"`
	IsTyping  *bool           `json:"is_typing,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// conn wraps a websocket connection with a write lock; coder/websocket
// permits one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeEvent(ev serverEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP implements the WebSocket upgrade and session loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	c := &conn{ws: ws}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// First frame must be the hello carrying the client-generated session id.
	sessionID, declared, ok := h.readHello(ctx, ws, c)
	if !ok {
		return
	}
	slog.Info("Live session connected", "session_id", sessionID, "ip", r.RemoteAddr)

	if err := h.store.TouchSession(ctx, sessionID, declared); err != nil {
		slog.Warn("Failed to touch session", "session_id", sessionID, "error", err)
	}

	msgCh, cancelMsgs := h.store.SubscribeMessages(sessionID)
	defer cancelMsgs()
	liveCh, cancelLive := h.store.SubscribeLive(sessionID)
	defer cancelLive()
	typingCh, cancelTyping := h.store.SubscribeTyping(sessionID)
	defer cancelTyping()
	// A disconnect ends this client session's notification budget.
	defer h.dedupe.Forget(sessionID)

	turnIndex, wasLive := h.sendCatchUp(ctx, c, sessionID)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.forwardLoop(ctx, c, sessionID, wasLive, msgCh, liveCh, typingCh)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.readLoop(ctx, ws, c, sessionID, declared, turnIndex)
	}()

	wg.Wait()
	slog.Info("Live session ended", "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readHello(ctx context.Context, ws *websocket.Conn, c *conn) (string, string, bool) {
	readCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, data, err := ws.Read(readCtx)
	if err != nil {
		slog.Debug("WebSocket closed before hello", "error", err)
		return "", "", false
	}

	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "hello" {
		_ = c.writeEvent(serverEvent{Type: "error", Error: "expected hello frame"})
		return "", "", false
	}

	sessionID := identity.Sanitize(frame.SessionID)
	if sessionID == "" {
		// Client storage was empty or held garbage; mint a fresh id.
		minted, err := identity.NewSessionID()
		if err != nil {
			_ = c.writeEvent(serverEvent{Type: "error", Error: "invalid session id"})
			return "", "", false
		}
		sessionID = minted
	}
	return sessionID, frame.DeclaredContext, true
}

// sendCatchUp replays the existing log and current liveness, and returns the
// visitor turn index to resume from plus the liveness it reported. Store
// failures degrade to an empty timeline and a not-live default.
func (h *Handler) sendCatchUp(ctx context.Context, c *conn, sessionID string) (int, bool) {
	turns := 0

	msgs, err := h.store.Messages(ctx, sessionID, 0)
	if err != nil {
		slog.Warn("Catch-up read failed", "session_id", sessionID, "error", err)
		msgs = nil
	}
	for i := range msgs {
		if msgs[i].Role == domain.RoleVisitor {
			turns++
		}
		if err := c.writeEvent(serverEvent{Type: "message", Message: &msgs[i]}); err != nil {
			slog.Debug("Catch-up write failed", "session_id", sessionID, "error", err)
			return turns, false
		}
	}

	liveState, err := h.store.GetLive(ctx, sessionID)
	if err != nil {
		slog.Warn("Live read failed during catch-up, assuming not live",
			"session_id", sessionID, "error", err)
		liveState = domain.LiveState{}
	}
	isLive := liveState.IsLive
	if err := c.writeEvent(serverEvent{Type: "ready", SessionID: sessionID, IsLive: &isLive}); err != nil {
		slog.Debug("Ready write failed", "session_id", sessionID, "error", err)
	}
	return turns, isLive
}

// forwardLoop pushes store changes to the client. The first transition from
// not-live to live within this connection's lifetime emits operator_joined
// exactly once. wasLive must be the liveness the catch-up reported, so a flip
// queued on liveCh between subscribe and catch-up still announces.
func (h *Handler) forwardLoop(ctx context.Context, c *conn, sessionID string, wasLive bool,
	msgCh <-chan domain.Message, liveCh <-chan domain.LiveState, typingCh <-chan domain.TypingState) {

	operatorAnnounced := wasLive

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if err := c.writeEvent(serverEvent{Type: "message", Message: &msg}); err != nil {
				slog.Debug("Message forward failed", "session_id", sessionID, "error", err)
				return
			}
		case state, ok := <-liveCh:
			if !ok {
				return
			}
			isLive := state.IsLive
			if err := c.writeEvent(serverEvent{Type: "live", IsLive: &isLive}); err != nil {
				slog.Debug("Live forward failed", "session_id", sessionID, "error", err)
				return
			}
			if state.IsLive && !wasLive && !operatorAnnounced {
				operatorAnnounced = true
				if err := c.writeEvent(serverEvent{Type: "operator_joined"}); err != nil {
					slog.Debug("Operator-joined write failed", "session_id", sessionID, "error", err)
					return
				}
			}
			wasLive = state.IsLive
		case typing, ok := <-typingCh:
			if !ok {
				return
			}
			isTyping := typing.IsTyping
			if err := c.writeEvent(serverEvent{Type: "typing", IsTyping: &isTyping}); err != nil {
				slog.Debug("Typing forward failed", "session_id", sessionID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, c *conn, sessionID, declared string, turnIndex int) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "session_id", sessionID, "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("Malformed client frame", "session_id", sessionID, "error", err)
			continue
		}

		switch frame.Type {
		case "message":
			if frame.Content == "" {
				continue
			}
			result := h.engine.VisitorTurn(ctx, sessionID, frame.Content, turnIndex, declared)
			turnIndex++
			h.deliverTurnResult(c, sessionID, result)
		case "ping":
			if err := c.writeEvent(serverEvent{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "session_id", sessionID, "error", err)
			}
		default:
			slog.Debug("Ignoring client frame", "session_id", sessionID, "type", frame.Type)
		}
	}
}

func (h *Handler) deliverTurnResult(c *conn, sessionID string, result TurnResult) {
	if result.Suggest {
		if err := c.writeEvent(serverEvent{Type: "suggest_switch"}); err != nil {
			slog.Debug("Suggest write failed", "session_id", sessionID, "error", err)
		}
	}
	if result.AIErr != nil {
		if err := c.writeEvent(serverEvent{Type: "error", Error: "assistant is unavailable right now"}); err != nil {
			slog.Debug("Error write failed", "session_id", sessionID, "error", err)
		}
		return
	}
	// A reply the store accepted arrives via the message subscription. One
	// the store dropped is delivered directly so the chat keeps flowing.
	if result.AIReply != "" && !result.Appended {
		msg := &domain.Message{
			SessionID: sessionID,
			Role:      domain.RoleAI,
			Content:   result.AIReply,
			CreatedAt: time.Now(),
		}
		if err := c.writeEvent(serverEvent{Type: "message", Message: msg}); err != nil {
			slog.Debug("Direct reply write failed", "session_id", sessionID, "error", err)
		}
	}
}
