package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/avdeev/takeover/internal/api"
	"github.com/avdeev/takeover/internal/identity"
	"github.com/avdeev/takeover/internal/operator"
	"github.com/avdeev/takeover/internal/store"
	"github.com/go-chi/chi/v5"
)

// Handler provides the operator console JSON API. Join/Leave/Send pass
// through operator.Actions, so console effects are byte-for-byte the same
// store mutations the chat-ops command channel produces.
type Handler struct {
	store   store.Store
	actions *operator.Actions
	secret  string
	tokens  *tokenSet
}

// NewHandler creates the console API handler.
func NewHandler(s store.Store, actions *operator.Actions, secret string) *Handler {
	return &Handler{
		store:   s,
		actions: actions,
		secret:  secret,
		tokens:  newTokenSet(),
	}
}

// RegisterRoutes mounts the console API under the (obscure) prefix chosen by
// configuration; the caller mounts this router there.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/login", h.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/api/sessions", h.HandleListSessions)
		r.Get("/api/sessions/{sessionID}/messages", h.HandleMessages)
		r.Post("/api/sessions/{sessionID}/join", h.HandleJoin)
		r.Post("/api/sessions/{sessionID}/leave", h.HandleLeave)
		r.Post("/api/sessions/{sessionID}/send", h.HandleSend)
		r.Post("/api/sessions/{sessionID}/typing", h.HandleTyping)
	})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.tokens.valid(bearerToken(r)) {
			api.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleLogin exchanges the shared secret for a bearer token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !secretMatches(h.secret, req.Password) {
		slog.Warn("Console login rejected", "ip", r.RemoteAddr)
		api.Error(w, http.StatusUnauthorized, "wrong password")
		return
	}
	slog.Info("Console login", "ip", r.RemoteAddr)
	api.JSON(w, http.StatusOK, map[string]string{"token": h.tokens.issue()})
}

// HandleListSessions returns recent sessions for the polling dashboard. The
// client merges these rows into its keyed local state rather than replacing
// it, so a refresh never clobbers a draft reply.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	infos, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

// HandleMessages returns a session's log, optionally after a sequence number.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var afterSeq int64
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			afterSeq = n
		}
	}

	msgs, err := h.store.Messages(r.Context(), sessionID, afterSeq)
	if err != nil {
		slog.Error("Failed to read messages", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to read messages")
		return
	}
	live, err := h.store.GetLive(r.Context(), sessionID)
	if err != nil {
		slog.Warn("Failed to read live state", "session_id", sessionID, "error", err)
	}
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"is_live":  live.IsLive,
		"typing":   h.store.Typing(sessionID),
	})
}

// HandleJoin takes over a session.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.actions.Join(r.Context(), sessionID); err != nil {
		slog.Error("Console join failed", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "join failed")
		return
	}
	api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleLeave hands a session back to the AI.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.actions.Leave(r.Context(), sessionID); err != nil {
		slog.Error("Console leave failed", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "leave failed")
		return
	}
	api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleSend appends an operator message, auto-joining if necessary.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	if err := h.actions.Say(r.Context(), sessionID, req.Content); err != nil {
		slog.Error("Console send failed", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "send failed")
		return
	}
	api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleTyping records advisory operator-typing state.
func (h *Handler) HandleTyping(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.actions.Typing(sessionID, req.IsTyping)
	api.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
