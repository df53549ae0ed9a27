package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/operator"
	"github.com/avdeev/takeover/internal/store"
	"github.com/go-chi/chi/v5"
)

const testSecret = "hunter2"

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"), time.Second)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	h := NewHandler(s, operator.NewActions(s), testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func login(t *testing.T, srv *httptest.Server, password string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"password": password})
	resp, err := http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	return out["token"], resp.StatusCode
}

func authedRequest(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestLoginFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	if _, code := login(t, srv, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong password should 401, got %d", code)
	}

	token, code := login(t, srv, testSecret)
	if code != http.StatusOK || token == "" {
		t.Fatalf("login failed: code %d, token %q", code, token)
	}
}

func TestRoutesRejectMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	if _, err := s.AppendMessage(ctx, "sess-a", domain.RoleVisitor, "hello"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	token, _ := login(t, srv, testSecret)
	resp := authedRequest(t, http.MethodGet, srv.URL+"/api/sessions", token, nil)
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Sessions []domain.SessionInfo `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0].SessionID != "sess-a" {
		t.Errorf("unexpected sessions: %+v", out.Sessions)
	}
	if out.Sessions[0].MessageCount != 1 {
		t.Errorf("expected message count 1, got %d", out.Sessions[0].MessageCount)
	}
}

func TestMessagesWithAfterSeq(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := s.AppendMessage(ctx, "sess-a", domain.RoleVisitor, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	token, _ := login(t, srv, testSecret)
	resp := authedRequest(t, http.MethodGet, srv.URL+"/api/sessions/sess-a/messages?after=1", token, nil)
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Messages []domain.Message `json:"messages"`
		IsLive   bool             `json:"is_live"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected 2 messages after seq 1, got %d", len(out.Messages))
	}
	if out.IsLive {
		t.Error("session should not be live")
	}
}

func TestJoinSendLeaveThroughConsole(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	token, _ := login(t, srv, testSecret)

	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/sessions/sess-a/join", token, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", resp.StatusCode)
	}
	state, _ := s.GetLive(ctx, "sess-a")
	if !state.IsLive {
		t.Fatal("console join should flip the session live")
	}

	body, _ := json.Marshal(map[string]string{"content": "operator here"})
	resp = authedRequest(t, http.MethodPost, srv.URL+"/api/sessions/sess-a/send", token, body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", resp.StatusCode)
	}

	msgs, _ := s.Messages(ctx, "sess-a", 0)
	if len(msgs) != 2 {
		t.Fatalf("expected greeting plus reply, got %d messages", len(msgs))
	}
	if msgs[1].Role != domain.RoleOperator || msgs[1].Content != "operator here" {
		t.Errorf("unexpected operator message: %+v", msgs[1])
	}

	resp = authedRequest(t, http.MethodPost, srv.URL+"/api/sessions/sess-a/leave", token, nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leave: expected 200, got %d", resp.StatusCode)
	}
	state, _ = s.GetLive(ctx, "sess-a")
	if state.IsLive {
		t.Fatal("console leave should hand the session back")
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	srv, _ := newTestServer(t)
	token, _ := login(t, srv, testSecret)

	body, _ := json.Marshal(map[string]string{"content": ""})
	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/sessions/sess-a/send", token, body)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d", resp.StatusCode)
	}
}

func TestInvalidSessionIDRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	token, _ := login(t, srv, testSecret)

	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/sessions/ab/join", token, nil)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-short session id, got %d", resp.StatusCode)
	}
}
