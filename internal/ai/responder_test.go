package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avdeev/takeover/internal/config"
	"github.com/avdeev/takeover/internal/domain"
)

func newResponderServer(t *testing.T, handler http.HandlerFunc) *HTTPResponder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPResponder(config.ResponderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func TestReplyMergesRolesAndParsesText(t *testing.T) {
	var got messagesRequest
	r := newResponderServer(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/v1/messages" {
			t.Errorf("wrong path %q", req.URL.Path)
		}
		if req.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if req.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "here you go"}},
		})
	})

	history := []domain.Message{
		{Role: domain.RoleVisitor, Content: "hi"},
		{Role: domain.RoleAI, Content: "hello!"},
		{Role: domain.RoleOperator, Content: "human here"},
		{Role: domain.RoleVisitor, Content: "great"},
		{Role: domain.RoleVisitor, Content: "one more thing"},
	}
	reply, err := r.Reply(context.Background(), history)
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply != "here you go" {
		t.Errorf("reply = %q", reply)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if got.System == "" {
		t.Error("system prompt missing")
	}
	// AI and operator turns merge into one assistant message; consecutive
	// visitor turns merge into one user message.
	want := []struct{ role, content string }{
		{"user", "hi"},
		{"assistant", "hello!\nhuman here"},
		{"user", "great\none more thing"},
	}
	if len(got.Messages) != len(want) {
		t.Fatalf("expected %d prompt messages, got %+v", len(want), got.Messages)
	}
	for i, w := range want {
		if got.Messages[i].Role != w.role || got.Messages[i].Content != w.content {
			t.Errorf("prompt message %d = %+v, want %+v", i, got.Messages[i], w)
		}
	}
}

func TestReplyRequiresVisitorFirst(t *testing.T) {
	r := newResponderServer(t, func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request should be sent")
	})

	if _, err := r.Reply(context.Background(), []domain.Message{
		{Role: domain.RoleAI, Content: "hello!"},
	}); err == nil {
		t.Fatal("expected an error for a conversation not starting with the visitor")
	}
	if _, err := r.Reply(context.Background(), nil); err == nil {
		t.Fatal("expected an error for an empty conversation")
	}
}

func TestReplySurfacesAPIError(t *testing.T) {
	r := newResponderServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
		})
	})

	_, err := r.Reply(context.Background(), []domain.Message{
		{Role: domain.RoleVisitor, Content: "hi"},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestStaticResponder(t *testing.T) {
	r := NewStaticResponder()
	reply, err := r.Reply(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply == "" {
		t.Error("static responder returned empty text")
	}
}
