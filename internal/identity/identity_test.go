package identity

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"ABC123", true},
		{"s_deadbeef01234567", true},
		{"a.b:c-d_e", true},
		{"abcd", true},
		{"abc", false},
		{"", false},
		{"has spaces", false},
		{"semi;colon", false},
		{"../../etc/passwd", false},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		if got := ValidSessionID(tt.id); got != tt.want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("  ABC123  "); got != "ABC123" {
		t.Errorf("Sanitize should trim, got %q", got)
	}
	if got := Sanitize("bad id"); got != "" {
		t.Errorf("Sanitize should reject invalid ids, got %q", got)
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/chat", nil)
	r.Header.Set(SessionHeaderName, "from-header")
	if got := FromRequest(r); got != "from-header" {
		t.Errorf("expected header id, got %q", got)
	}

	r = httptest.NewRequest("GET", "/ws/chat?session_id=from-query", nil)
	if got := FromRequest(r); got != "from-query" {
		t.Errorf("expected query id, got %q", got)
	}

	r = httptest.NewRequest("GET", "/ws/chat", nil)
	if got := FromRequest(r); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		if !ValidSessionID(id) {
			t.Fatalf("minted id %q fails validation", id)
		}
		if !strings.HasPrefix(id, "s_") {
			t.Fatalf("minted id %q missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("minted id %q repeated", id)
		}
		seen[id] = true
	}
}
