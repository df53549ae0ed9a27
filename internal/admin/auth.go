// Package admin serves the operator console: a session dashboard that is the
// second front-end over the same operator state machine as the command
// channel.
package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = 12 * time.Hour

// tokenSet holds issued console tokens in memory. Restarting the server logs
// every operator out, which is fine for a single-operator tool.
type tokenSet struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func newTokenSet() *tokenSet {
	return &tokenSet{tokens: make(map[string]time.Time)}
}

func (t *tokenSet) issue() string {
	token := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[token] = time.Now().Add(tokenTTL)
	return token
}

func (t *tokenSet) valid(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp, ok := t.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(t.tokens, token)
		return false
	}
	return true
}

// secretMatches compares the configured shared secret in constant time. The
// threat model accepts a fixed plaintext secret; constant-time comparison is
// just how a comparison is written.
func secretMatches(configured, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
