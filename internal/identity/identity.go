// Package identity provides session-id primitives. Session ids are
// client-generated and opaque; the server only validates shape and, for
// convenience endpoints, can mint one.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const (
	// SessionHeaderName carries the session id on HTTP requests from the
	// visitor client.
	SessionHeaderName = "X-Chat-Session-ID"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{4,128}$`)

// ValidSessionID reports whether id is an acceptable session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Sanitize trims and validates a session id, returning "" when unusable.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if !ValidSessionID(id) {
		return ""
	}
	return id
}

// FromRequest extracts the session id from header or query string.
func FromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return Sanitize(sid)
}

// NewSessionID mints a session id server-side for clients that have none yet.
func NewSessionID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "s_" + hex.EncodeToString(buf), nil
}
