// Package command receives inbound operator events from the chat-ops tool.
package command

import (
	"strings"

	"github.com/avdeev/takeover/internal/identity"
)

// CommandKind enumerates the small inbound command grammar.
type CommandKind int

const (
	// KindJoin: "/join SESSIONID" — take over the session.
	KindJoin CommandKind = iota
	// KindLeave: "/leave SESSIONID" — hand back to the AI.
	KindLeave
	// KindSay: "[SESSIONID] free text" — reply, auto-joining.
	KindSay
)

// Command is one parsed operator instruction.
type Command struct {
	Kind      CommandKind
	SessionID string
	Text      string
}

// Parse extracts a command from raw chat-ops message text. Returns false for
// anything unaddressed or malformed; callers ignore those.
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, false
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "/join "):
		id := identity.Sanitize(text[len("/join "):])
		if id == "" {
			return Command{}, false
		}
		return Command{Kind: KindJoin, SessionID: id}, true

	case strings.HasPrefix(lower, "/leave "):
		id := identity.Sanitize(text[len("/leave "):])
		if id == "" {
			return Command{}, false
		}
		return Command{Kind: KindLeave, SessionID: id}, true

	case strings.HasPrefix(text, "["):
		end := strings.Index(text, "]")
		if end <= 1 {
			return Command{}, false
		}
		id := identity.Sanitize(text[1:end])
		body := strings.TrimSpace(text[end+1:])
		if id == "" || body == "" {
			return Command{}, false
		}
		return Command{Kind: KindSay, SessionID: id, Text: body}, true
	}

	return Command{}, false
}
