package command

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Command
		ok   bool
	}{
		{
			name: "join",
			text: "/join ABC123",
			want: Command{Kind: KindJoin, SessionID: "ABC123"},
			ok:   true,
		},
		{
			name: "join case insensitive keyword",
			text: "/JOIN ABC123",
			want: Command{Kind: KindJoin, SessionID: "ABC123"},
			ok:   true,
		},
		{
			name: "join with surrounding whitespace",
			text: "  /join ABC123  ",
			want: Command{Kind: KindJoin, SessionID: "ABC123"},
			ok:   true,
		},
		{
			name: "leave",
			text: "/leave s_deadbeef01234567",
			want: Command{Kind: KindLeave, SessionID: "s_deadbeef01234567"},
			ok:   true,
		},
		{
			name: "say",
			text: "[ABC123] happy to talk, what's your timeline?",
			want: Command{Kind: KindSay, SessionID: "ABC123", Text: "happy to talk, what's your timeline?"},
			ok:   true,
		},
		{
			name: "say trims body",
			text: "[ABC123]    hello   ",
			want: Command{Kind: KindSay, SessionID: "ABC123", Text: "hello"},
			ok:   true,
		},
		{name: "empty", text: "", ok: false},
		{name: "plain chatter", text: "lunch anyone?", ok: false},
		{name: "join without id", text: "/join ", ok: false},
		{name: "join with invalid id", text: "/join a!b", ok: false},
		{name: "say without body", text: "[ABC123]", ok: false},
		{name: "say with empty body", text: "[ABC123]   ", ok: false},
		{name: "say with empty brackets", text: "[] hello", ok: false},
		{name: "say with unclosed bracket", text: "[ABC123 hello", ok: false},
		{name: "say with too-short id", text: "[ab] hi", ok: false},
		{name: "unknown slash command", text: "/kick ABC123", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.text)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}
