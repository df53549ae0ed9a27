// Package ai is the boundary to the AI chat-completion collaborator. The
// engine only calls it while a session is not live; the moment an operator
// takes over, visitor turns route straight to the store instead.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avdeev/takeover/internal/config"
	"github.com/avdeev/takeover/internal/domain"
)

const systemPrompt = "You are the AI persona of this personal site's chat widget. " +
	"Answer as the site owner would: concise, friendly, technically grounded. " +
	"If you don't know something about the owner, say so instead of inventing it."

const anthropicVersion = "2023-06-01"

// Responder produces an AI reply for the visitor's latest turn given the
// conversation so far.
type Responder interface {
	Reply(ctx context.Context, history []domain.Message) (string, error)
}

// messagesRequest is the Anthropic Messages API request body.
type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []promptMessage `json:"messages"`
}

type promptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPResponder calls an Anthropic-compatible Messages API.
type HTTPResponder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPResponder creates a responder from config.
func NewHTTPResponder(cfg config.ResponderConfig) *HTTPResponder {
	return &HTTPResponder{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Reply sends the conversation and returns the assistant's text. Operator
// messages are folded into the assistant side of the prompt so the persona
// stays consistent with what the visitor already read.
func (r *HTTPResponder) Reply(ctx context.Context, history []domain.Message) (string, error) {
	msgs := make([]promptMessage, 0, len(history))
	for _, m := range history {
		role := "assistant"
		if m.Role == domain.RoleVisitor {
			role = "user"
		}
		// The API requires alternating roles; merge consecutive same-role
		// messages.
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n" + m.Content
			continue
		}
		msgs = append(msgs, promptMessage{Role: role, Content: m.Content})
	}
	if len(msgs) == 0 || msgs[0].Role != "user" {
		return "", fmt.Errorf("conversation must start with a visitor message")
	}

	body, err := json.Marshal(messagesRequest{
		Model:     r.model,
		MaxTokens: 1024,
		System:    systemPrompt,
		Messages:  msgs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", r.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("completion failed: %s (%s)", parsed.Error.Message, parsed.Error.Type)
		}
		return "", fmt.Errorf("completion failed: status %d", resp.StatusCode)
	}

	for _, c := range parsed.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("completion returned no text content")
}
