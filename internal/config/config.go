// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// AdminPath is the obscure, unlisted path prefix the operator console is
	// served under. AdminSecret gates it; when empty the console is disabled.
	AdminPath   string
	AdminSecret string

	// ChatopsWebhookURL is the outbound notification endpoint. Empty disables
	// outbound delivery and the dispatcher logs alerts locally instead.
	ChatopsWebhookURL string

	// Responder configures the AI chat-completion collaborator.
	Responder ResponderConfig

	Transcript TranscriptConfig

	// TelemetryLogDir receives the rotated trace and metric export files.
	TelemetryLogDir string

	SessionIdleTTL time.Duration
	TypingTTL      time.Duration
	SweepInterval  time.Duration
}

// ResponderConfig configures the AI responder HTTP client.
type ResponderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// TranscriptConfig controls NDJSON conversation logging.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/takeover.db"),
		AdminPath:         getEnv("ADMIN_PATH", "/console-x7k2"),
		AdminSecret:       getEnv("ADMIN_SECRET", ""),
		ChatopsWebhookURL: getEnv("CHATOPS_WEBHOOK_URL", ""),
		Responder: ResponderConfig{
			BaseURL: getEnv("RESPONDER_BASE_URL", "https://api.anthropic.com"),
			APIKey:  getEnv("RESPONDER_API_KEY", ""),
			Model:   getEnv("RESPONDER_MODEL", "claude-sonnet-4-20250514"),
			Timeout: getEnvDuration("RESPONDER_TIMEOUT", 30*time.Second),
		},
		Transcript: TranscriptConfig{
			Enabled:       getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:           getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_GLOBAL_PATH", "./data/transcripts/all.ndjson"),
			QueueSize:     queueSize,
		},
		TelemetryLogDir: getEnv("TELEMETRY_LOG_DIR", "./data/logs"),
		SessionIdleTTL:  getEnvDuration("SESSION_IDLE_TTL", 60*time.Minute),
		TypingTTL:       getEnvDuration("TYPING_TTL", 6*time.Second),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if !strings.HasPrefix(c.AdminPath, "/") {
		return fmt.Errorf("ADMIN_PATH must start with /")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.GlobalEnabled && c.Transcript.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_GLOBAL_PATH cannot be empty")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0")
	}
	if c.TypingTTL <= 0 {
		return fmt.Errorf("TYPING_TTL must be > 0")
	}
	return nil
}

// AdminEnabled reports whether the operator console should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminSecret != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
