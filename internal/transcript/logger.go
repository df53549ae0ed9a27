// Package transcript writes per-session NDJSON conversation logs for offline
// review. Logging is best-effort and asynchronous; a full queue drops events
// rather than slowing the chat.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avdeev/takeover/internal/config"
	"github.com/avdeev/takeover/internal/domain"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Event is one NDJSON transcript line.
type Event struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Logger records conversation events.
type Logger interface {
	Log(Event)
	Close() error
}

// NewLogger creates a queue-backed transcript logger, or a no-op one when
// disabled.
func NewLogger(cfg config.TranscriptConfig) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopLogger{}, nil
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create transcript directory: %w", err)
		}
	}

	l := &fileLogger{
		cfg:   cfg,
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	if cfg.GlobalEnabled {
		l.global = &lumberjack.Logger{
			Filename:   cfg.GlobalPath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     90,
			Compress:   true,
		}
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// FromMessage builds a transcript event from a stored message.
func FromMessage(msg domain.Message) Event {
	return Event{
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		SessionID: msg.SessionID,
		Seq:       msg.Seq,
		Role:      string(msg.Role),
		Content:   msg.Content,
	}
}

type fileLogger struct {
	cfg    config.TranscriptConfig
	queue  chan Event
	done   chan struct{}
	global io.WriteCloser
	wg     sync.WaitGroup
	once   sync.Once
}

// Log enqueues an event; drops it when the queue is full.
func (l *fileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case l.queue <- ev:
	default:
		slog.Warn("transcript queue full, dropping event", "session_id", ev.SessionID)
	}
}

// Close drains the queue and stops the writer.
func (l *fileLogger) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()
		if l.global != nil {
			if err := l.global.Close(); err != nil {
				slog.Warn("failed to close global transcript", "error", err)
			}
		}
	})
	return nil
}

func (l *fileLogger) run() {
	defer l.wg.Done()

	for {
		select {
		case ev := <-l.queue:
			l.write(ev)
		case <-l.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case ev := <-l.queue:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *fileLogger) write(ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	if l.cfg.Enabled {
		path := filepath.Join(l.cfg.Dir, sanitizeFilename(ev.SessionID)+".ndjson")
		if err := appendFile(path, line); err != nil {
			slog.Warn("failed to write transcript", "session_id", ev.SessionID, "error", err)
		}
	}
	if l.global != nil {
		if _, err := l.global.Write(line); err != nil {
			slog.Warn("failed to write global transcript", "error", err)
		}
	}
}

func appendFile(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("failed to close transcript file", "path", path, "error", closeErr)
		}
	}()
	_, err = f.Write(line)
	return err
}

// sanitizeFilename guards against a session id that would escape the
// transcript directory. Ids are validated upstream; this is the backstop.
func sanitizeFilename(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }
