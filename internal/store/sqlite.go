package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avdeev/takeover/internal/domain"
	"github.com/avdeev/takeover/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// appendRetries bounds retry attempts for writes that lose a race on the
// per-session sequence number or hit SQLITE_BUSY.
const appendRetries = 3

// SQLiteStore implements Store using SQLite plus an in-process change hub.
type SQLiteStore struct {
	db       *sql.DB
	hub      *hub
	typing   *typingTable
	observer func(domain.Message)
}

// SetMessageObserver installs a hook invoked synchronously for every append,
// regardless of session. Used to tee messages into the transcript log. Must
// be set before the store is shared across goroutines.
func (s *SQLiteStore) SetMessageObserver(fn func(domain.Message)) {
	s.observer = fn
}

// NewSQLite creates a new SQLite-backed store. typingTTL controls how long an
// advisory typing flag stays set without re-assertion.
func NewSQLite(dbPath string, typingTTL time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	h := newHub()
	s := &SQLiteStore{
		db:     db,
		hub:    h,
		typing: newTypingTable(typingTTL, h.publishTyping),
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		is_live INTEGER NOT NULL DEFAULT 0,
		operator_joined_at INTEGER,
		declared_context TEXT,
		last_activity INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TouchSession creates the session row if missing and bumps last_activity.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID, declaredContext string) error {
	now := time.Now().Unix()
	query := `
	INSERT INTO sessions (session_id, is_live, declared_context, last_activity, created_at)
	VALUES (?, 0, NULLIF(?, ''), ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		declared_context = COALESCE(NULLIF(excluded.declared_context, ''), sessions.declared_context),
		last_activity = excluded.last_activity`

	if _, err := s.db.ExecContext(ctx, query, sessionID, declaredContext, now, now); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// GetSession retrieves a session, or nil if it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, is_live, operator_joined_at, declared_context, last_activity, created_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var isLive int
	var joinedAt sql.NullInt64
	var declared sql.NullString
	var lastActivity, createdAt int64

	if err := row.Scan(&sess.SessionID, &isLive, &joinedAt, &declared, &lastActivity, &createdAt); err != nil {
		return nil, err
	}

	sess.IsLive = isLive != 0
	if joinedAt.Valid {
		ts := time.Unix(joinedAt.Int64, 0)
		sess.OperatorJoinedAt = &ts
	}
	sess.DeclaredContext = declared.String
	sess.LastActivity = time.Unix(lastActivity, 0)
	sess.CreatedAt = time.Unix(createdAt, 0)
	return &sess, nil
}

// GetLive reads the liveness flag for a session. Missing sessions read as not
// live.
func (s *SQLiteStore) GetLive(ctx context.Context, sessionID string) (domain.LiveState, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.LiveState{}, err
	}
	if sess == nil {
		return domain.LiveState{}, nil
	}
	return domain.LiveState{IsLive: sess.IsLive, OperatorJoinedAt: sess.OperatorJoinedAt}, nil
}

// SetLive overwrites the liveness flag (last writer wins, no merge) and fans
// the new state out to live subscribers. Going live stamps operator_joined_at
// unless an earlier join already set it; going not-live clears it, keeping the
// invariant is_live => operator_joined_at != NULL.
func (s *SQLiteStore) SetLive(ctx context.Context, sessionID string, live bool) error {
	now := time.Now().Unix()

	var query string
	if live {
		query = `
		INSERT INTO sessions (session_id, is_live, operator_joined_at, last_activity, created_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			is_live = 1,
			operator_joined_at = COALESCE(sessions.operator_joined_at, excluded.operator_joined_at),
			last_activity = excluded.last_activity`
	} else {
		query = `
		INSERT INTO sessions (session_id, is_live, operator_joined_at, last_activity, created_at)
		VALUES (?, 0, NULL, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			is_live = 0,
			operator_joined_at = NULL,
			last_activity = excluded.last_activity`
	}

	var err error
	if live {
		_, err = s.db.ExecContext(ctx, query, sessionID, now, now, now)
	} else {
		_, err = s.db.ExecContext(ctx, query, sessionID, now, now)
	}
	if err != nil {
		return fmt.Errorf("set live: %w", err)
	}

	state, err := s.GetLive(ctx, sessionID)
	if err != nil {
		// The write succeeded; publish what we know rather than failing.
		slog.Warn("failed to re-read live state after write", "session_id", sessionID, "error", err)
		state = domain.LiveState{IsLive: live}
	}
	s.hub.publishLive(sessionID, state)
	return nil
}

// AppendMessage appends to the session's ordered log. The sequence number is
// assigned inside a transaction; a lost race on (session_id, seq) uniqueness
// is retried with backoff.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) (domain.Message, error) {
	if !domain.ValidRole(role) {
		return domain.Message{}, fmt.Errorf("append message: unknown role %q", role)
	}

	var msg domain.Message
	var err error
	for i := 0; i < appendRetries; i++ {
		msg, err = s.appendMessageOnce(ctx, sessionID, role, content)
		if err == nil {
			s.hub.publishMessage(msg)
			if s.observer != nil {
				s.observer(msg)
			}
			return msg, nil
		}
		if shared.IsSQLiteConflictError(err) || shared.IsSQLiteConstraintError(err) {
			delay := 50 * time.Millisecond * time.Duration(1<<i)
			slog.Debug("append message retrying after conflict",
				"session_id", sessionID, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return domain.Message{}, fmt.Errorf("append message after %d attempts: %w", appendRetries, err)
}

func (s *SQLiteStore) appendMessageOnce(ctx context.Context, sessionID string, role domain.Role, content string) (domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, is_live, last_activity, created_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET last_activity = excluded.last_activity`,
		sessionID, now.Unix(), now.Unix(),
	); err != nil {
		return domain.Message{}, fmt.Errorf("touch session in tx: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&seq); err != nil {
		return domain.Message{}, fmt.Errorf("next seq: %w", err)
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Seq, string(msg.Role), msg.Content, now.Unix(),
	); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// Messages returns messages with seq > afterSeq in ascending order.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string, afterSeq int64) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, seq, role, content, created_at
		FROM messages WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close messages rows", "error", closeErr)
		}
	}()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// ListSessions returns recent sessions ordered by last_activity descending.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT s.session_id, s.is_live, s.operator_joined_at, s.declared_context,
		       s.last_activity, s.created_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.last_activity DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close sessions rows", "error", closeErr)
		}
	}()

	var infos []domain.SessionInfo
	for rows.Next() {
		var info domain.SessionInfo
		var isLive int
		var joinedAt sql.NullInt64
		var declared sql.NullString
		var lastActivity, createdAt int64

		if err := rows.Scan(&info.SessionID, &isLive, &joinedAt, &declared,
			&lastActivity, &createdAt, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session info row: %w", err)
		}

		info.IsLive = isLive != 0
		if joinedAt.Valid {
			ts := time.Unix(joinedAt.Int64, 0)
			info.OperatorJoinedAt = &ts
		}
		info.DeclaredContext = declared.String
		info.LastActivity = time.Unix(lastActivity, 0)
		info.CreatedAt = time.Unix(createdAt, 0)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return infos, nil
}

// ReleaseIdleSessions flips live sessions idle beyond ttl back to not-live.
// The operator walked away; the AI resumes answering.
func (s *SQLiteStore) ReleaseIdleSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE is_live = 1 AND last_activity < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("query idle live sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan idle session id: %w", err)
		}
		ids = append(ids, id)
	}
	if closeErr := rows.Close(); closeErr != nil {
		slog.Warn("failed to close idle sessions rows", "error", closeErr)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate idle sessions: %w", err)
	}

	var released int64
	for _, id := range ids {
		if err := s.SetLive(ctx, id, false); err != nil {
			slog.Warn("failed to release idle session", "session_id", id, "error", err)
			continue
		}
		released++
	}
	return released, nil
}

// SetTyping records advisory typing state with automatic expiry.
func (s *SQLiteStore) SetTyping(sessionID string, isTyping bool) {
	s.typing.set(sessionID, isTyping)
}

// Typing reads the current advisory typing state.
func (s *SQLiteStore) Typing(sessionID string) bool {
	return s.typing.get(sessionID)
}

// SubscribeMessages streams every append for a session.
func (s *SQLiteStore) SubscribeMessages(sessionID string) (<-chan domain.Message, func()) {
	return s.hub.subscribeMessages(sessionID)
}

// SubscribeLive streams liveness changes for a session.
func (s *SQLiteStore) SubscribeLive(sessionID string) (<-chan domain.LiveState, func()) {
	return s.hub.subscribeLive(sessionID)
}

// SubscribeTyping streams advisory typing changes for a session.
func (s *SQLiteStore) SubscribeTyping(sessionID string) (<-chan domain.TypingState, func()) {
	return s.hub.subscribeTyping(sessionID)
}

// Close closes the database connection and stops typing expiry timers.
func (s *SQLiteStore) Close() error {
	s.typing.stop()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
