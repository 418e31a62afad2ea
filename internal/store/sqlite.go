package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a ConversationStore backed by a local SQLite database.
// Intended for single-host and development deployments where running
// PostgreSQL is not worth the trouble.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the conversation database.
// It resolves to ~/.docbot/conversations.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docbot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "conversations.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist. Column names
// mirror the PostgreSQL backend so audit tooling can query either.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id             INTEGER NOT NULL,
    user_name           TEXT,
    question            TEXT    NOT NULL,
    context_chunks      TEXT    NOT NULL,  -- JSON
    prompt              TEXT    NOT NULL,
    llm_response        TEXT    NOT NULL,
    success             INTEGER NOT NULL,
    telegram_message_id INTEGER,
    feedback            INTEGER,
    feedback_timestamp  INTEGER,           -- Unix timestamp (seconds)
    avg_context_score   REAL,
    created_at          INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_created
    ON conversations (created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_message
    ON conversations (telegram_message_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveConversation persists a record and returns its database id.
func (s *SQLiteStore) SaveConversation(ctx context.Context, rec *ConversationRecord) (int64, error) {
	chunks, err := json.Marshal(rec.Contexts)
	if err != nil {
		return 0, fmt.Errorf("store: marshal context chunks: %w", err)
	}

	var messageID any
	if rec.MessageID != 0 {
		messageID = rec.MessageID
	}
	var userName any
	if rec.UserName != "" {
		userName = rec.UserName
	}

	const q = `
INSERT INTO conversations
    (user_id, user_name, question, context_chunks, prompt, llm_response, success, telegram_message_id, avg_context_score, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, q,
		rec.UserID, userName, rec.Question, string(chunks),
		rec.Prompt, rec.LLMResponse, rec.Success, messageID, rec.AvgScore,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: save conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: save conversation id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// UpdateFeedback records a vote keyed by the delivery message id. The
// feedback IS NULL guard makes the first vote win.
func (s *SQLiteStore) UpdateFeedback(ctx context.Context, messageID int64, helpful bool) (bool, error) {
	const q = `
UPDATE conversations
SET    feedback = ?, feedback_timestamp = ?
WHERE  telegram_message_id = ? AND feedback IS NULL`

	res, err := s.db.ExecContext(ctx, q, helpful, time.Now().Unix(), messageID)
	if err != nil {
		return false, fmt.Errorf("store: update feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: update feedback rows: %w", err)
	}
	return n > 0, nil
}

// UpdateFeedbackByID records a vote keyed by the record id. First vote wins.
func (s *SQLiteStore) UpdateFeedbackByID(ctx context.Context, id int64, helpful bool) (bool, error) {
	const q = `
UPDATE conversations
SET    feedback = ?, feedback_timestamp = ?
WHERE  id = ? AND feedback IS NULL`

	res, err := s.db.ExecContext(ctx, q, helpful, time.Now().Unix(), id)
	if err != nil {
		return false, fmt.Errorf("store: update feedback by id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: update feedback rows: %w", err)
	}
	return n > 0, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
