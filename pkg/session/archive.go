package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Archive persists sessions to SQLite before the store drops them, so the
// bounded in-memory map does not mean silent data loss.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS archived_sessions (
	session_id    TEXT NOT NULL,
	reason        TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	last_activity TIMESTAMP NOT NULL,
	messages      TEXT NOT NULL,
	archived_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_sessions_id ON archived_sessions(session_id);
`

// NewArchive opens (or creates) the archive database at path.
func NewArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Save writes one session row. reason records why the store dropped it
// ("expired" or "evicted").
func (a *Archive) Save(sess *Session, reason string) error {
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	_, err = a.db.Exec(
		`INSERT INTO archived_sessions (session_id, reason, created_at, last_activity, messages, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, reason, sess.CreatedAt, sess.LastActivity, string(messages), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert archived session: %w", err)
	}
	return nil
}

// Load returns the most recently archived copy of a session, or false.
func (a *Archive) Load(sessionID string) (*Session, bool, error) {
	row := a.db.QueryRow(
		`SELECT session_id, created_at, last_activity, messages
		 FROM archived_sessions WHERE session_id = ?
		 ORDER BY archived_at DESC LIMIT 1`,
		sessionID,
	)

	var sess Session
	var messages string
	if err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.LastActivity, &messages); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load archived session: %w", err)
	}

	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal archived messages: %w", err)
	}

	return &sess, true, nil
}

// Count returns the number of archived rows.
func (a *Archive) Count() (int, error) {
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM archived_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archived sessions: %w", err)
	}
	return n, nil
}

// Close closes the archive database.
func (a *Archive) Close() error {
	return a.db.Close()
}
