// Package history persists completed sessions and classified errors to a
// local sqlite database. Recording is best-effort: callers log failures and
// move on, a broken history file never blocks a conversion.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver

	"vocify/pkg/faults"
	"vocify/pkg/session"
)

// Store wraps the sql.DB connection.
type Store struct {
	*sql.DB
}

// Open opens the database and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			voice TEXT,
			format TEXT,
			chunks INTEGER,
			status TEXT,
			output_path TEXT,
			duration_ms INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS errors (
			id TEXT PRIMARY KEY,
			category TEXT,
			severity TEXT,
			op TEXT,
			message TEXT,
			can_retry BOOLEAN,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_errors_category ON errors(category);`,
	}
	for _, q := range queries {
		if _, err := s.Exec(q); err != nil {
			return fmt.Errorf("query failed: %s: %w", q, err)
		}
	}
	return nil
}

// Entry is one recorded session.
type Entry struct {
	ID         string
	Voice      string
	Format     string
	Chunks     int
	Status     string
	OutputPath string
	Duration   time.Duration
	CreatedAt  time.Time
}

// RecordSession stores the outcome of a finished session.
func (s *Store) RecordSession(sess *session.Session, took time.Duration) error {
	_, err := s.Exec(
		`INSERT OR REPLACE INTO sessions (id, voice, format, chunks, status, output_path, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.VoiceID, sess.OutputFormat, len(sess.Chunks),
		string(sess.Status), sess.OutputPath, took.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// RecordError stores a classified error.
func (s *Store) RecordError(rec *faults.Record) error {
	if rec == nil {
		return nil
	}
	_, err := s.Exec(
		`INSERT OR IGNORE INTO errors (id, category, severity, op, message, can_retry)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Category), string(rec.Severity), rec.Op, rec.UserMessage, rec.CanRetry,
	)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

// RecentSessions returns the newest sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.Query(
		`SELECT id, voice, format, chunks, status, output_path, duration_ms, created_at
		 FROM sessions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.Voice, &e.Format, &e.Chunks, &e.Status,
			&e.OutputPath, &durationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent sessions: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes sessions and errors older than the specified duration.
func (s *Store) Prune(olderThan time.Duration) error {
	// Format time compatible with SQLite DEFAULT CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS)
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	if _, err := s.Exec("DELETE FROM sessions WHERE created_at < ?", deadline); err != nil {
		return err
	}
	_, err := s.Exec("DELETE FROM errors WHERE created_at < ?", deadline)
	return err
}
