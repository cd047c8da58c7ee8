// Package sessionlog keeps a write-only audit trail of each session: the
// turns exchanged and the directives executed. It is never read back into
// the conversation; its only consumer is a human with a sqlite shell.
package sessionlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is an append-only sqlite log.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the audit database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("session log path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare session log dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	role TEXT NOT NULL,
	chars INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init turns schema: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	kind TEXT NOT NULL,
	ok INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	output_bytes INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init executions schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// RecordTurn logs one conversation turn's role and size.
func (s *Store) RecordTurn(session, role string, chars int) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO turns (session, role, chars, created_at) VALUES (?, ?, ?, ?)`,
		session, role, chars, time.Now())
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// RecordExecution logs one dispatched directive.
func (s *Store) RecordExecution(session, kind string, ok bool, dur time.Duration, outputBytes int) error {
	okFlag := 0
	if ok {
		okFlag = 1
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO executions (session, kind, ok, duration_ms, output_bytes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session, kind, okFlag, dur.Milliseconds(), outputBytes, time.Now())
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
