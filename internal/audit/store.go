// Package audit persists connect/disconnect/duplicate-identity events to a
// SQLite database for offline inspection. It is purely observational: the
// dispatcher never reads it back, and nothing here participates in topic
// matching or delivery decisions.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the audit table exists.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS connection_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		remote_addr TEXT,
		kind TEXT NOT NULL,
		recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);`)
	if err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_connection_events_identity
		ON connection_events(identity, recorded_at);`)
	if err != nil {
		return fmt.Errorf("audit: create index: %w", err)
	}
	return nil
}

func (s *Store) insert(identity, remoteAddr, kind string) {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO connection_events (identity, remote_addr, kind) VALUES (?, ?, ?)`,
		identity, remoteAddr, kind)
	if err != nil {
		// Audit failures never affect broker operation; nowhere to report
		// them but stderr would require a logger dependency this package
		// doesn't carry, so they are dropped.
		_ = err
	}
}

// RecordConnect records a successful admission.
func (s *Store) RecordConnect(identity, remoteAddr string) {
	s.insert(identity, remoteAddr, "connect")
}

// RecordDisconnect records a disconnect.
func (s *Store) RecordDisconnect(identity string) {
	s.insert(identity, "", "disconnect")
}

// RecordDuplicate records a rejected duplicate-identity admission attempt.
func (s *Store) RecordDuplicate(identity, remoteAddr string) {
	s.insert(identity, remoteAddr, "duplicate")
}

// Event is one recorded connection event.
type Event struct {
	Identity   string
	RemoteAddr string
	Kind       string
	RecordedAt string
}

// Recent returns the most recent n connection events, newest first, for
// offline inspection tooling.
func (s *Store) Recent(ctx context.Context, n int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, remote_addr, kind, recorded_at FROM connection_events
		 ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var remoteAddr sql.NullString
		if err := rows.Scan(&e.Identity, &remoteAddr, &e.Kind, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.RemoteAddr = remoteAddr.String
		events = append(events, e)
	}
	return events, rows.Err()
}
