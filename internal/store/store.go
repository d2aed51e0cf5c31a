// Package store implements the single authoritative SQLite store for events,
// incidents, actions, feedback, and the audit trail. Each mutation owns its
// own atomicity scope: event claims and action status transitions are single
// guarded statements, never long-lived locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound signals a missing row.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a lifecycle transition attempted from the wrong state.
	ErrConflict = errors.New("lifecycle conflict")
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes multi-statement write transactions
}

// Open opens (creating if needed) the store at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// Single writer; SQLite serializes writes anyway and this avoids
	// SQLITE_BUSY churn under concurrent callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			subject_id TEXT NOT NULL DEFAULT '',
			migration_stage TEXT NOT NULL DEFAULT 'unknown',
			error_code TEXT NOT NULL DEFAULT '',
			http_status INTEGER NOT NULL DEFAULT 0,
			endpoint TEXT NOT NULL DEFAULT '',
			occurrence_count INTEGER NOT NULL DEFAULT 1,
			timestamp TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			raw_payload TEXT NOT NULL DEFAULT '',
			processed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_processed ON events(processed)`,
		`CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_cluster TEXT NOT NULL DEFAULT '',
			root_cause TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			pattern_count INTEGER NOT NULL DEFAULT 0,
			observation_json TEXT NOT NULL DEFAULT '{}',
			hypothesis_json TEXT NOT NULL DEFAULT '{}',
			decision_json TEXT NOT NULL DEFAULT '{}',
			event_ids TEXT NOT NULL DEFAULT '[]',
			outcome TEXT NOT NULL DEFAULT 'pending_approval',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id TEXT NOT NULL UNIQUE,
			incident_id INTEGER NOT NULL REFERENCES incidents(id),
			action_type TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '{}',
			risk TEXT NOT NULL DEFAULT 'low',
			confidence REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			requires_final_approval INTEGER NOT NULL DEFAULT 0,
			reviewed_by TEXT NOT NULL DEFAULT '',
			reviewed_at TEXT,
			feedback TEXT NOT NULL DEFAULT '',
			executed_at TEXT,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_incident ON actions(incident_id)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id INTEGER NOT NULL REFERENCES incidents(id),
			feedback_type TEXT NOT NULL,
			corrected_cause TEXT NOT NULL DEFAULT '',
			reviewer TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			success INTEGER NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate schema: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		// Tolerate second-precision rows written by earlier versions.
		if t2, err2 := time.Parse(time.RFC3339, raw); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func scanNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := decodeTime(ns.String)
	return &t
}

// WithTx runs fn inside a write transaction, serialized against other
// multi-statement writers.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
