package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

const eventColumns = `id, signal_id, event_type, subject_id, migration_stage, error_code,
	http_status, endpoint, occurrence_count, timestamp, detail, source, raw_payload,
	processed, created_at`

// InsertEvent persists one normalized event. A duplicate signal_id is not an
// error: the original row wins and inserted reports false.
func (s *Store) InsertEvent(ctx context.Context, ev *models.Event) (inserted bool, err error) {
	now := encodeTime(ev.Timestamp)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (signal_id, event_type, subject_id, migration_stage, error_code,
			http_status, endpoint, occurrence_count, timestamp, detail, source, raw_payload,
			processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		ev.SignalID, ev.EventType, ev.SubjectID, ev.MigrationStage, ev.ErrorCode,
		ev.HTTPStatus, ev.Endpoint, ev.OccurrenceCount, now, ev.Detail, ev.Source,
		ev.RawPayload, now,
	)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return false, nil
		}
		return false, fmt.Errorf("store: insert event %s: %w", ev.SignalID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("store: insert event %s: %w", ev.SignalID, err)
	}
	ev.ID = id
	ev.CreatedAt = decodeTime(now)
	return true, nil
}

// InsertEvents persists a batch, returning the count of newly stored events.
// Duplicates are skipped, not failed.
func (s *Store) InsertEvents(ctx context.Context, events []models.Event) (int, error) {
	stored := 0
	for i := range events {
		inserted, err := s.InsertEvent(ctx, &events[i])
		if err != nil {
			return stored, err
		}
		if inserted {
			stored++
		}
	}
	return stored, nil
}

// ClaimUnprocessed atomically selects up to limit unprocessed events in
// arrival order and marks them processed. Two concurrent callers never
// receive the same event.
func (s *Store) ClaimUnprocessed(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var claimed []models.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM events WHERE processed = 0 ORDER BY id LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("store: select unprocessed: %w", err)
		}
		claimed, err = scanEvents(rows)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, len(claimed))
		args := make([]any, len(claimed))
		for i, ev := range claimed {
			ids[i] = "?"
			args[i] = ev.ID
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET processed = 1 WHERE id IN (`+strings.Join(ids, ",")+`) AND processed = 0`, args...)
		if err != nil {
			return fmt.Errorf("store: claim events: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: claim events: %w", err)
		}
		if int(n) != len(claimed) {
			return fmt.Errorf("store: claim events: expected %d rows, flipped %d", len(claimed), n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range claimed {
		claimed[i].Processed = true
	}
	return claimed, nil
}

// UnprocessedCount reports the current ingestion backlog.
func (s *Store) UnprocessedCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE processed = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count unprocessed: %w", err)
	}
	return n, nil
}

// GetEventsByIDs loads specific events, typically an incident's cluster.
func (s *Store) GetEventsByIDs(ctx context.Context, ids []int64) ([]models.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select events by id: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			ev            models.Event
			ts, createdAt string
			processed     int
		)
		if err := rows.Scan(&ev.ID, &ev.SignalID, &ev.EventType, &ev.SubjectID,
			&ev.MigrationStage, &ev.ErrorCode, &ev.HTTPStatus, &ev.Endpoint,
			&ev.OccurrenceCount, &ts, &ev.Detail, &ev.Source, &ev.RawPayload,
			&processed, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.Timestamp = decodeTime(ts)
		ev.CreatedAt = decodeTime(createdAt)
		ev.Processed = processed != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate events: %w", err)
	}
	return events, nil
}
