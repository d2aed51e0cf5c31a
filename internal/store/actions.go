package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

const actionColumns = `action_id, incident_id, action_type, target, payload, risk, confidence,
	status, requires_final_approval, reviewed_by, reviewed_at, feedback, executed_at,
	last_error, created_at`

// InsertActions persists a decision's candidate actions in pending state.
func (s *Store) InsertActions(ctx context.Context, incidentID int64, actions []models.Action) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range actions {
			a := &actions[i]
			payload, err := json.Marshal(a.Payload)
			if err != nil {
				return fmt.Errorf("store: encode payload for %s: %w", a.ActionID, err)
			}
			now := time.Now().UTC()
			requiresFinal := 0
			if a.RequiresFinalApproval {
				requiresFinal = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO actions (action_id, incident_id, action_type, target, payload,
					risk, confidence, status, requires_final_approval, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
				a.ActionID, incidentID, a.Type, a.Target, string(payload),
				a.Risk, a.Confidence, requiresFinal, encodeTime(now),
			); err != nil {
				return fmt.Errorf("store: insert action %s: %w", a.ActionID, err)
			}
			a.IncidentID = incidentID
			a.Status = models.StatusPending
			a.CreatedAt = now
		}
		return nil
	})
}

// PendingActions lists actions awaiting review, highest confidence first.
func (s *Store) PendingActions(ctx context.Context) ([]models.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE status = 'pending'
		 ORDER BY confidence DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: select pending actions: %w", err)
	}
	return scanActions(rows)
}

// GetAction loads one action by its public identifier.
func (s *Store) GetAction(ctx context.Context, actionID string) (models.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE action_id = ?`, actionID)
	if err != nil {
		return models.Action{}, fmt.Errorf("store: select action %s: %w", actionID, err)
	}
	actions, err := scanActions(rows)
	if err != nil {
		return models.Action{}, err
	}
	if len(actions) == 0 {
		return models.Action{}, fmt.Errorf("store: action %s: %w", actionID, ErrNotFound)
	}
	return actions[0], nil
}

// ActionsForIncident lists every action attached to an incident.
func (s *Store) ActionsForIncident(ctx context.Context, incidentID int64) ([]models.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE incident_id = ? ORDER BY id`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("store: select incident actions: %w", err)
	}
	return scanActions(rows)
}

// ReviewAction transitions a pending action to approved or rejected. The
// status guard in the UPDATE makes the transition first-writer-wins: a row
// that already left pending yields ErrConflict, a missing row ErrNotFound.
func (s *Store) ReviewAction(ctx context.Context, actionID string, approve bool, reviewer, feedback string) (models.Action, error) {
	next := models.StatusRejected
	if approve {
		next = models.StatusApproved
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, reviewed_by = ?, reviewed_at = ?, feedback = ?
		 WHERE action_id = ? AND status = 'pending'`,
		next, reviewer, encodeTime(time.Now().UTC()), feedback, actionID)
	if err != nil {
		return models.Action{}, fmt.Errorf("store: review action %s: %w", actionID, err)
	}
	if err := s.requireTransition(ctx, res, actionID); err != nil {
		return models.Action{}, err
	}
	return s.GetAction(ctx, actionID)
}

// ClaimDispatch reserves an approved action for dispatch by moving it to
// executing. The status guard makes the claim first-writer-wins: exactly one
// caller may run the adapter, every racer gets ErrConflict before anything
// external happens.
func (s *Store) ClaimDispatch(ctx context.Context, actionID string) (models.Action, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = 'executing'
		 WHERE action_id = ? AND status = 'approved'`, actionID)
	if err != nil {
		return models.Action{}, fmt.Errorf("store: claim dispatch %s: %w", actionID, err)
	}
	if err := s.requireTransition(ctx, res, actionID); err != nil {
		return models.Action{}, err
	}
	return s.GetAction(ctx, actionID)
}

// MarkExecuted finalises a claimed action after dispatch. success=false
// records the failure reason and moves the action to failed.
func (s *Store) MarkExecuted(ctx context.Context, actionID string, success bool, execErr string) (models.Action, error) {
	next := models.StatusFailed
	if success {
		next = models.StatusExecuted
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, executed_at = ?, last_error = ?
		 WHERE action_id = ? AND status = 'executing'`,
		next, encodeTime(time.Now().UTC()), execErr, actionID)
	if err != nil {
		return models.Action{}, fmt.Errorf("store: mark executed %s: %w", actionID, err)
	}
	if err := s.requireTransition(ctx, res, actionID); err != nil {
		return models.Action{}, err
	}
	return s.GetAction(ctx, actionID)
}

// requireTransition distinguishes a guarded UPDATE that matched no rows into
// "row absent" versus "row in the wrong state".
func (s *Store) requireTransition(ctx context.Context, res sql.Result, actionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected for %s: %w", actionID, err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM actions WHERE action_id = ?`, actionID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store: action %s: %w", actionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: check action %s: %w", actionID, err)
	}
	return fmt.Errorf("store: action %s is %s: %w", actionID, status, ErrConflict)
}

func scanActions(rows *sql.Rows) ([]models.Action, error) {
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		var (
			a                      models.Action
			payload                string
			requiresFinal          int
			reviewedAt, executedAt sql.NullString
			createdAt              string
		)
		if err := rows.Scan(&a.ActionID, &a.IncidentID, &a.Type, &a.Target, &payload,
			&a.Risk, &a.Confidence, &a.Status, &requiresFinal, &a.ReviewedBy,
			&reviewedAt, &a.Feedback, &executedAt, &a.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan action: %w", err)
		}
		p, err := models.DecodePayload(a.Type, []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("store: action %s: %w", a.ActionID, err)
		}
		a.Payload = p
		a.RequiresFinalApproval = requiresFinal != 0
		a.ReviewedAt = scanNullableTime(reviewedAt)
		a.ExecutedAt = scanNullableTime(executedAt)
		a.CreatedAt = decodeTime(createdAt)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate actions: %w", err)
	}
	return actions, nil
}
