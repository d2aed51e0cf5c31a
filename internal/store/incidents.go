package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// InsertIncident persists a detection cycle's incident with immutable JSON
// snapshots of the observation, hypothesis set, and decision.
func (s *Store) InsertIncident(ctx context.Context, inc *models.Incident) error {
	observation, err := json.Marshal(inc.Observation)
	if err != nil {
		return fmt.Errorf("store: encode observation: %w", err)
	}
	hypotheses, err := json.Marshal(inc.HypothesisSet)
	if err != nil {
		return fmt.Errorf("store: encode hypothesis set: %w", err)
	}
	decision, err := json.Marshal(inc.Decision)
	if err != nil {
		return fmt.Errorf("store: encode decision: %w", err)
	}
	eventIDs, err := json.Marshal(inc.EventIDs)
	if err != nil {
		return fmt.Errorf("store: encode event ids: %w", err)
	}

	if inc.Outcome == "" {
		inc.Outcome = models.OutcomePendingApproval
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (signal_cluster, root_cause, confidence, pattern_count,
			observation_json, hypothesis_json, decision_json, event_ids, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.SignalCluster, inc.RootCause, inc.Confidence, inc.PatternCount,
		string(observation), string(hypotheses), string(decision), string(eventIDs),
		inc.Outcome, encodeTime(now))
	if err != nil {
		return fmt.Errorf("store: insert incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert incident: %w", err)
	}
	inc.ID = id
	inc.CreatedAt = now
	return nil
}

// GetIncident loads one incident with its feedback attached.
func (s *Store) GetIncident(ctx context.Context, id int64) (models.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, signal_cluster, root_cause, confidence, pattern_count,
			observation_json, hypothesis_json, decision_json, event_ids, outcome, created_at
		 FROM incidents WHERE id = ?`, id)

	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return models.Incident{}, fmt.Errorf("store: incident %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Incident{}, err
	}

	feedback, err := s.feedbackForIncident(ctx, id)
	if err != nil {
		return models.Incident{}, err
	}
	inc.Feedback = feedback
	return inc, nil
}

// ListIncidents returns the most recent incidents, newest first.
func (s *Store) ListIncidents(ctx context.Context, limit int, minConfidence float64) ([]models.Incident, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signal_cluster, root_cause, confidence, pattern_count,
			observation_json, hypothesis_json, decision_json, event_ids, outcome, created_at
		 FROM incidents WHERE confidence >= ? ORDER BY id DESC LIMIT ?`,
		minConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate incidents: %w", err)
	}
	return incidents, nil
}

// RefreshIncidentOutcome recomputes an incident's outcome from its actions:
// any failure is a partial_failure, everything rejected is rejected, all
// reviews resolved without failure is completed, otherwise the incident
// stays pending_approval.
func (s *Store) RefreshIncidentOutcome(ctx context.Context, incidentID int64) (models.IncidentOutcome, error) {
	actions, err := s.ActionsForIncident(ctx, incidentID)
	if err != nil {
		return "", err
	}

	outcome := models.OutcomePendingApproval
	if len(actions) > 0 {
		failed, rejected, open := 0, 0, 0
		for _, a := range actions {
			switch a.Status {
			case models.StatusFailed:
				failed++
			case models.StatusRejected:
				rejected++
			case models.StatusPending, models.StatusApproved, models.StatusExecuting:
				open++
			}
		}
		switch {
		case open > 0:
			outcome = models.OutcomePendingApproval
		case failed > 0:
			outcome = models.OutcomePartialFailure
		case rejected == len(actions):
			outcome = models.OutcomeRejected
		default:
			outcome = models.OutcomeCompleted
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET outcome = ? WHERE id = ?`, outcome, incidentID); err != nil {
		return "", fmt.Errorf("store: update incident %d outcome: %w", incidentID, err)
	}
	return outcome, nil
}

// AddFeedback attaches a human judgement to an incident.
func (s *Store) AddFeedback(ctx context.Context, fb *models.Feedback) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM incidents WHERE id = ?`, fb.IncidentID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store: incident %d: %w", fb.IncidentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: check incident %d: %w", fb.IncidentID, err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (incident_id, feedback_type, corrected_cause, reviewer, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fb.IncidentID, fb.FeedbackType, fb.CorrectedCause, fb.Reviewer, fb.Notes, encodeTime(now))
	if err != nil {
		return fmt.Errorf("store: insert feedback: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert feedback: %w", err)
	}
	fb.ID = id
	fb.CreatedAt = now
	return nil
}

func (s *Store) feedbackForIncident(ctx context.Context, incidentID int64) ([]models.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, feedback_type, corrected_cause, reviewer, notes, created_at
		 FROM feedback WHERE incident_id = ? ORDER BY id`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("store: select feedback: %w", err)
	}
	defer rows.Close()

	var feedback []models.Feedback
	for rows.Next() {
		var (
			fb        models.Feedback
			createdAt string
		)
		if err := rows.Scan(&fb.ID, &fb.IncidentID, &fb.FeedbackType, &fb.CorrectedCause,
			&fb.Reviewer, &fb.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan feedback: %w", err)
		}
		fb.CreatedAt = decodeTime(createdAt)
		feedback = append(feedback, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate feedback: %w", err)
	}
	return feedback, nil
}

// AppendAudit writes one immutable execution record.
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	success := 0
	if entry.Success {
		success = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (action_id, action_type, success, detail, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ActionID, entry.ActionType, success, entry.Detail, encodeTime(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	entry.ID = id
	return nil
}

// AuditTrail returns the most recent audit entries, newest first.
func (s *Store) AuditTrail(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_id, action_type, success, detail, timestamp
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: select audit trail: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			entry   models.AuditEntry
			success int
			ts      string
		)
		if err := rows.Scan(&entry.ID, &entry.ActionID, &entry.ActionType, &success, &entry.Detail, &ts); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		entry.Success = success != 0
		entry.Timestamp = decodeTime(ts)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit trail: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (models.Incident, error) {
	var (
		inc                                         models.Incident
		observation, hypotheses, decision, eventIDs string
		createdAt                                   string
	)
	if err := row.Scan(&inc.ID, &inc.SignalCluster, &inc.RootCause, &inc.Confidence,
		&inc.PatternCount, &observation, &hypotheses, &decision, &eventIDs,
		&inc.Outcome, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return models.Incident{}, err
		}
		return models.Incident{}, fmt.Errorf("store: scan incident: %w", err)
	}
	if err := json.Unmarshal([]byte(observation), &inc.Observation); err != nil {
		return models.Incident{}, fmt.Errorf("store: decode observation for incident %d: %w", inc.ID, err)
	}
	if err := json.Unmarshal([]byte(hypotheses), &inc.HypothesisSet); err != nil {
		return models.Incident{}, fmt.Errorf("store: decode hypothesis set for incident %d: %w", inc.ID, err)
	}
	if err := json.Unmarshal([]byte(decision), &inc.Decision); err != nil {
		return models.Incident{}, fmt.Errorf("store: decode decision for incident %d: %w", inc.ID, err)
	}
	if err := json.Unmarshal([]byte(eventIDs), &inc.EventIDs); err != nil {
		return models.Incident{}, fmt.Errorf("store: decode event ids for incident %d: %w", inc.ID, err)
	}
	inc.CreatedAt = decodeTime(createdAt)
	return inc, nil
}
