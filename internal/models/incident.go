package models

import "time"

// IncidentOutcome tracks how an incident's actions resolved.
type IncidentOutcome string

const (
	OutcomePendingApproval IncidentOutcome = "pending_approval"
	OutcomeCompleted       IncidentOutcome = "completed"
	OutcomePartialFailure  IncidentOutcome = "partial_failure"
	OutcomeRejected        IncidentOutcome = "rejected"
)

// FeedbackType classifies human feedback on a closed incident.
type FeedbackType string

const (
	FeedbackCorrect    FeedbackType = "correct"
	FeedbackWrongCause FeedbackType = "wrong_cause"
	FeedbackPartial    FeedbackType = "partial"
)

// KnownFeedbackType reports whether t belongs to the closed feedback set.
func KnownFeedbackType(t FeedbackType) bool {
	switch t {
	case FeedbackCorrect, FeedbackWrongCause, FeedbackPartial:
		return true
	}
	return false
}

// Feedback is a human judgement attached to an incident. Recorded only;
// never consumed automatically.
type Feedback struct {
	ID             int64        `json:"id"`
	IncidentID     int64        `json:"incident_id"`
	FeedbackType   FeedbackType `json:"feedback_type"`
	CorrectedCause string       `json:"corrected_cause,omitempty"`
	Reviewer       string       `json:"reviewer"`
	Notes          string       `json:"notes,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Incident is the durable join of one detection cycle's observation,
// hypothesis set, and decision, plus the resulting action outcomes. The
// snapshots are copies taken at decision time; later feedback never mutates
// the recorded reasoning.
type Incident struct {
	ID            int64           `json:"id"`
	SignalCluster string          `json:"signal_cluster"`
	RootCause     string          `json:"root_cause"`
	Confidence    float64         `json:"confidence"`
	PatternCount  int             `json:"pattern_count"`
	Observation   Observation     `json:"observation"`
	HypothesisSet HypothesisSet   `json:"hypothesis_set"`
	Decision      Decision        `json:"decision"`
	EventIDs      []int64         `json:"event_ids,omitempty"`
	Outcome       IncidentOutcome `json:"outcome"`
	CreatedAt     time.Time       `json:"created_at"`
	Feedback      []Feedback      `json:"feedback,omitempty"`
}

// AuditEntry is one immutable record of an execution attempt. The audit
// trail, not individual logs, is the compliance contract.
type AuditEntry struct {
	ID         int64      `json:"id"`
	ActionID   string     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	Success    bool       `json:"success"`
	Detail     string     `json:"detail,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
