package models

import "time"

// EventType enumerates the normalized signal categories.
type EventType string

const (
	EventTypeAPIError        EventType = "api_error"
	EventTypeWebhookFailure  EventType = "webhook_failure"
	EventTypeSupportTicket   EventType = "support_ticket"
	EventTypeMigrationUpdate EventType = "migration_update"
)

// MigrationStage captures where a subject is in the platform migration.
type MigrationStage string

const (
	StagePreMigration  MigrationStage = "pre_migration"
	StageInProgress    MigrationStage = "in_progress"
	StagePostMigration MigrationStage = "post_migration"
	StageRollback      MigrationStage = "rollback"
	StageUnknown       MigrationStage = "unknown"
)

// Event is the normalized, persisted form of an incoming signal. Immutable
// after ingestion except for the Processed flag, which a detection cycle
// flips exactly once when it claims the event.
type Event struct {
	ID              int64          `json:"id"`
	SignalID        string         `json:"signal_id"`
	EventType       EventType      `json:"event_type"`
	SubjectID       string         `json:"subject_id"`
	MigrationStage  MigrationStage `json:"migration_stage"`
	ErrorCode       string         `json:"error_code,omitempty"`
	HTTPStatus      int            `json:"http_status,omitempty"`
	Endpoint        string         `json:"endpoint,omitempty"`
	OccurrenceCount int            `json:"occurrence_count"`
	Timestamp       time.Time      `json:"timestamp"`
	Detail          string         `json:"detail,omitempty"`
	Source          string         `json:"source"`
	RawPayload      string         `json:"-"`
	Processed       bool           `json:"processed"`
	CreatedAt       time.Time      `json:"created_at"`
}

// KnownEventType reports whether t belongs to the closed event type set.
func KnownEventType(t EventType) bool {
	switch t {
	case EventTypeAPIError, EventTypeWebhookFailure, EventTypeSupportTicket, EventTypeMigrationUpdate:
		return true
	}
	return false
}

// NormalizeStage maps free-form stage strings onto the closed stage set.
func NormalizeStage(raw string) MigrationStage {
	switch MigrationStage(raw) {
	case StagePreMigration, StageInProgress, StagePostMigration, StageRollback:
		return MigrationStage(raw)
	}
	// Legacy producers emit during_migration for the active stage.
	if raw == "during_migration" {
		return StageInProgress
	}
	return StageUnknown
}
