package models

import "time"

// SignalType tags the wire shape of an incoming signal.
type SignalType string

const (
	SignalSupportTicket   SignalType = "support_ticket"
	SignalAPIError        SignalType = "api_error"
	SignalWebhookFailure  SignalType = "webhook_failure"
	SignalMigrationUpdate SignalType = "migration_update"
)

// RawSignal is the ingestion envelope. SignalType selects which of the
// shape-specific fields are meaningful; normalization validates them per
// shape and rejects anything malformed with a reason.
type RawSignal struct {
	SignalID   string     `json:"signal_id"`
	SignalType SignalType `json:"signal_type"`
	Source     string     `json:"source"`
	SubjectID  string     `json:"subject_id"`
	Timestamp  time.Time  `json:"timestamp"`

	MigrationStage string `json:"migration_stage,omitempty"`

	// support_ticket
	TicketID    string   `json:"ticket_id,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// api_error
	ErrorCode       string `json:"error_code,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	HTTPStatus      int    `json:"http_status,omitempty"`
	OccurrenceCount int    `json:"occurrence_count,omitempty"`

	// webhook_failure
	WebhookID     string `json:"webhook_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	RetryCount    int    `json:"retry_count,omitempty"`

	// migration_update
	PreviousStage string `json:"previous_stage,omitempty"`
	CurrentStage  string `json:"current_stage,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// RejectedSignal reports why one signal in a batch was not ingested.
type RejectedSignal struct {
	Index    int    `json:"index"`
	SignalID string `json:"signal_id,omitempty"`
	Reason   string `json:"reason"`
}
