// Package ingest converts raw wire signals into normalized events. Every
// signal is either normalized or rejected with a reason; nothing is dropped
// silently.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// ErrInvalidSignal marks a signal that failed shape validation.
var ErrInvalidSignal = errors.New("invalid signal")

// Normalize validates one raw signal and converts it to an Event. The
// returned error wraps ErrInvalidSignal for malformed input.
func Normalize(sig models.RawSignal) (models.Event, error) {
	if !knownSignalType(sig.SignalType) {
		return models.Event{}, fmt.Errorf("%w: unknown signal_type %q", ErrInvalidSignal, sig.SignalType)
	}

	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	signalID := sig.SignalID
	if signalID == "" {
		signalID = "sig-" + uuid.NewString()
	}

	raw, err := json.Marshal(sig)
	if err != nil {
		return models.Event{}, fmt.Errorf("%w: marshal payload: %v", ErrInvalidSignal, err)
	}

	ev := models.Event{
		SignalID:        signalID,
		SubjectID:       sig.SubjectID,
		MigrationStage:  models.NormalizeStage(sig.MigrationStage),
		Timestamp:       ts,
		Source:          sig.Source,
		OccurrenceCount: 1,
		RawPayload:      string(raw),
	}

	switch sig.SignalType {
	case models.SignalSupportTicket:
		if sig.SubjectID == "" {
			return models.Event{}, fmt.Errorf("%w: support_ticket requires subject_id", ErrInvalidSignal)
		}
		if sig.TicketID == "" && sig.Description == "" {
			return models.Event{}, fmt.Errorf("%w: support_ticket requires ticket_id or description", ErrInvalidSignal)
		}
		ev.EventType = models.EventTypeSupportTicket
		ev.ErrorCode = sig.ErrorCode
		ev.Detail = firstNonEmpty(sig.Description, sig.Subject)
		if ev.Source == "" {
			ev.Source = "support"
		}

	case models.SignalAPIError:
		if sig.ErrorCode == "" {
			return models.Event{}, fmt.Errorf("%w: api_error requires error_code", ErrInvalidSignal)
		}
		ev.EventType = models.EventTypeAPIError
		ev.ErrorCode = sig.ErrorCode
		ev.Endpoint = sig.Endpoint
		ev.HTTPStatus = sig.HTTPStatus
		ev.Detail = sig.ErrorMessage
		if sig.OccurrenceCount > 0 {
			ev.OccurrenceCount = sig.OccurrenceCount
		}
		if ev.SubjectID == "" {
			ev.SubjectID = "unknown"
		}
		if ev.Source == "" {
			ev.Source = "api"
		}

	case models.SignalWebhookFailure:
		if sig.SubjectID == "" {
			return models.Event{}, fmt.Errorf("%w: webhook_failure requires subject_id", ErrInvalidSignal)
		}
		if sig.WebhookID == "" && sig.FailureReason == "" {
			return models.Event{}, fmt.Errorf("%w: webhook_failure requires webhook_id or failure_reason", ErrInvalidSignal)
		}
		ev.EventType = models.EventTypeWebhookFailure
		ev.ErrorCode = sig.ErrorCode
		ev.Detail = sig.FailureReason
		if ev.Source == "" {
			ev.Source = "webhook"
		}

	case models.SignalMigrationUpdate:
		if sig.SubjectID == "" {
			return models.Event{}, fmt.Errorf("%w: migration_update requires subject_id", ErrInvalidSignal)
		}
		if sig.CurrentStage == "" {
			return models.Event{}, fmt.Errorf("%w: migration_update requires current_stage", ErrInvalidSignal)
		}
		ev.EventType = models.EventTypeMigrationUpdate
		ev.MigrationStage = models.NormalizeStage(sig.CurrentStage)
		ev.Detail = sig.Notes
		if ev.Source == "" {
			ev.Source = "migration"
		}
	}

	return ev, nil
}

// NormalizeBatch processes a batch, splitting it into normalized events and
// per-item rejections that preserve the original index.
func NormalizeBatch(signals []models.RawSignal) ([]models.Event, []models.RejectedSignal) {
	events := make([]models.Event, 0, len(signals))
	rejected := make([]models.RejectedSignal, 0)
	for i, sig := range signals {
		ev, err := Normalize(sig)
		if err != nil {
			rejected = append(rejected, models.RejectedSignal{
				Index:    i,
				SignalID: sig.SignalID,
				Reason:   err.Error(),
			})
			continue
		}
		events = append(events, ev)
	}
	return events, rejected
}

func knownSignalType(t models.SignalType) bool {
	switch t {
	case models.SignalSupportTicket, models.SignalAPIError, models.SignalWebhookFailure, models.SignalMigrationUpdate:
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
