package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

func TestNormalizeAPIError(t *testing.T) {
	ev, err := Normalize(models.RawSignal{
		SignalType:      models.SignalAPIError,
		SignalID:        "ext-1",
		SubjectID:       "merchant-1",
		ErrorCode:       "WEBHOOK_404",
		Endpoint:        "/webhooks/orders",
		HTTPStatus:      404,
		OccurrenceCount: 7,
		MigrationStage:  "post_migration",
		ErrorMessage:    "endpoint not found",
	})
	require.NoError(t, err)

	assert.Equal(t, "ext-1", ev.SignalID)
	assert.Equal(t, models.EventTypeAPIError, ev.EventType)
	assert.Equal(t, "WEBHOOK_404", ev.ErrorCode)
	assert.Equal(t, 404, ev.HTTPStatus)
	assert.Equal(t, 7, ev.OccurrenceCount)
	assert.Equal(t, models.StagePostMigration, ev.MigrationStage)
	assert.Equal(t, "api", ev.Source)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNormalizeAPIErrorDefaultsSubject(t *testing.T) {
	ev, err := Normalize(models.RawSignal{
		SignalType: models.SignalAPIError,
		ErrorCode:  "RATE_LIMITED",
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown", ev.SubjectID)
	assert.Equal(t, 1, ev.OccurrenceCount)
}

func TestNormalizeGeneratesSignalID(t *testing.T) {
	ev, err := Normalize(models.RawSignal{
		SignalType: models.SignalAPIError,
		ErrorCode:  "AUTH_401",
	})
	require.NoError(t, err)
	assert.Contains(t, ev.SignalID, "sig-")
}

func TestNormalizeMigrationUpdate(t *testing.T) {
	ev, err := Normalize(models.RawSignal{
		SignalType:   models.SignalMigrationUpdate,
		SubjectID:    "merchant-9",
		CurrentStage: "during_migration",
		Notes:        "cutover started",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeMigrationUpdate, ev.EventType)
	assert.Equal(t, models.StageInProgress, ev.MigrationStage)
	assert.Equal(t, "cutover started", ev.Detail)
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		sig  models.RawSignal
	}{
		{"unknown type", models.RawSignal{SignalType: "pager_duty"}},
		{"api error without code", models.RawSignal{SignalType: models.SignalAPIError}},
		{"ticket without subject", models.RawSignal{SignalType: models.SignalSupportTicket, TicketID: "t-1"}},
		{"webhook without detail", models.RawSignal{SignalType: models.SignalWebhookFailure, SubjectID: "m-1"}},
		{"update without stage", models.RawSignal{SignalType: models.SignalMigrationUpdate, SubjectID: "m-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.sig)
			require.ErrorIs(t, err, ErrInvalidSignal)
		})
	}
}

func TestNormalizeBatchSplitsRejections(t *testing.T) {
	now := time.Now().UTC()
	events, rejected := NormalizeBatch([]models.RawSignal{
		{SignalType: models.SignalAPIError, SignalID: "a", ErrorCode: "AUTH_401", Timestamp: now},
		{SignalType: "bogus", SignalID: "b"},
		{SignalType: models.SignalWebhookFailure, SignalID: "c", SubjectID: "m-2", WebhookID: "wh-1"},
	})

	require.Len(t, events, 2)
	require.Len(t, rejected, 1)
	assert.Equal(t, 1, rejected[0].Index)
	assert.Equal(t, "b", rejected[0].SignalID)
	assert.NotEmpty(t, rejected[0].Reason)
}
