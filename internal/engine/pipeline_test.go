package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstack/migration-sentinel/internal/decider"
	"github.com/sentinelstack/migration-sentinel/internal/models"
	"github.com/sentinelstack/migration-sentinel/internal/observer"
	"github.com/sentinelstack/migration-sentinel/internal/reasoner"
	"github.com/sentinelstack/migration-sentinel/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	p := New(s,
		observer.New(3, 10),
		reasoner.New(nil, nil, nil),
		decider.New(0.70, 0.50, 3, 10, nil),
		500, nil)
	return p, s
}

func ingestEvents(t *testing.T, s *store.Store, events ...models.Event) {
	t.Helper()
	for i := range events {
		inserted, err := s.InsertEvent(context.Background(), &events[i])
		require.NoError(t, err)
		require.True(t, inserted)
	}
}

func webhookEvent(i int, subject string) models.Event {
	return models.Event{
		SignalID:        fmt.Sprintf("sig-%d", i),
		EventType:       models.EventTypeAPIError,
		SubjectID:       subject,
		MigrationStage:  models.StagePostMigration,
		ErrorCode:       "WEBHOOK_404",
		HTTPStatus:      404,
		OccurrenceCount: 1,
		Timestamp:       time.Now().UTC(),
		Source:          "api",
	}
}

func TestRunCycleWebhookScenario(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	subjects := []string{"m-1", "m-2", "m-3", "m-4"}
	var events []models.Event
	for i := 0; i < 10; i++ {
		events = append(events, webhookEvent(i, subjects[i%4]))
	}
	ingestEvents(t, s, events...)

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, report.EventsProcessed)
	assert.Equal(t, 2, report.PatternCount)
	assert.Equal(t, "Webhook endpoint misconfiguration", report.RootCause)
	assert.InDelta(t, 0.70, report.Confidence, 1e-9)
	require.NotZero(t, report.IncidentID)

	inc, err := s.GetIncident(ctx, report.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, "Webhook endpoint misconfiguration", inc.RootCause)
	assert.Equal(t, 2, inc.PatternCount)
	assert.True(t, inc.Decision.RequiresHumanApproval)
	assert.Equal(t, models.RiskMedium, inc.Decision.RiskLevel)
	assert.Len(t, inc.EventIDs, 10)

	pending, err := s.PendingActions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, report.ActionsCreated)

	types := make(map[models.ActionType]bool)
	for _, a := range pending {
		types[a.Type] = true
	}
	assert.True(t, types[models.ActionProactiveCommunication])
	assert.True(t, types[models.ActionIncidentReport])

	// All claimed events stay consumed.
	backlog, err := s.UnprocessedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestRunCycleSentinelPersistsNothing(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	ingestEvents(t, s, models.Event{
		SignalID:       "sig-quiet",
		EventType:      models.EventTypeMigrationUpdate,
		SubjectID:      "m-1",
		MigrationStage: models.StageInProgress,
		Timestamp:      time.Now().UTC(),
		Source:         "migration",
	})

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EventsProcessed)
	assert.Zero(t, report.PatternCount)
	assert.Zero(t, report.IncidentID)
	assert.Zero(t, report.ActionsCreated)

	incidents, err := s.ListIncidents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, incidents)

	// The event is consumed even though no incident was created.
	backlog, err := s.UnprocessedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, backlog)
}

func TestRunCycleIdle(t *testing.T) {
	p, _ := newTestPipeline(t)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.EventsProcessed)
	assert.Zero(t, report.IncidentID)
}

func TestRunCycleConsumesEachEventOnce(t *testing.T) {
	p, s := newTestPipeline(t)
	ctx := context.Background()

	var events []models.Event
	for i := 0; i < 6; i++ {
		events = append(events, webhookEvent(i, fmt.Sprintf("m-%d", i%3)))
	}
	ingestEvents(t, s, events...)

	first, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, first.EventsProcessed)

	second, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.EventsProcessed)
}
