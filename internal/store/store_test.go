package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(signalID, subject string) models.Event {
	return models.Event{
		SignalID:        signalID,
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

func TestInsertEventIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev1 := testEvent("ext-1", "m-1")
	inserted, err := s.InsertEvent(ctx, &ev1)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, ev1.ID)

	ev2 := testEvent("ext-1", "m-1")
	inserted, err = s.InsertEvent(ctx, &ev2)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := s.UnprocessedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClaimUnprocessedIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := testEvent(string(rune('a'+i)), "m-1")
		_, err := s.InsertEvent(ctx, &ev)
		require.NoError(t, err)
	}

	first, err := s.ClaimUnprocessed(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for _, ev := range first {
		assert.True(t, ev.Processed)
	}

	second, err := s.ClaimUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, second, 2)

	// No overlap between the two claims.
	seen := make(map[int64]bool)
	for _, ev := range append(first, second...) {
		assert.False(t, seen[ev.ID])
		seen[ev.ID] = true
	}

	third, err := s.ClaimUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func testIncident() models.Incident {
	return models.Incident{
		SignalCluster: "WEBHOOK_404:abc123",
		RootCause:     "Webhook endpoint misconfiguration",
		Confidence:    0.70,
		PatternCount:  2,
		Observation: models.Observation{
			Patterns: []models.Pattern{{
				Type:             models.PatternErrorCluster,
				ErrorCode:        "WEBHOOK_404",
				AffectedSubjects: 4,
				Severity:         models.SeverityMedium,
			}},
			RawEventCount: 10,
			Summary:       "1 patterns (error_cluster) across 10 events",
		},
		HypothesisSet: models.HypothesisSet{
			Primary: &models.Hypothesis{
				Cause:      "Webhook endpoint misconfiguration",
				Confidence: 0.70,
			},
			Method:   models.MethodHeuristic,
			Patterns: 2,
		},
		Decision: models.Decision{
			RiskLevel:             models.RiskMedium,
			Urgency:               models.UrgencyNormal,
			RequiresHumanApproval: true,
			RecommendedActions: []models.Action{{
				ActionID: "act-embedded",
				Type:     models.ActionIncidentReport,
				Payload:  &models.ReportPayload{Summary: "s", RootCause: "r"},
				Status:   models.StatusPending,
			}},
		},
		EventIDs: []int64{1, 2, 3},
	}
}

func TestIncidentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inc := testIncident()
	require.NoError(t, s.InsertIncident(ctx, &inc))
	require.NotZero(t, inc.ID)

	got, err := s.GetIncident(ctx, inc.ID)
	require.NoError(t, err)

	assert.Equal(t, inc.RootCause, got.RootCause)
	assert.Equal(t, inc.PatternCount, got.PatternCount)
	assert.Len(t, got.Observation.Patterns, 1)
	require.NotNil(t, got.HypothesisSet.Primary)
	assert.Equal(t, "Webhook endpoint misconfiguration", got.HypothesisSet.Primary.Cause)
	assert.Equal(t, []int64{1, 2, 3}, got.EventIDs)
	assert.Equal(t, models.OutcomePendingApproval, got.Outcome)

	// The embedded decision snapshot rebuilds its typed payloads.
	require.Len(t, got.Decision.RecommendedActions, 1)
	_, ok := got.Decision.RecommendedActions[0].Payload.(*models.ReportPayload)
	assert.True(t, ok)
}

func TestGetIncidentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetIncident(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func insertIncidentWithActions(t *testing.T, s *Store, actions ...models.Action) (models.Incident, []models.Action) {
	t.Helper()
	ctx := context.Background()
	inc := testIncident()
	require.NoError(t, s.InsertIncident(ctx, &inc))
	require.NoError(t, s.InsertActions(ctx, inc.ID, actions))
	return inc, actions
}

func pendingAction(id string, confidence float64) models.Action {
	return models.Action{
		ActionID:   id,
		Type:       models.ActionSupportTicket,
		Target:     "support",
		Payload:    &models.TicketPayload{Priority: "P2", ProbableCause: "x"},
		Risk:       models.RiskLow,
		Confidence: confidence,
	}
}

func TestPendingActionsSortedByConfidence(t *testing.T) {
	s := openTestStore(t)
	insertIncidentWithActions(t, s,
		pendingAction("act-low", 0.40),
		pendingAction("act-high", 0.90),
		pendingAction("act-mid", 0.60),
	)

	pending, err := s.PendingActions(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "act-high", pending[0].ActionID)
	assert.Equal(t, "act-mid", pending[1].ActionID)
	assert.Equal(t, "act-low", pending[2].ActionID)
}

func TestReviewActionTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertIncidentWithActions(t, s, pendingAction("act-1", 0.5))

	act, err := s.ReviewAction(ctx, "act-1", true, "alice", "looks right")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, act.Status)
	assert.Equal(t, "alice", act.ReviewedBy)
	require.NotNil(t, act.ReviewedAt)

	// Re-approval of a non-pending action is a conflict, not a no-op.
	_, err = s.ReviewAction(ctx, "act-1", true, "bob", "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.ReviewAction(ctx, "act-missing", true, "alice", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkExecutedRequiresClaim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertIncidentWithActions(t, s, pendingAction("act-1", 0.5), pendingAction("act-2", 0.6))

	// Straight from pending is not allowed, neither claim nor finalise.
	_, err := s.ClaimDispatch(ctx, "act-1")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.MarkExecuted(ctx, "act-1", true, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.ReviewAction(ctx, "act-1", true, "alice", "")
	require.NoError(t, err)

	// Approved but unclaimed cannot be finalised either.
	_, err = s.MarkExecuted(ctx, "act-1", true, "")
	assert.ErrorIs(t, err, ErrConflict)

	act, err := s.ClaimDispatch(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuting, act.Status)

	// The claim is single-winner.
	_, err = s.ClaimDispatch(ctx, "act-1")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.ClaimDispatch(ctx, "act-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	act, err = s.MarkExecuted(ctx, "act-1", true, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, act.Status)
	require.NotNil(t, act.ExecutedAt)

	// Executed is terminal.
	_, err = s.MarkExecuted(ctx, "act-1", true, "")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.ReviewAction(ctx, "act-1", false, "alice", "")
	assert.ErrorIs(t, err, ErrConflict)

	// Failure path records the error.
	_, err = s.ReviewAction(ctx, "act-2", true, "alice", "")
	require.NoError(t, err)
	_, err = s.ClaimDispatch(ctx, "act-2")
	require.NoError(t, err)
	act, err = s.MarkExecuted(ctx, "act-2", false, "adapter exploded")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, act.Status)
	assert.Equal(t, "adapter exploded", act.LastError)
}

func TestRefreshIncidentOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inc, _ := insertIncidentWithActions(t, s, pendingAction("act-1", 0.5), pendingAction("act-2", 0.6))

	outcome, err := s.RefreshIncidentOutcome(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePendingApproval, outcome)

	_, err = s.ReviewAction(ctx, "act-1", true, "alice", "")
	require.NoError(t, err)
	_, err = s.ClaimDispatch(ctx, "act-1")
	require.NoError(t, err)
	_, err = s.MarkExecuted(ctx, "act-1", true, "")
	require.NoError(t, err)
	_, err = s.ReviewAction(ctx, "act-2", false, "alice", "not needed")
	require.NoError(t, err)

	outcome, err = s.RefreshIncidentOutcome(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleted, outcome)

	got, err := s.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleted, got.Outcome)
}

func TestRefreshIncidentOutcomePartialFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inc, _ := insertIncidentWithActions(t, s, pendingAction("act-1", 0.5), pendingAction("act-2", 0.6))

	for _, id := range []string{"act-1", "act-2"} {
		_, err := s.ReviewAction(ctx, id, true, "alice", "")
		require.NoError(t, err)
		_, err = s.ClaimDispatch(ctx, id)
		require.NoError(t, err)
	}
	_, err := s.MarkExecuted(ctx, "act-1", true, "")
	require.NoError(t, err)
	_, err = s.MarkExecuted(ctx, "act-2", false, "boom")
	require.NoError(t, err)

	outcome, err := s.RefreshIncidentOutcome(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePartialFailure, outcome)
}

func TestFeedbackAttachment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inc := testIncident()
	require.NoError(t, s.InsertIncident(ctx, &inc))

	fb := models.Feedback{
		IncidentID:   inc.ID,
		FeedbackType: models.FeedbackWrongCause,
		Reviewer:     "alice",
		Notes:        "actually DNS",
	}
	require.NoError(t, s.AddFeedback(ctx, &fb))
	assert.NotZero(t, fb.ID)

	got, err := s.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, got.Feedback, 1)
	assert.Equal(t, models.FeedbackWrongCause, got.Feedback[0].FeedbackType)

	missing := models.Feedback{IncidentID: 999, FeedbackType: models.FeedbackCorrect, Reviewer: "x"}
	assert.ErrorIs(t, s.AddFeedback(ctx, &missing), ErrNotFound)
}

func TestAuditTrailAppendOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, success := range []bool{true, false, true} {
		entry := models.AuditEntry{
			ActionID:   "act-1",
			ActionType: models.ActionSupportTicket,
			Success:    success,
			Detail:     "attempt",
		}
		require.NoError(t, s.AppendAudit(ctx, &entry))
		assert.Equal(t, int64(i+1), entry.ID)
	}

	entries, err := s.AuditTrail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	assert.Equal(t, int64(3), entries[0].ID)
	assert.False(t, entries[1].Success)
}
