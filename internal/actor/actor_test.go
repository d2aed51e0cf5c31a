package actor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstack/migration-sentinel/internal/models"
	"github.com/sentinelstack/migration-sentinel/internal/store"
)

// failingTools fails the action types listed in fail and succeeds otherwise.
type failingTools struct {
	fail map[models.ActionType]bool
}

func (f *failingTools) result(t models.ActionType) (string, error) {
	if f.fail[t] {
		return "", errors.New("adapter unavailable")
	}
	return "done", nil
}

func (f *failingTools) Escalate(ctx context.Context, p *models.EscalationPayload) (string, error) {
	return f.result(models.ActionEngineeringEscalation)
}
func (f *failingTools) SendCommunication(ctx context.Context, p *models.CommunicationPayload) (string, error) {
	return f.result(models.ActionProactiveCommunication)
}
func (f *failingTools) FileTicket(ctx context.Context, p *models.TicketPayload) (string, error) {
	return f.result(models.ActionSupportTicket)
}
func (f *failingTools) UpdateKnowledgeBase(ctx context.Context, p *models.KnowledgeBasePayload) (string, error) {
	return f.result(models.ActionKnowledgeBaseUpdate)
}
func (f *failingTools) ProposeDocumentation(ctx context.Context, p *models.DocProposalPayload) (string, error) {
	return f.result(models.ActionDocumentationProposal)
}
func (f *failingTools) RaiseAlert(ctx context.Context, p *models.AlertPayload) (string, error) {
	return f.result(models.ActionInternalAlert)
}
func (f *failingTools) ScheduleMonitoring(ctx context.Context, p *models.MonitoringPayload) (string, error) {
	return f.result(models.ActionMonitoring)
}
func (f *failingTools) RequestReview(ctx context.Context, p *models.ReviewPayload) (string, error) {
	return f.result(models.ActionHumanReview)
}
func (f *failingTools) FileReport(ctx context.Context, p *models.ReportPayload) (string, error) {
	return f.result(models.ActionIncidentReport)
}

func setupWithTools(t *testing.T, tools Toolset, actions ...models.Action) (*Actor, *store.Store, models.Incident) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "actor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	inc := models.Incident{
		RootCause:    "Webhook endpoint misconfiguration",
		Confidence:   0.70,
		PatternCount: 1,
	}
	require.NoError(t, s.InsertIncident(context.Background(), &inc))
	require.NoError(t, s.InsertActions(context.Background(), inc.ID, actions))

	return New(s, tools, nil), s, inc
}

func setup(t *testing.T, fail map[models.ActionType]bool, actions ...models.Action) (*Actor, *store.Store, models.Incident) {
	t.Helper()
	return setupWithTools(t, &failingTools{fail: fail}, actions...)
}

func ticketAction(id string) models.Action {
	return models.Action{
		ActionID:   id,
		Type:       models.ActionSupportTicket,
		Target:     "support",
		Payload:    &models.TicketPayload{Priority: "P2"},
		Confidence: 0.6,
	}
}

func commAction(id string) models.Action {
	return models.Action{
		ActionID:              id,
		Type:                  models.ActionProactiveCommunication,
		Target:                "merchants",
		Payload:               &models.CommunicationPayload{Channel: "email", MessageTemplate: "hello", SubjectCount: 4},
		Confidence:            0.7,
		RequiresFinalApproval: true,
	}
}

func TestApproveExecutesSynchronously(t *testing.T) {
	a, s, inc := setup(t, nil, ticketAction("act-1"))
	ctx := context.Background()

	outcome, err := a.Approve(ctx, "act-1", "alice", "go ahead", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, outcome.Action.Status)
	require.NotNil(t, outcome.Execution)
	assert.True(t, outcome.Execution.Success)

	entries, err := s.AuditTrail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "act-1", entries[0].ActionID)
	assert.True(t, entries[0].Success)

	got, err := s.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleted, got.Outcome)
}

func TestApproveFailureRecordsAndIsolates(t *testing.T) {
	a, s, inc := setup(t,
		map[models.ActionType]bool{models.ActionSupportTicket: true},
		ticketAction("act-fails"),
		models.Action{
			ActionID:   "act-ok",
			Type:       models.ActionInternalAlert,
			Target:     "ops",
			Payload:    &models.AlertPayload{Channel: "ops", Reason: "r"},
			Confidence: 0.5,
		})
	ctx := context.Background()

	outcome, err := a.Approve(ctx, "act-fails", "alice", "", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, outcome.Action.Status)
	assert.Equal(t, "adapter unavailable", outcome.Action.LastError)
	require.NotNil(t, outcome.Execution)
	assert.False(t, outcome.Execution.Success)

	// Sibling action is untouched and still approvable.
	outcome, err = a.Approve(ctx, "act-ok", "alice", "", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, outcome.Action.Status)

	entries, err := s.AuditTrail(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	got, err := s.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePartialFailure, got.Outcome)
}

func TestRejectIsTerminal(t *testing.T) {
	a, _, _ := setup(t, nil, ticketAction("act-1"))
	ctx := context.Background()

	act, err := a.Reject(ctx, "act-1", "alice", "not needed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, act.Status)
	assert.True(t, act.Status.Terminal())

	_, err = a.Approve(ctx, "act-1", "alice", "", false)
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = a.Reject(ctx, "act-1", "alice", "")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestApproveUnknownAction(t *testing.T) {
	a, _, _ := setup(t, nil)
	_, err := a.Approve(context.Background(), "act-missing", "alice", "", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinalApprovalGate(t *testing.T) {
	a, s, _ := setup(t, nil, commAction("act-comm"))
	ctx := context.Background()

	// First approval only arms the action; nothing is dispatched.
	outcome, err := a.Approve(ctx, "act-comm", "alice", "", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, outcome.Action.Status)
	assert.True(t, outcome.AwaitingFinalApproval)
	assert.Nil(t, outcome.Execution)

	entries, err := s.AuditTrail(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Second call with the confirmation flag dispatches.
	outcome, err = a.Approve(ctx, "act-comm", "alice", "", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, outcome.Action.Status)
	require.NotNil(t, outcome.Execution)
	assert.True(t, outcome.Execution.Success)
}

func TestFinalApprovalSingleCallWithConfirm(t *testing.T) {
	a, _, _ := setup(t, nil, commAction("act-comm"))

	// An operator may confirm up front; one call approves and dispatches.
	outcome, err := a.Approve(context.Background(), "act-comm", "alice", "", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, outcome.Action.Status)
}

// blockingTools parks SendCommunication until released so a test can observe
// the action mid-dispatch.
type blockingTools struct {
	*failingTools
	entered    chan struct{}
	release    chan struct{}
	dispatches atomic.Int32
}

func (b *blockingTools) SendCommunication(ctx context.Context, p *models.CommunicationPayload) (string, error) {
	if b.dispatches.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return "sent", nil
}

func TestFinalConfirmClaimsDispatchExclusively(t *testing.T) {
	tools := &blockingTools{
		failingTools: &failingTools{},
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	a, _, _ := setupWithTools(t, tools, commAction("act-comm"))
	ctx := context.Background()

	_, err := a.Approve(ctx, "act-comm", "alice", "", false)
	require.NoError(t, err)

	done := make(chan ApprovalOutcome, 1)
	errs := make(chan error, 1)
	go func() {
		outcome, err := a.Approve(ctx, "act-comm", "alice", "", true)
		done <- outcome
		errs <- err
	}()
	<-tools.entered

	// The first confirmation is parked inside the adapter. A second
	// confirmation must lose the dispatch claim before it can reach the
	// adapter, not after the message already went out twice.
	_, err = a.Approve(ctx, "act-comm", "bob", "", true)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, int32(1), tools.dispatches.Load())

	close(tools.release)
	outcome := <-done
	require.NoError(t, <-errs)
	assert.Equal(t, models.StatusExecuted, outcome.Action.Status)
	require.NotNil(t, outcome.Execution)
	assert.True(t, outcome.Execution.Success)
}

func TestRepeatApprovalWithoutConfirmIsConflict(t *testing.T) {
	a, _, _ := setup(t, nil, commAction("act-comm"))
	ctx := context.Background()

	_, err := a.Approve(ctx, "act-comm", "alice", "", false)
	require.NoError(t, err)

	// Approved, gate still open, but no confirmation supplied: conflict.
	_, err = a.Approve(ctx, "act-comm", "bob", "", false)
	assert.ErrorIs(t, err, store.ErrConflict)
}
