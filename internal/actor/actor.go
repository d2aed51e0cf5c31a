// Package actor enforces the approval gate and dispatches approved actions
// to tool adapters. Status only ever changes through the store's guarded
// transitions; the actor never writes status columns directly.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/metrics"
	"github.com/sentinelstack/migration-sentinel/internal/models"
	"github.com/sentinelstack/migration-sentinel/internal/store"
)

// Toolset is the adapter surface the actor dispatches to. Implementations
// return a detail string describing the produced artifact.
type Toolset interface {
	Escalate(ctx context.Context, p *models.EscalationPayload) (string, error)
	SendCommunication(ctx context.Context, p *models.CommunicationPayload) (string, error)
	FileTicket(ctx context.Context, p *models.TicketPayload) (string, error)
	UpdateKnowledgeBase(ctx context.Context, p *models.KnowledgeBasePayload) (string, error)
	ProposeDocumentation(ctx context.Context, p *models.DocProposalPayload) (string, error)
	RaiseAlert(ctx context.Context, p *models.AlertPayload) (string, error)
	ScheduleMonitoring(ctx context.Context, p *models.MonitoringPayload) (string, error)
	RequestReview(ctx context.Context, p *models.ReviewPayload) (string, error)
	FileReport(ctx context.Context, p *models.ReportPayload) (string, error)
}

// Ledger is the slice of the store the actor needs.
type Ledger interface {
	GetAction(ctx context.Context, actionID string) (models.Action, error)
	ReviewAction(ctx context.Context, actionID string, approve bool, reviewer, feedback string) (models.Action, error)
	ClaimDispatch(ctx context.Context, actionID string) (models.Action, error)
	MarkExecuted(ctx context.Context, actionID string, success bool, execErr string) (models.Action, error)
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	RefreshIncidentOutcome(ctx context.Context, incidentID int64) (models.IncidentOutcome, error)
}

// Actor drives the action lifecycle.
type Actor struct {
	ledger Ledger
	tools  Toolset
	logger *slog.Logger
}

// New creates an Actor.
func New(ledger Ledger, tools Toolset, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{ledger: ledger, tools: tools, logger: logger}
}

// ExecutionResult is the adapter envelope recorded for one dispatch.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ApprovalOutcome reports what an approval call did.
type ApprovalOutcome struct {
	Action models.Action `json:"action"`
	// AwaitingFinalApproval is set when the action was approved but its
	// second confirmation gate has not been passed yet.
	AwaitingFinalApproval bool             `json:"awaiting_final_approval,omitempty"`
	Execution             *ExecutionResult `json:"execution_result,omitempty"`
}

// Approve moves a pending action to approved and, unless a final-approval
// gate is still open, executes it synchronously. For actions carrying the
// final-approval flag the first call only approves; a second call with
// confirmFinal=true dispatches. Any other repeat call is a conflict.
func (a *Actor) Approve(ctx context.Context, actionID, reviewer, feedback string, confirmFinal bool) (ApprovalOutcome, error) {
	act, err := a.ledger.GetAction(ctx, actionID)
	if err != nil {
		return ApprovalOutcome{}, err
	}

	switch {
	case act.Status == models.StatusPending:
		act, err = a.ledger.ReviewAction(ctx, actionID, true, reviewer, feedback)
		if err != nil {
			return ApprovalOutcome{}, err
		}
	case act.Status == models.StatusApproved && act.RequiresFinalApproval && confirmFinal:
		// Second gate confirmation on an already-approved draft. The claim
		// below decides which confirmation wins.
	default:
		return ApprovalOutcome{}, fmt.Errorf("actor: action %s is %s: %w", actionID, act.Status, store.ErrConflict)
	}

	if act.RequiresFinalApproval && !confirmFinal {
		a.logger.Info("action approved, awaiting final confirmation",
			"action_id", actionID, "action_type", act.Type)
		return ApprovalOutcome{Action: act, AwaitingFinalApproval: true}, nil
	}

	// Claim the dispatch before touching any adapter. Concurrent callers that
	// passed the status check above lose here, before anything leaves the
	// process.
	act, err = a.ledger.ClaimDispatch(ctx, actionID)
	if err != nil {
		return ApprovalOutcome{}, err
	}

	result := a.execute(ctx, act)
	act, err = a.ledger.MarkExecuted(ctx, actionID, result.Success, result.Error)
	if err != nil {
		return ApprovalOutcome{}, err
	}
	a.record(ctx, act, result)
	return ApprovalOutcome{Action: act, Execution: &result}, nil
}

// Reject moves a pending action to its terminal rejected state.
func (a *Actor) Reject(ctx context.Context, actionID, reviewer, feedback string) (models.Action, error) {
	act, err := a.ledger.ReviewAction(ctx, actionID, false, reviewer, feedback)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return models.Action{}, err
		}
		return models.Action{}, fmt.Errorf("actor: reject %s: %w", actionID, err)
	}
	a.refreshOutcome(ctx, act.IncidentID)
	return act, nil
}

// execute dispatches one approved action to its adapter. Dispatch is an
// exhaustive switch over the payload variants; an unknown payload is a
// failed execution, not a panic.
func (a *Actor) execute(ctx context.Context, act models.Action) ExecutionResult {
	var (
		detail string
		err    error
	)
	switch p := act.Payload.(type) {
	case *models.EscalationPayload:
		detail, err = a.tools.Escalate(ctx, p)
	case *models.CommunicationPayload:
		detail, err = a.tools.SendCommunication(ctx, p)
	case *models.TicketPayload:
		detail, err = a.tools.FileTicket(ctx, p)
	case *models.KnowledgeBasePayload:
		detail, err = a.tools.UpdateKnowledgeBase(ctx, p)
	case *models.DocProposalPayload:
		detail, err = a.tools.ProposeDocumentation(ctx, p)
	case *models.AlertPayload:
		detail, err = a.tools.RaiseAlert(ctx, p)
	case *models.MonitoringPayload:
		detail, err = a.tools.ScheduleMonitoring(ctx, p)
	case *models.ReviewPayload:
		detail, err = a.tools.RequestReview(ctx, p)
	case *models.ReportPayload:
		detail, err = a.tools.FileReport(ctx, p)
	default:
		err = fmt.Errorf("actor: no adapter for payload %T", act.Payload)
	}

	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}
	}
	return ExecutionResult{Success: true, Detail: detail}
}

// record appends the immutable audit entry and updates derived state. Audit
// failures are logged, never propagated: the execution already happened.
func (a *Actor) record(ctx context.Context, act models.Action, result ExecutionResult) {
	metrics.ObserveActionExecution(string(act.Type), result.Success)

	detail := result.Detail
	if !result.Success {
		detail = result.Error
	}
	entry := models.AuditEntry{
		ActionID:   act.ActionID,
		ActionType: act.Type,
		Success:    result.Success,
		Detail:     detail,
		Timestamp:  time.Now().UTC(),
	}
	if err := a.ledger.AppendAudit(ctx, &entry); err != nil {
		a.logger.Error("audit append failed", "action_id", act.ActionID, "error", err)
	}
	a.refreshOutcome(ctx, act.IncidentID)

	if result.Success {
		a.logger.Info("action executed", "action_id", act.ActionID, "action_type", act.Type)
	} else {
		a.logger.Warn("action execution failed",
			"action_id", act.ActionID, "action_type", act.Type, "error", result.Error)
	}
}

func (a *Actor) refreshOutcome(ctx context.Context, incidentID int64) {
	if incidentID == 0 {
		return
	}
	if _, err := a.ledger.RefreshIncidentOutcome(ctx, incidentID); err != nil {
		a.logger.Error("incident outcome refresh failed", "incident_id", incidentID, "error", err)
	}
}
