// Package adapters holds the stateless tool adapters the actor dispatches
// approved actions to. Adapters format and hand off artifacts; they carry no
// decision authority and no lifecycle state. Nothing here mutates production
// systems: drafts, tickets, and proposals are emitted for humans to act on.
package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// Tools is the default adapter set. Each method returns a human-readable
// detail string describing the produced artifact, or an error on failure.
type Tools struct {
	logger *slog.Logger
}

// NewTools creates the adapter set.
func NewTools(logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{logger: logger}
}

// Escalate drafts an engineering escalation.
func (t *Tools) Escalate(ctx context.Context, p *models.EscalationPayload) (string, error) {
	ref := "esc-" + uuid.NewString()[:8]
	t.logger.Info("engineering escalation drafted",
		"ref", ref, "priority", p.Priority, "root_cause", p.RootCause)
	return fmt.Sprintf("escalation %s drafted at priority %s for %q", ref, p.Priority, p.RootCause), nil
}

// SendCommunication queues a merchant-facing draft for delivery. The actor
// guarantees final approval happened before this is called.
func (t *Tools) SendCommunication(ctx context.Context, p *models.CommunicationPayload) (string, error) {
	if p.MessageTemplate == "" {
		return "", fmt.Errorf("adapters: communication draft has no message body")
	}
	ref := "comm-" + uuid.NewString()[:8]
	t.logger.Info("proactive communication queued",
		"ref", ref, "channel", p.Channel, "subjects", p.SubjectCount)
	return fmt.Sprintf("communication %s queued on %s for %d subjects", ref, p.Channel, p.SubjectCount), nil
}

// FileTicket drafts an internal support ticket.
func (t *Tools) FileTicket(ctx context.Context, p *models.TicketPayload) (string, error) {
	ref := "tkt-" + uuid.NewString()[:8]
	t.logger.Info("support ticket drafted", "ref", ref, "priority", p.Priority)
	return fmt.Sprintf("ticket %s drafted at %s: %s", ref, p.Priority, p.Reason), nil
}

// UpdateKnowledgeBase drafts a knowledge-base entry.
func (t *Tools) UpdateKnowledgeBase(ctx context.Context, p *models.KnowledgeBasePayload) (string, error) {
	ref := "kb-" + uuid.NewString()[:8]
	t.logger.Info("knowledge base draft created", "ref", ref, "title", p.Title)
	return fmt.Sprintf("knowledge base draft %s: %s", ref, p.Title), nil
}

// ProposeDocumentation drafts a documentation change proposal.
func (t *Tools) ProposeDocumentation(ctx context.Context, p *models.DocProposalPayload) (string, error) {
	ref := "doc-" + uuid.NewString()[:8]
	t.logger.Info("documentation proposal drafted", "ref", ref, "target", p.Target)
	return fmt.Sprintf("documentation proposal %s for %s", ref, p.Target), nil
}

// RaiseAlert posts an internal alert.
func (t *Tools) RaiseAlert(ctx context.Context, p *models.AlertPayload) (string, error) {
	t.logger.Warn("internal alert raised", "channel", p.Channel, "reason", p.Reason)
	return fmt.Sprintf("alert posted to %s: %s", p.Channel, p.Reason), nil
}

// ScheduleMonitoring records a continue-monitoring note.
func (t *Tools) ScheduleMonitoring(ctx context.Context, p *models.MonitoringPayload) (string, error) {
	return fmt.Sprintf("monitoring continued: %s", p.Suggested), nil
}

// RequestReview queues a human review request.
func (t *Tools) RequestReview(ctx context.Context, p *models.ReviewPayload) (string, error) {
	ref := "rev-" + uuid.NewString()[:8]
	t.logger.Info("human review requested", "ref", ref, "confidence", p.Confidence)
	return fmt.Sprintf("review %s requested: %s", ref, p.Reason), nil
}

// FileReport records the incident report artifact.
func (t *Tools) FileReport(ctx context.Context, p *models.ReportPayload) (string, error) {
	ref := "rpt-" + uuid.NewString()[:8]
	return fmt.Sprintf("incident report %s filed (%s, severity %s)", ref, p.RootCause, p.Severity), nil
}
