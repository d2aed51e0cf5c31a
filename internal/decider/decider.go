// Package decider evaluates a deterministic safety-and-risk policy over a
// hypothesis set and its observation. The policy is a strict precedence
// table; the safety invariant is re-applied to every decision before it is
// returned, regardless of which branch (or which reasoning backend) produced
// it.
package decider

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// Decider holds the policy thresholds and the communication template pack.
type Decider struct {
	confidenceHigh      float64
	confidenceMedium    float64
	significantSubjects int
	urgentSubjects      int
	templates           *TemplatePack
}

// New creates a Decider. Zero-valued thresholds fall back to defaults.
func New(confidenceHigh, confidenceMedium float64, significantSubjects, urgentSubjects int, templates *TemplatePack) *Decider {
	if confidenceHigh <= 0 {
		confidenceHigh = 0.70
	}
	if confidenceMedium <= 0 {
		confidenceMedium = 0.50
	}
	if significantSubjects <= 0 {
		significantSubjects = 3
	}
	if urgentSubjects <= 0 {
		urgentSubjects = 10
	}
	if templates == nil {
		templates = defaultTemplates()
	}
	return &Decider{
		confidenceHigh:      confidenceHigh,
		confidenceMedium:    confidenceMedium,
		significantSubjects: significantSubjects,
		urgentSubjects:      urgentSubjects,
		templates:           templates,
	}
}

// Decide evaluates the policy table in precedence order and returns the
// resulting decision. The safety correction runs on the single return path,
// so no caller can observe an uncorrected decision.
func (d *Decider) Decide(set models.HypothesisSet, obs models.Observation) models.Decision {
	confidence := set.PrimaryConfidence()
	cause := primaryCause(set)
	subjects := maxAffectedSubjects(obs)
	checkout := checkoutImpact(set, obs)

	decision := models.Decision{
		RecommendedActions: []models.Action{},
		EstimatedImpact:    d.estimateImpact(subjects, checkout),
		ReasoningSummary: models.ReasoningSummary{
			PrimaryCause: cause,
			Confidence:   confidence,
			KeyEvidence:  primaryEvidence(set),
		},
		BlastRadius: d.blastRadius(subjects, checkout),
	}

	switch {
	case checkout && confidence >= d.confidenceMedium:
		decision.RiskLevel = models.RiskHigh
		decision.Urgency = models.UrgencyUrgent
		decision.RequiresHumanApproval = true
		decision.RecommendedActions = append(decision.RecommendedActions,
			d.escalation("P0", cause, confidence, subjects))
		if subjects >= d.significantSubjects {
			decision.RecommendedActions = append(decision.RecommendedActions,
				d.communication(cause, subjects))
		}

	case confidence >= d.confidenceHigh:
		decision.RiskLevel = models.RiskMedium
		decision.Urgency = d.urgencyFor(subjects)
		decision.RequiresHumanApproval = true
		decision.RecommendedActions = append(decision.RecommendedActions,
			d.knowledgeBase(cause))
		if subjects >= d.significantSubjects {
			decision.RecommendedActions = append(decision.RecommendedActions,
				d.communication(cause, subjects))
		}

	case confidence >= d.confidenceMedium:
		decision.RiskLevel = models.RiskMedium
		decision.Urgency = d.urgencyFor(subjects)
		decision.RequiresHumanApproval = true
		decision.RecommendedActions = append(decision.RecommendedActions,
			d.ticket(cause, confidence, subjects))
		if subjects >= d.significantSubjects {
			decision.RecommendedActions = append(decision.RecommendedActions,
				d.alert(cause, subjects))
		}

	default:
		decision.RiskLevel = models.RiskLow
		decision.Urgency = models.UrgencyLow
		decision.RequiresHumanApproval = false
		decision.RecommendedActions = append(decision.RecommendedActions,
			d.review(cause, confidence, set.Unknowns),
			d.monitoring(len(obs.Patterns)))
	}

	decision.RecommendedActions = append(decision.RecommendedActions,
		d.report(cause, confidence, subjects, obs))

	return d.enforceSafety(decision, subjects, checkout)
}

// enforceSafety applies the non-bypassable invariant: approval is mandatory
// on checkout/payment impact or significant subject count, and checkout risk
// is never classified below high. Every decision passes through here exactly
// once, as the final step of Decide.
func (d *Decider) enforceSafety(decision models.Decision, subjects int, checkout bool) models.Decision {
	if checkout || subjects >= d.significantSubjects {
		decision.RequiresHumanApproval = true
	}
	if checkout && decision.ReasoningSummary.Confidence >= d.confidenceMedium {
		if decision.RiskLevel == models.RiskLow || decision.RiskLevel == models.RiskMedium {
			decision.RiskLevel = models.RiskHigh
		}
		if decision.Urgency == models.UrgencyLow || decision.Urgency == models.UrgencyNormal {
			decision.Urgency = models.UrgencyUrgent
		}
	}
	// The second confirmation gate travels with the action type itself.
	for i := range decision.RecommendedActions {
		if decision.RecommendedActions[i].Type == models.ActionProactiveCommunication {
			decision.RecommendedActions[i].RequiresFinalApproval = true
		}
	}
	return decision
}

func (d *Decider) urgencyFor(subjects int) models.Urgency {
	if subjects >= d.urgentSubjects {
		return models.UrgencyUrgent
	}
	return models.UrgencyNormal
}

func (d *Decider) blastRadius(subjects int, checkout bool) string {
	switch {
	case checkout && subjects >= d.significantSubjects:
		return "critical - widespread revenue impact"
	case subjects >= d.urgentSubjects:
		return "high - many merchants affected"
	case subjects >= d.significantSubjects:
		return "medium - multiple merchants"
	default:
		return "low - isolated incidents"
	}
}

func (d *Decider) estimateImpact(subjects int, checkout bool) models.EstimatedImpact {
	revenue := "low"
	if checkout {
		revenue = "high"
	}
	tickets := "normal"
	switch {
	case subjects >= d.urgentSubjects:
		tickets = "high"
	case subjects >= d.significantSubjects:
		tickets = "elevated"
	}
	return models.EstimatedImpact{
		SubjectsAffected:    subjects,
		RevenueImpact:       revenue,
		SupportTicketVolume: tickets,
	}
}

func (d *Decider) escalation(priority, cause string, confidence float64, subjects int) models.Action {
	return newAction(models.ActionEngineeringEscalation, "engineering", models.RiskHigh, confidence,
		&models.EscalationPayload{
			Priority:         priority,
			Reason:           fmt.Sprintf("Revenue-affecting incident: %s", cause),
			RootCause:        cause,
			Confidence:       confidence,
			AffectedSubjects: subjects,
		})
}

func (d *Decider) communication(cause string, subjects int) models.Action {
	t := d.templates.Lookup(cause)
	a := newAction(models.ActionProactiveCommunication, "merchants", models.RiskMedium, 0,
		&models.CommunicationPayload{
			Channel:             t.Channel,
			MessageTemplate:     t.MessageTemplate,
			SubjectCount:        subjects,
			RootCause:           cause,
			ResolutionETA:       t.ResolutionETA,
			WorkaroundAvailable: t.WorkaroundAvailable,
		})
	a.RequiresFinalApproval = true
	return a
}

func (d *Decider) knowledgeBase(cause string) models.Action {
	return newAction(models.ActionKnowledgeBaseUpdate, "knowledge-base", models.RiskLow, 0,
		&models.KnowledgeBasePayload{
			Title:    fmt.Sprintf("Known issue: %s", cause),
			Category: "migration",
			Priority: "normal",
		})
}

func (d *Decider) ticket(cause string, confidence float64, subjects int) models.Action {
	return newAction(models.ActionSupportTicket, "support", models.RiskLow, confidence,
		&models.TicketPayload{
			Priority:      "P2",
			Reason:        "Clustered failures require support triage",
			ProbableCause: cause,
			Confidence:    confidence,
			SubjectCount:  subjects,
		})
}

func (d *Decider) alert(cause string, subjects int) models.Action {
	return newAction(models.ActionInternalAlert, "ops-channel", models.RiskLow, 0,
		&models.AlertPayload{
			Channel: "ops",
			Target:  "migration-ops",
			Reason:  fmt.Sprintf("%s affecting %d subjects", cause, subjects),
		})
}

func (d *Decider) review(cause string, confidence float64, unknowns []string) models.Action {
	return newAction(models.ActionHumanReview, "on-call", models.RiskLow, confidence,
		&models.ReviewPayload{
			Reason:     fmt.Sprintf("Low-confidence analysis: %s", cause),
			Confidence: confidence,
			Unknowns:   unknowns,
		})
}

func (d *Decider) monitoring(patternCount int) models.Action {
	return newAction(models.ActionMonitoring, "observer", models.RiskLow, 0,
		&models.MonitoringPayload{
			Reason:       "Signals insufficient for a confident diagnosis",
			PatternCount: patternCount,
			Suggested:    "continue monitoring and re-evaluate next cycle",
		})
}

func (d *Decider) report(cause string, confidence float64, subjects int, obs models.Observation) models.Action {
	severity := "low"
	switch {
	case obs.SeverityBreakdown.Critical > 0:
		severity = "critical"
	case obs.SeverityBreakdown.High > 0:
		severity = "high"
	case obs.SeverityBreakdown.Medium > 0:
		severity = "medium"
	}
	return newAction(models.ActionIncidentReport, "audit", models.RiskLow, confidence,
		&models.ReportPayload{
			Summary:          obs.Summary,
			RootCause:        cause,
			Confidence:       confidence,
			SubjectsAffected: subjects,
			Severity:         severity,
		})
}

func newAction(t models.ActionType, target string, risk models.RiskLevel, confidence float64, payload models.ActionPayload) models.Action {
	return models.Action{
		ActionID:   "act-" + uuid.NewString(),
		Type:       t,
		Target:     target,
		Payload:    payload,
		Risk:       risk,
		Confidence: confidence,
		Status:     models.StatusPending,
	}
}

func primaryCause(set models.HypothesisSet) string {
	if set.Primary == nil {
		return "unknown"
	}
	return set.Primary.Cause
}

func primaryEvidence(set models.HypothesisSet) []string {
	if set.Primary == nil {
		return nil
	}
	return set.Primary.Evidence
}

// maxAffectedSubjects returns the largest subject footprint across patterns.
func maxAffectedSubjects(obs models.Observation) int {
	max := 0
	for _, p := range obs.Patterns {
		if p.AffectedSubjects > max {
			max = p.AffectedSubjects
		}
	}
	return max
}

// checkoutImpact reports whether the hypothesis or any pattern names the
// purchase flow.
func checkoutImpact(set models.HypothesisSet, obs models.Observation) bool {
	if set.Primary != nil {
		cause := strings.ToLower(set.Primary.Cause)
		if strings.Contains(cause, "checkout") || strings.Contains(cause, "payment") {
			return true
		}
	}
	for _, p := range obs.Patterns {
		code := strings.ToUpper(p.ErrorCode)
		if strings.Contains(code, "CHECKOUT") || strings.Contains(code, "PAYMENT") {
			return true
		}
	}
	return false
}
