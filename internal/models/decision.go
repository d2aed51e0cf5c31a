package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType enumerates the closed set of remediation candidates.
type ActionType string

const (
	ActionEngineeringEscalation  ActionType = "engineering_escalation"
	ActionProactiveCommunication ActionType = "proactive_communication"
	ActionSupportTicket          ActionType = "support_ticket"
	ActionKnowledgeBaseUpdate    ActionType = "knowledge_base_update"
	ActionDocumentationProposal  ActionType = "documentation_proposal"
	ActionInternalAlert          ActionType = "internal_alert"
	ActionMonitoring             ActionType = "monitoring"
	ActionHumanReview            ActionType = "human_review"
	ActionIncidentReport         ActionType = "incident_report"
)

// ActionStatus tracks the lifecycle of one candidate action.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	// StatusExecuting marks an approved action claimed for dispatch; it is
	// held only for the duration of the adapter call.
	StatusExecuting ActionStatus = "executing"
	StatusRejected  ActionStatus = "rejected"
	StatusExecuted  ActionStatus = "executed"
	StatusFailed    ActionStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s ActionStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// RiskLevel classifies decision risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Urgency classifies decision urgency.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// ActionPayload is the typed payload attached to an action. Each ActionType
// has exactly one payload variant; dispatch is by exhaustive type switch,
// never by string-keyed lookup.
type ActionPayload interface {
	actionPayload()
}

// EscalationPayload backs engineering_escalation actions.
type EscalationPayload struct {
	Priority         string  `json:"priority"`
	Reason           string  `json:"reason"`
	RootCause        string  `json:"root_cause"`
	Confidence       float64 `json:"confidence"`
	AffectedSubjects int     `json:"affected_subjects"`
}

// CommunicationPayload backs proactive_communication drafts. Drafts only;
// nothing is sent without the final approval gate.
type CommunicationPayload struct {
	Channel             string `json:"channel"`
	MessageTemplate     string `json:"message_template"`
	SubjectCount        int    `json:"subject_count"`
	RootCause           string `json:"root_cause"`
	ResolutionETA       string `json:"resolution_eta,omitempty"`
	WorkaroundAvailable bool   `json:"workaround_available"`
}

// TicketPayload backs support_ticket actions.
type TicketPayload struct {
	Priority      string  `json:"priority"`
	Reason        string  `json:"reason"`
	ProbableCause string  `json:"probable_cause"`
	Confidence    float64 `json:"confidence"`
	SubjectCount  int     `json:"subject_count"`
}

// KnowledgeBasePayload backs knowledge_base_update actions.
type KnowledgeBasePayload struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// DocProposalPayload backs documentation_proposal actions.
type DocProposalPayload struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// AlertPayload backs internal_alert actions.
type AlertPayload struct {
	Channel string `json:"channel"`
	Target  string `json:"target"`
	Reason  string `json:"reason"`
}

// MonitoringPayload backs monitoring actions.
type MonitoringPayload struct {
	Reason       string `json:"reason"`
	PatternCount int    `json:"pattern_count"`
	Suggested    string `json:"suggested_action"`
}

// ReviewPayload backs human_review actions.
type ReviewPayload struct {
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Unknowns   []string `json:"unknowns,omitempty"`
}

// ReportPayload backs the unconditional incident_report audit artifact.
type ReportPayload struct {
	Summary          string  `json:"summary"`
	RootCause        string  `json:"root_cause"`
	Confidence       float64 `json:"confidence"`
	SubjectsAffected int     `json:"subjects_affected"`
	Severity         string  `json:"severity"`
}

func (EscalationPayload) actionPayload()    {}
func (CommunicationPayload) actionPayload() {}
func (TicketPayload) actionPayload()        {}
func (KnowledgeBasePayload) actionPayload() {}
func (DocProposalPayload) actionPayload()   {}
func (AlertPayload) actionPayload()         {}
func (MonitoringPayload) actionPayload()    {}
func (ReviewPayload) actionPayload()        {}
func (ReportPayload) actionPayload()        {}

// DecodePayload reconstructs the typed payload for an action type from its
// JSON form. Unknown types are a contract violation.
func DecodePayload(t ActionType, raw []byte) (ActionPayload, error) {
	decode := func(v ActionPayload) (ActionPayload, error) {
		if len(raw) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	}

	switch t {
	case ActionEngineeringEscalation:
		return decode(&EscalationPayload{})
	case ActionProactiveCommunication:
		return decode(&CommunicationPayload{})
	case ActionSupportTicket:
		return decode(&TicketPayload{})
	case ActionKnowledgeBaseUpdate:
		return decode(&KnowledgeBasePayload{})
	case ActionDocumentationProposal:
		return decode(&DocProposalPayload{})
	case ActionInternalAlert:
		return decode(&AlertPayload{})
	case ActionMonitoring:
		return decode(&MonitoringPayload{})
	case ActionHumanReview:
		return decode(&ReviewPayload{})
	case ActionIncidentReport:
		return decode(&ReportPayload{})
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

// Action is one candidate remediation tracked through the approval gate.
type Action struct {
	ActionID              string        `json:"action_id"`
	IncidentID            int64         `json:"incident_id,omitempty"`
	Type                  ActionType    `json:"action_type"`
	Target                string        `json:"target"`
	Payload               ActionPayload `json:"payload,omitempty"`
	Risk                  RiskLevel     `json:"risk"`
	Confidence            float64       `json:"confidence"`
	Status                ActionStatus  `json:"status"`
	RequiresFinalApproval bool          `json:"requires_final_approval,omitempty"`
	ReviewedBy            string        `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time    `json:"reviewed_at,omitempty"`
	Feedback              string        `json:"feedback,omitempty"`
	ExecutedAt            *time.Time    `json:"executed_at,omitempty"`
	LastError             string        `json:"last_error,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// UnmarshalJSON rebuilds the typed payload from the action_type discriminator.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	aux := struct {
		*plain
		Payload json.RawMessage `json:"payload,omitempty"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) > 0 && string(aux.Payload) != "null" {
		p, err := DecodePayload(a.Type, aux.Payload)
		if err != nil {
			return err
		}
		a.Payload = p
	}
	return nil
}

// EstimatedImpact summarises the blast the decision is reacting to.
type EstimatedImpact struct {
	SubjectsAffected    int    `json:"subjects_affected"`
	RevenueImpact       string `json:"revenue_impact"`
	SupportTicketVolume string `json:"support_ticket_volume"`
}

// ReasoningSummary snapshots the hypothesis the decision was based on.
type ReasoningSummary struct {
	PrimaryCause string   `json:"primary_cause"`
	Confidence   float64  `json:"confidence"`
	KeyEvidence  []string `json:"key_evidence,omitempty"`
}

// Decision is the policy-evaluated set of candidate actions plus risk and
// approval metadata. RequiresHumanApproval must be true whenever checkout or
// payment impact is present or the affected-subject count is significant; a
// decision violating that is corrected before it leaves the decider.
type Decision struct {
	RecommendedActions    []Action         `json:"recommended_actions"`
	RiskLevel             RiskLevel        `json:"risk_level"`
	Urgency               Urgency          `json:"urgency"`
	RequiresHumanApproval bool             `json:"requires_human_approval"`
	BlastRadius           string           `json:"blast_radius"`
	EstimatedImpact       EstimatedImpact  `json:"estimated_impact"`
	ReasoningSummary      ReasoningSummary `json:"reasoning_summary"`
}
