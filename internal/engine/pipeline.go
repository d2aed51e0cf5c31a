// Package engine wires the detection cycle: claim a batch of unprocessed
// events, observe patterns, reason about root cause, decide on actions, and
// persist the incident with its pending actions. Data flows forward only.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/decider"
	"github.com/sentinelstack/migration-sentinel/internal/metrics"
	"github.com/sentinelstack/migration-sentinel/internal/models"
	"github.com/sentinelstack/migration-sentinel/internal/observer"
	"github.com/sentinelstack/migration-sentinel/internal/reasoner"
)

// EventSource is the slice of the store the pipeline reads and writes.
type EventSource interface {
	ClaimUnprocessed(ctx context.Context, limit int) ([]models.Event, error)
	InsertIncident(ctx context.Context, inc *models.Incident) error
	InsertActions(ctx context.Context, incidentID int64, actions []models.Action) error
}

// Pipeline runs detection cycles.
type Pipeline struct {
	source    EventSource
	observer  *observer.Observer
	reasoner  *reasoner.Reasoner
	decider   *decider.Decider
	batchSize int
	logger    *slog.Logger
}

// New creates a Pipeline.
func New(source EventSource, obs *observer.Observer, rsn *reasoner.Reasoner, dec *decider.Decider, batchSize int, logger *slog.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:    source,
		observer:  obs,
		reasoner:  rsn,
		decider:   dec,
		batchSize: batchSize,
		logger:    logger,
	}
}

// CycleReport summarises one detection cycle.
type CycleReport struct {
	EventsProcessed int     `json:"events_processed"`
	PatternCount    int     `json:"pattern_count"`
	RootCause       string  `json:"root_cause,omitempty"`
	Confidence      float64 `json:"confidence"`
	IncidentID      int64   `json:"incident_id,omitempty"`
	ActionsCreated  int     `json:"actions_created"`
	Duration        string  `json:"duration"`
}

// RunCycle executes one full detection cycle. A batch without patterns (the
// sentinel flow) processes the events but persists no incident.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()

	events, err := p.source.ClaimUnprocessed(ctx, p.batchSize)
	if err != nil {
		metrics.ObserveCycle(time.Since(start), metrics.OutcomeError)
		return CycleReport{}, fmt.Errorf("engine: claim batch: %w", err)
	}
	if len(events) == 0 {
		metrics.ObserveCycle(time.Since(start), metrics.OutcomeIdle)
		return CycleReport{Duration: time.Since(start).String()}, nil
	}

	obs := p.observer.Observe(events)
	set := p.reasoner.Analyze(ctx, obs)
	decision := p.decider.Decide(set, obs)

	report := CycleReport{
		EventsProcessed: len(events),
		PatternCount:    len(obs.Patterns),
		RootCause:       primaryCause(set),
		Confidence:      set.PrimaryConfidence(),
	}

	// Incidents exist only for cycles that detected something; the sentinel
	// flow consumes its events and stops here.
	if len(obs.Patterns) > 0 {
		incident := models.Incident{
			SignalCluster: clusterLabel(obs),
			RootCause:     primaryCause(set),
			Confidence:    set.PrimaryConfidence(),
			PatternCount:  len(obs.Patterns),
			Observation:   obs,
			HypothesisSet: set,
			Decision:      decision,
			EventIDs:      eventIDs(events),
			Outcome:       models.OutcomePendingApproval,
		}
		if err := p.source.InsertIncident(ctx, &incident); err != nil {
			metrics.ObserveCycle(time.Since(start), metrics.OutcomeError)
			return CycleReport{}, err
		}
		if err := p.source.InsertActions(ctx, incident.ID, decision.RecommendedActions); err != nil {
			metrics.ObserveCycle(time.Since(start), metrics.OutcomeError)
			return CycleReport{}, err
		}
		report.IncidentID = incident.ID
		report.ActionsCreated = len(decision.RecommendedActions)

		p.logger.Info("incident created",
			"incident_id", incident.ID,
			"root_cause", incident.RootCause,
			"confidence", incident.Confidence,
			"patterns", incident.PatternCount,
			"actions", report.ActionsCreated,
			"risk", decision.RiskLevel,
			"requires_approval", decision.RequiresHumanApproval)
	} else {
		p.logger.Debug("cycle found no patterns", "events", len(events))
	}

	duration := time.Since(start)
	metrics.ObserveCycle(duration, metrics.OutcomeSuccess)
	report.Duration = duration.String()
	return report, nil
}

func primaryCause(set models.HypothesisSet) string {
	if set.Primary == nil {
		return ""
	}
	return set.Primary.Cause
}

// clusterLabel keys the incident by its dominant pattern fingerprint.
func clusterLabel(obs models.Observation) string {
	for _, p := range obs.Patterns {
		if p.Type == models.PatternErrorCluster {
			return p.ErrorCode + ":" + p.Fingerprint
		}
	}
	if len(obs.Patterns) > 0 {
		return string(obs.Patterns[0].Type) + ":" + obs.Patterns[0].Fingerprint
	}
	return ""
}

func eventIDs(events []models.Event) []int64 {
	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}
