// Package reasoner turns an observation into ranked root-cause hypotheses.
// The heuristic path is always available; the oracle path is optional and
// degrades to the heuristic on any failure.
package reasoner

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sentinelstack/migration-sentinel/internal/metrics"
	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// Reasoner is the analysis facade used by the detection pipeline.
type Reasoner struct {
	oracle    *Oracle
	grounding *GroundingIndex
	logger    *slog.Logger
}

// New builds a Reasoner. oracle and grounding may be nil, in which case the
// heuristic path is used exclusively.
func New(oracle *Oracle, grounding *GroundingIndex, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	if grounding == nil {
		grounding = &GroundingIndex{}
	}
	return &Reasoner{oracle: oracle, grounding: grounding, logger: logger}
}

// Analyze produces a hypothesis set for the observation. An observation with
// no patterns yields the insufficient-data sentinel without consulting any
// backend. Oracle failures are logged and counted, never surfaced.
func (r *Reasoner) Analyze(ctx context.Context, obs models.Observation) models.HypothesisSet {
	if len(obs.Patterns) == 0 {
		return models.InsufficientData()
	}

	if r.oracle == nil {
		return Heuristic(obs)
	}

	grounding := r.grounding.Retrieve(groundingQuery(obs), 3)
	set, err := r.oracle.Analyze(ctx, obs, grounding)
	if err != nil {
		reason := fallbackReason(err)
		metrics.ObserveOracleFallback(reason)
		r.logger.Warn("oracle analysis degraded to heuristic",
			"reason", reason, "error", err)
		return Heuristic(obs)
	}
	return set
}

func groundingQuery(obs models.Observation) string {
	var parts []string
	for _, p := range obs.Patterns {
		if p.ErrorCode != "" {
			parts = append(parts, p.ErrorCode)
		}
		if p.MigrationStage != "" && p.MigrationStage != models.StageUnknown {
			parts = append(parts, string(p.MigrationStage))
		}
	}
	return strings.Join(parts, " ")
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case strings.Contains(err.Error(), "invalid JSON"),
		strings.Contains(err.Error(), "missing primary"),
		strings.Contains(err.Error(), "out of range"),
		strings.Contains(err.Error(), "outranks"):
		return "schema"
	default:
		return "transport"
	}
}
