// Package history mines the incident record for recurring root causes.
// Recurrence is informational: it feeds the query surface and human triage,
// never the decision policy.
package history

import (
	"context"
	"sort"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// IncidentSource is the slice of the store the analyzer reads.
type IncidentSource interface {
	ListIncidents(ctx context.Context, limit int, minConfidence float64) ([]models.Incident, error)
}

// Analyzer aggregates incidents by root cause.
type Analyzer struct {
	source IncidentSource
	window int // how many recent incidents to mine
}

// NewAnalyzer creates an Analyzer mining up to window recent incidents.
func NewAnalyzer(source IncidentSource, window int) *Analyzer {
	if window <= 0 {
		window = 500
	}
	return &Analyzer{source: source, window: window}
}

// CauseRecurrence is one recurring root cause with its aggregate history.
type CauseRecurrence struct {
	RootCause     string         `json:"root_cause"`
	Occurrences   int            `json:"occurrences"`
	AvgConfidence float64        `json:"avg_confidence"`
	FirstSeen     time.Time      `json:"first_seen"`
	LastSeen      time.Time      `json:"last_seen"`
	Outcomes      map[string]int `json:"outcomes"`
	SubjectsTotal int            `json:"subjects_total"`
}

// RecurringCauses groups recent incidents by root cause, most frequent
// first. Causes seen once are included; callers filter if they only want
// repeats.
func (a *Analyzer) RecurringCauses(ctx context.Context) ([]CauseRecurrence, error) {
	incidents, err := a.source.ListIncidents(ctx, a.window, 0)
	if err != nil {
		return nil, err
	}

	byCause := make(map[string]*CauseRecurrence)
	confidenceSums := make(map[string]float64)
	for _, inc := range incidents {
		if inc.RootCause == "" {
			continue
		}
		rec, ok := byCause[inc.RootCause]
		if !ok {
			rec = &CauseRecurrence{
				RootCause: inc.RootCause,
				FirstSeen: inc.CreatedAt,
				LastSeen:  inc.CreatedAt,
				Outcomes:  make(map[string]int),
			}
			byCause[inc.RootCause] = rec
		}
		rec.Occurrences++
		confidenceSums[inc.RootCause] += inc.Confidence
		rec.Outcomes[string(inc.Outcome)]++
		rec.SubjectsTotal += inc.Decision.EstimatedImpact.SubjectsAffected
		if inc.CreatedAt.Before(rec.FirstSeen) {
			rec.FirstSeen = inc.CreatedAt
		}
		if inc.CreatedAt.After(rec.LastSeen) {
			rec.LastSeen = inc.CreatedAt
		}
	}

	out := make([]CauseRecurrence, 0, len(byCause))
	for cause, rec := range byCause {
		rec.AvgConfidence = confidenceSums[cause] / float64(rec.Occurrences)
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].RootCause < out[j].RootCause
	})
	return out, nil
}
