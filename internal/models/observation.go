package models

import "time"

// PatternType enumerates the detectable cluster kinds.
type PatternType string

const (
	PatternErrorCluster     PatternType = "error_cluster"
	PatternStageCorrelation PatternType = "stage_correlation"
	PatternTemporalSpike    PatternType = "temporal_spike"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorCount pairs an error code with its occurrence count inside a pattern.
type ErrorCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Pattern is one detected cluster, correlation, or spike inside a batch.
// Fields are populated per PatternType; Fingerprint is a deterministic key
// derived from (error code, stage, sorted subject set) so the same issue
// detected twice yields the same identity.
type Pattern struct {
	Type              PatternType    `json:"pattern_type"`
	ErrorCode         string         `json:"error_code,omitempty"`
	MigrationStage    MigrationStage `json:"migration_stage,omitempty"`
	AffectedSubjects  int            `json:"affected_subjects"`
	SubjectIDs        []string       `json:"subject_ids,omitempty"`
	TotalOccurrences  int            `json:"total_occurrences,omitempty"`
	AffectedEndpoints []string       `json:"affected_endpoints,omitempty"`
	TopErrors         []ErrorCount   `json:"top_errors,omitempty"`
	EventCount        int            `json:"event_count,omitempty"`
	TimeWindow        string         `json:"time_window,omitempty"`
	FirstSeen         time.Time      `json:"first_seen,omitempty"`
	Severity          Severity       `json:"severity"`
	Fingerprint       string         `json:"fingerprint,omitempty"`
}

// SeverityBreakdown counts events per severity class.
type SeverityBreakdown struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Observation is the Observer's output for one detection cycle.
type Observation struct {
	Patterns          []Pattern         `json:"patterns"`
	RawEventCount     int               `json:"raw_event_count"`
	SeverityBreakdown SeverityBreakdown `json:"severity_breakdown"`
	Summary           string            `json:"summary"`
}

// HasPattern reports whether the observation contains a pattern of the given type.
func (o Observation) HasPattern(t PatternType) bool {
	for _, p := range o.Patterns {
		if p.Type == t {
			return true
		}
	}
	return false
}

// ClusterSubjectTotal sums affected subjects across error clusters.
func (o Observation) ClusterSubjectTotal() int {
	total := 0
	for _, p := range o.Patterns {
		if p.Type == PatternErrorCluster {
			total += p.AffectedSubjects
		}
	}
	return total
}
