// Package observer detects operational patterns in claimed event batches.
// Detection is pure: the same batch and thresholds always produce the same
// observation, including pattern order and fingerprints.
package observer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// Observer holds the detection thresholds.
type Observer struct {
	spikeThreshold  int // distinct subjects required for an error cluster
	volumeThreshold int // error events required for a temporal spike
}

// New creates an Observer. Out-of-range thresholds fall back to defaults.
func New(spikeThreshold, volumeThreshold int) *Observer {
	if spikeThreshold < 2 {
		spikeThreshold = 3
	}
	if volumeThreshold <= 0 {
		volumeThreshold = 10
	}
	return &Observer{spikeThreshold: spikeThreshold, volumeThreshold: volumeThreshold}
}

// Observe analyzes one batch of events and reports every detected pattern.
func (o *Observer) Observe(events []models.Event) models.Observation {
	obs := models.Observation{
		Patterns:      []models.Pattern{},
		RawEventCount: len(events),
	}
	if len(events) == 0 {
		obs.Summary = "No events to analyze"
		return obs
	}

	obs.SeverityBreakdown = classifySeverities(events)
	obs.Patterns = append(obs.Patterns, o.errorClusters(events)...)
	obs.Patterns = append(obs.Patterns, o.stageCorrelations(events)...)
	obs.Patterns = append(obs.Patterns, o.temporalSpikes(events)...)
	obs.Summary = summarize(obs)
	return obs
}

// errorEvent reports whether ev represents a failure signal.
func errorEvent(ev models.Event) bool {
	switch ev.EventType {
	case models.EventTypeAPIError, models.EventTypeWebhookFailure:
		return true
	case models.EventTypeSupportTicket:
		return ev.ErrorCode != ""
	}
	return false
}

// errorClusters finds error codes hitting at least spikeThreshold distinct
// subjects inside the batch.
func (o *Observer) errorClusters(events []models.Event) []models.Pattern {
	type cluster struct {
		subjects    map[string]struct{}
		endpoints   map[string]struct{}
		occurrences int
		stageCounts map[models.MigrationStage]int
		firstSeen   time.Time
	}

	clusters := make(map[string]*cluster)
	for _, ev := range events {
		if !errorEvent(ev) || ev.ErrorCode == "" {
			continue
		}
		c, ok := clusters[ev.ErrorCode]
		if !ok {
			c = &cluster{
				subjects:    make(map[string]struct{}),
				endpoints:   make(map[string]struct{}),
				stageCounts: make(map[models.MigrationStage]int),
				firstSeen:   ev.Timestamp,
			}
			clusters[ev.ErrorCode] = c
		}
		c.subjects[ev.SubjectID] = struct{}{}
		if ev.Endpoint != "" {
			c.endpoints[ev.Endpoint] = struct{}{}
		}
		occ := ev.OccurrenceCount
		if occ <= 0 {
			occ = 1
		}
		c.occurrences += occ
		c.stageCounts[ev.MigrationStage]++
		if ev.Timestamp.Before(c.firstSeen) {
			c.firstSeen = ev.Timestamp
		}
	}

	codes := make([]string, 0, len(clusters))
	for code := range clusters {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var patterns []models.Pattern
	for _, code := range codes {
		c := clusters[code]
		if len(c.subjects) < o.spikeThreshold {
			continue
		}

		severity := models.SeverityMedium
		if len(c.subjects) >= 5 {
			severity = models.SeverityHigh
		}

		patterns = append(patterns, models.Pattern{
			Type:              models.PatternErrorCluster,
			ErrorCode:         code,
			MigrationStage:    dominantStage(c.stageCounts),
			AffectedSubjects:  len(c.subjects),
			SubjectIDs:        sortedKeys(c.subjects),
			TotalOccurrences:  c.occurrences,
			AffectedEndpoints: sortedKeys(c.endpoints),
			FirstSeen:         c.firstSeen,
			Severity:          severity,
			Fingerprint:       fingerprint(code, dominantStage(c.stageCounts), sortedKeys(c.subjects)),
		})
	}
	return patterns
}

// stageCorrelations finds migration stages where at least two distinct
// subjects are failing. Events without a known stage never correlate.
func (o *Observer) stageCorrelations(events []models.Event) []models.Pattern {
	type bucket struct {
		subjects  map[string]struct{}
		errors    map[string]int
		count     int
		firstSeen time.Time
	}

	buckets := make(map[models.MigrationStage]*bucket)
	for _, ev := range events {
		if !errorEvent(ev) || ev.MigrationStage == models.StageUnknown {
			continue
		}
		b, ok := buckets[ev.MigrationStage]
		if !ok {
			b = &bucket{
				subjects:  make(map[string]struct{}),
				errors:    make(map[string]int),
				firstSeen: ev.Timestamp,
			}
			buckets[ev.MigrationStage] = b
		}
		b.subjects[ev.SubjectID] = struct{}{}
		if ev.ErrorCode != "" {
			b.errors[ev.ErrorCode]++
		}
		b.count++
		if ev.Timestamp.Before(b.firstSeen) {
			b.firstSeen = ev.Timestamp
		}
	}

	stages := make([]models.MigrationStage, 0, len(buckets))
	for stage := range buckets {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	var patterns []models.Pattern
	for _, stage := range stages {
		b := buckets[stage]
		if len(b.subjects) < 2 {
			continue
		}

		severity := models.SeverityMedium
		if stage == models.StageInProgress || stage == models.StagePostMigration {
			severity = models.SeverityHigh
		}

		patterns = append(patterns, models.Pattern{
			Type:             models.PatternStageCorrelation,
			MigrationStage:   stage,
			AffectedSubjects: len(b.subjects),
			SubjectIDs:       sortedKeys(b.subjects),
			TopErrors:        topErrors(b.errors, 5),
			EventCount:       b.count,
			FirstSeen:        b.firstSeen,
			Severity:         severity,
			Fingerprint:      fingerprint("", stage, sortedKeys(b.subjects)),
		})
	}
	return patterns
}

// temporalSpikes flags an abnormal failure volume inside the batch window.
func (o *Observer) temporalSpikes(events []models.Event) []models.Pattern {
	count := 0
	subjects := make(map[string]struct{})
	var first, last time.Time
	for _, ev := range events {
		if !errorEvent(ev) {
			continue
		}
		count++
		subjects[ev.SubjectID] = struct{}{}
		if first.IsZero() || ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	if count <= o.volumeThreshold {
		return nil
	}

	window := "batch"
	if !first.IsZero() && last.After(first) {
		window = last.Sub(first).Round(time.Second).String()
	}

	return []models.Pattern{{
		Type:             models.PatternTemporalSpike,
		AffectedSubjects: len(subjects),
		SubjectIDs:       sortedKeys(subjects),
		EventCount:       count,
		TimeWindow:       window,
		FirstSeen:        first,
		Severity:         models.SeverityHigh,
		Fingerprint:      fingerprint("spike", models.StageUnknown, sortedKeys(subjects)),
	}}
}

func classifySeverities(events []models.Event) models.SeverityBreakdown {
	var b models.SeverityBreakdown
	for _, ev := range events {
		switch classify(ev) {
		case models.SeverityCritical:
			b.Critical++
		case models.SeverityHigh:
			b.High++
		case models.SeverityMedium:
			b.Medium++
		default:
			b.Low++
		}
	}
	return b
}

func classify(ev models.Event) models.Severity {
	if ev.HTTPStatus >= 500 {
		return models.SeverityCritical
	}
	code := strings.ToUpper(ev.ErrorCode)
	if ev.HTTPStatus == 429 || strings.Contains(code, "CHECKOUT") || strings.Contains(code, "PAYMENT") {
		return models.SeverityHigh
	}
	if ev.HTTPStatus >= 400 || errorEvent(ev) {
		return models.SeverityMedium
	}
	return models.SeverityLow
}

func summarize(obs models.Observation) string {
	if len(obs.Patterns) == 0 {
		return fmt.Sprintf("No patterns in %d events", obs.RawEventCount)
	}
	kinds := make([]string, 0, len(obs.Patterns))
	seen := make(map[models.PatternType]bool)
	for _, p := range obs.Patterns {
		if !seen[p.Type] {
			seen[p.Type] = true
			kinds = append(kinds, string(p.Type))
		}
	}
	return fmt.Sprintf("%d patterns (%s) across %d events",
		len(obs.Patterns), strings.Join(kinds, ", "), obs.RawEventCount)
}

func dominantStage(counts map[models.MigrationStage]int) models.MigrationStage {
	best := models.StageUnknown
	bestCount := 0
	stages := make([]models.MigrationStage, 0, len(counts))
	for stage := range counts {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	for _, stage := range stages {
		if counts[stage] > bestCount {
			best = stage
			bestCount = counts[stage]
		}
	}
	return best
}

func topErrors(counts map[string]int, limit int) []models.ErrorCount {
	out := make([]models.ErrorCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, models.ErrorCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fingerprint derives a stable identity for a pattern from its error code,
// stage, and sorted subject set.
func fingerprint(code string, stage models.MigrationStage, subjects []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", code, stage, strings.Join(subjects, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
