package reasoner

import (
	"fmt"
	"strings"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// Root causes the heuristic can assert, with their fixed confidences.
const (
	causeConfigMismatch = "Migration configuration mismatch"
	causeWebhook        = "Webhook endpoint misconfiguration"
	causeCheckout       = "Checkout/Payment flow breaking change"
	causeAuth           = "API authentication version mismatch"
	causeCompatibility  = "API compatibility issue"
	causeManual         = "Requires manual investigation"
)

// Heuristic derives a hypothesis set from detected patterns using fixed
// keyword rules. Deterministic: same observation, same output.
func Heuristic(obs models.Observation) models.HypothesisSet {
	if len(obs.Patterns) == 0 {
		return models.InsufficientData()
	}

	set := models.HypothesisSet{
		Alternatives: []models.Hypothesis{},
		Unknowns:     []string{},
		Method:       models.MethodHeuristic,
		Patterns:     len(obs.Patterns),
	}

	cluster := firstPattern(obs, models.PatternErrorCluster)
	hasStage := obs.HasPattern(models.PatternStageCorrelation)
	evidence := patternEvidence(obs)

	// Keyword signatures outrank the structural rule: a recognised error code
	// names its own cause even when a stage correlation is also present.
	switch {
	case cluster != nil && strings.Contains(strings.ToUpper(cluster.ErrorCode), "WEBHOOK"):
		set.Primary = &models.Hypothesis{
			Cause:      causeWebhook,
			Confidence: 0.70,
			Reasoning: fmt.Sprintf("%d subjects hit %s; webhook delivery failing across unrelated subjects "+
				"indicates an endpoint or registration problem on the platform side", cluster.AffectedSubjects, cluster.ErrorCode),
			Evidence: evidence,
		}

	case cluster != nil && (strings.Contains(strings.ToUpper(cluster.ErrorCode), "PAYMENT") ||
		strings.Contains(strings.ToUpper(cluster.ErrorCode), "CHECKOUT")):
		set.Primary = &models.Hypothesis{
			Cause:      causeCheckout,
			Confidence: 0.72,
			Reasoning: fmt.Sprintf("Checkout or payment errors (%s) clustering across %d subjects suggest a "+
				"breaking change in the purchase flow", cluster.ErrorCode, cluster.AffectedSubjects),
			Evidence: evidence,
		}

	case cluster != nil && strings.Contains(strings.ToUpper(cluster.ErrorCode), "AUTH"):
		set.Primary = &models.Hypothesis{
			Cause:      causeAuth,
			Confidence: 0.68,
			Reasoning: fmt.Sprintf("Authentication failures (%s) across %d subjects typically follow an API "+
				"version or credential scheme change", cluster.ErrorCode, cluster.AffectedSubjects),
			Evidence: evidence,
		}

	case cluster != nil && hasStage:
		set.Primary = &models.Hypothesis{
			Cause:      causeConfigMismatch,
			Confidence: 0.75,
			Reasoning: fmt.Sprintf("Error cluster %s coincides with failures concentrated in one migration stage, "+
				"which points at stage-specific configuration rather than isolated subject mistakes", cluster.ErrorCode),
			Evidence: evidence,
		}

	case cluster != nil:
		set.Primary = &models.Hypothesis{
			Cause:      causeCompatibility,
			Confidence: 0.60,
			Reasoning: fmt.Sprintf("Error %s clusters across %d subjects without a recognised signature; "+
				"most likely an API compatibility gap", cluster.ErrorCode, cluster.AffectedSubjects),
			Evidence: evidence,
		}
		set.Unknowns = append(set.Unknowns, "error signature not recognised")

	default:
		set.Primary = &models.Hypothesis{
			Cause:      causeManual,
			Confidence: 0.40,
			Reasoning:  "Patterns detected without an error cluster; the signals do not isolate a cause",
			Evidence:   evidence,
		}
		set.Unknowns = append(set.Unknowns, "no dominant error code in the batch")
	}

	if cluster != nil && hasStage && set.Primary.Cause != causeConfigMismatch {
		set.Alternatives = append(set.Alternatives, models.Hypothesis{
			Cause:      causeConfigMismatch,
			Confidence: 0.65,
			Reasoning:  "Failures concentrate in one migration stage; stage-specific configuration remains plausible",
		})
	}

	set.Unknowns = append(set.Unknowns, "deployment and version changes are not visible in the signal stream")
	capAlternatives(&set)
	return set
}

func capAlternatives(set *models.HypothesisSet) {
	if set.Primary == nil {
		return
	}
	for i := range set.Alternatives {
		if set.Alternatives[i].Confidence > set.Primary.Confidence {
			set.Alternatives[i].Confidence = set.Primary.Confidence
		}
	}
}

func firstPattern(obs models.Observation, t models.PatternType) *models.Pattern {
	for i := range obs.Patterns {
		if obs.Patterns[i].Type == t {
			return &obs.Patterns[i]
		}
	}
	return nil
}

func patternEvidence(obs models.Observation) []string {
	evidence := make([]string, 0, len(obs.Patterns))
	for _, p := range obs.Patterns {
		switch p.Type {
		case models.PatternErrorCluster:
			evidence = append(evidence, fmt.Sprintf("error_cluster %s affecting %d subjects (%d occurrences)",
				p.ErrorCode, p.AffectedSubjects, p.TotalOccurrences))
		case models.PatternStageCorrelation:
			evidence = append(evidence, fmt.Sprintf("stage_correlation at %s affecting %d subjects",
				p.MigrationStage, p.AffectedSubjects))
		case models.PatternTemporalSpike:
			evidence = append(evidence, fmt.Sprintf("temporal_spike of %d error events in %s",
				p.EventCount, p.TimeWindow))
		}
	}
	return evidence
}
