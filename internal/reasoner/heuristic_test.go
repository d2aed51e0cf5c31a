package reasoner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

func obsWith(patterns ...models.Pattern) models.Observation {
	return models.Observation{
		Patterns:      patterns,
		RawEventCount: 10,
		Summary:       "test observation",
	}
}

func cluster(code string, subjects int) models.Pattern {
	return models.Pattern{
		Type:             models.PatternErrorCluster,
		ErrorCode:        code,
		AffectedSubjects: subjects,
		Severity:         models.SeverityMedium,
	}
}

func stageCorrelation(stage models.MigrationStage) models.Pattern {
	return models.Pattern{
		Type:             models.PatternStageCorrelation,
		MigrationStage:   stage,
		AffectedSubjects: 2,
		Severity:         models.SeverityHigh,
	}
}

func TestHeuristicSentinelOnNoPatterns(t *testing.T) {
	set := Heuristic(obsWith())
	assert.True(t, set.IsSentinel())
	assert.Nil(t, set.Primary)
	assert.Equal(t, []string{"insufficient data for analysis"}, set.Unknowns)
	assert.Equal(t, models.MethodHeuristic, set.Method)
}

func TestHeuristicConfigMismatch(t *testing.T) {
	// No recognised keyword in the error code, so the combined structural
	// rule applies.
	set := Heuristic(obsWith(
		cluster("TAX_CALC_500", 4),
		stageCorrelation(models.StagePostMigration),
	))
	require.NotNil(t, set.Primary)
	assert.Equal(t, "Migration configuration mismatch", set.Primary.Cause)
	assert.InDelta(t, 0.75, set.Primary.Confidence, 1e-9)
	assert.Equal(t, 2, set.Patterns)
	assert.NotEmpty(t, set.Primary.Evidence)
}

func TestHeuristicKeywordOutranksStructuralRule(t *testing.T) {
	// A recognised code keeps its own cause even with a stage correlation
	// present; the config mismatch survives as an alternative.
	set := Heuristic(obsWith(
		cluster("WEBHOOK_404", 4),
		stageCorrelation(models.StagePostMigration),
	))
	require.NotNil(t, set.Primary)
	assert.Equal(t, "Webhook endpoint misconfiguration", set.Primary.Cause)
	assert.InDelta(t, 0.70, set.Primary.Confidence, 1e-9)

	var causes []string
	for _, alt := range set.Alternatives {
		causes = append(causes, alt.Cause)
	}
	assert.Contains(t, causes, "Migration configuration mismatch")
}

func TestHeuristicKeywordCauses(t *testing.T) {
	cases := []struct {
		code       string
		cause      string
		confidence float64
	}{
		{"WEBHOOK_404", "Webhook endpoint misconfiguration", 0.70},
		{"PAYMENT_DECLINED", "Checkout/Payment flow breaking change", 0.72},
		{"CHECKOUT_TIMEOUT", "Checkout/Payment flow breaking change", 0.72},
		{"AUTH_EXPIRED", "API authentication version mismatch", 0.68},
		{"SOMETHING_ELSE", "API compatibility issue", 0.60},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			set := Heuristic(obsWith(cluster(tc.code, 4)))
			require.NotNil(t, set.Primary)
			assert.Equal(t, tc.cause, set.Primary.Cause)
			assert.InDelta(t, tc.confidence, set.Primary.Confidence, 1e-9)
		})
	}
}

func TestHeuristicManualInvestigation(t *testing.T) {
	set := Heuristic(obsWith(models.Pattern{
		Type:             models.PatternTemporalSpike,
		AffectedSubjects: 2,
		EventCount:       15,
	}))
	require.NotNil(t, set.Primary)
	assert.Equal(t, "Requires manual investigation", set.Primary.Cause)
	assert.InDelta(t, 0.40, set.Primary.Confidence, 1e-9)
}

func TestHeuristicAlternativesNeverOutrankPrimary(t *testing.T) {
	set := Heuristic(obsWith(
		cluster("CHECKOUT_500", 6),
		stageCorrelation(models.StageInProgress),
	))
	require.NotNil(t, set.Primary)
	for _, alt := range set.Alternatives {
		assert.LessOrEqual(t, alt.Confidence, set.Primary.Confidence)
	}
}
