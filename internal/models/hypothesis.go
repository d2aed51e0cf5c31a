package models

// AnalysisMethod records which reasoning backend produced a hypothesis set.
type AnalysisMethod string

const (
	MethodHeuristic AnalysisMethod = "heuristic"
	MethodOracle    AnalysisMethod = "oracle"
)

// Hypothesis is one candidate root cause with its supporting evidence.
type Hypothesis struct {
	Cause      string   `json:"cause"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Evidence   []string `json:"evidence,omitempty"`
}

// HypothesisSet is the Reasoner's output: exactly one primary hypothesis
// (nil only in the insufficient-data sentinel), zero or more alternatives
// whose confidence never exceeds the primary's, and acknowledged data gaps.
type HypothesisSet struct {
	Primary      *Hypothesis    `json:"primary_hypothesis"`
	Alternatives []Hypothesis   `json:"alternative_hypotheses"`
	Unknowns     []string       `json:"unknowns"`
	Method       AnalysisMethod `json:"analysis_method"`
	Patterns     int            `json:"patterns_analyzed"`
}

// InsufficientData is the sentinel set returned when an observation carries
// no patterns. A distinct, checkable state rather than an error.
func InsufficientData() HypothesisSet {
	return HypothesisSet{
		Alternatives: []Hypothesis{},
		Unknowns:     []string{"insufficient data for analysis"},
		Method:       MethodHeuristic,
	}
}

// IsSentinel reports whether the set is the insufficient-data sentinel.
func (s HypothesisSet) IsSentinel() bool {
	return s.Primary == nil
}

// PrimaryConfidence returns the primary confidence, zero for the sentinel.
func (s HypothesisSet) PrimaryConfidence() float64 {
	if s.Primary == nil {
		return 0
	}
	return s.Primary.Confidence
}
