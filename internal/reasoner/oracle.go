package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sentinelstack/migration-sentinel/internal/models"
)

// Oracle asks a generative model for a root-cause analysis. Its output is
// advisory: the caller falls back to the heuristic on any timeout, transport
// failure, or schema violation.
type Oracle struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// OracleOptions configures the oracle backend.
type OracleOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewOracle builds an oracle backed by an OpenAI-compatible endpoint.
func NewOracle(opts OracleOptions) (*Oracle, error) {
	clientOpts := []openai.Option{openai.WithModel(opts.Model)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, openai.WithToken(opts.APIKey))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("reasoner: create oracle client: %w", err)
	}
	return newOracleWithModel(model, opts), nil
}

func newOracleWithModel(model llms.Model, opts OracleOptions) *Oracle {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &Oracle{
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}
}

// oracleResponse is the JSON contract the model must satisfy.
type oracleResponse struct {
	Primary struct {
		Cause      string   `json:"cause"`
		Confidence float64  `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
		Evidence   []string `json:"evidence"`
	} `json:"primary_hypothesis"`
	Alternatives []struct {
		Cause      string  `json:"cause"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	} `json:"alternative_hypotheses"`
	Unknowns []string `json:"unknowns"`
}

// Analyze runs one bounded oracle call and validates the response schema.
func (o *Oracle) Analyze(ctx context.Context, obs models.Observation, grounding []string) (models.HypothesisSet, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	prompt, err := buildPrompt(obs, grounding)
	if err != nil {
		return models.HypothesisSet{}, err
	}

	raw, err := llms.GenerateFromSinglePrompt(ctx, o.model, prompt,
		llms.WithTemperature(o.temperature),
		llms.WithMaxTokens(o.maxTokens),
		llms.WithJSONMode(),
	)
	if err != nil {
		return models.HypothesisSet{}, fmt.Errorf("reasoner: oracle call: %w", err)
	}

	return parseOracleResponse(raw, len(obs.Patterns))
}

func buildPrompt(obs models.Observation, grounding []string) (string, error) {
	patterns, err := json.MarshalIndent(obs.Patterns, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reasoner: encode patterns: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a root-cause analyst for a commerce platform migration.\n")
	b.WriteString("Given the detected operational patterns, identify the most likely root cause.\n\n")
	b.WriteString("Detected patterns:\n")
	b.Write(patterns)
	b.WriteString("\n\n")
	if len(grounding) > 0 {
		b.WriteString("Relevant internal documentation:\n")
		for _, snippet := range grounding {
			b.WriteString("- ")
			b.WriteString(snippet)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(`Respond with JSON only, matching exactly this shape:
{
  "primary_hypothesis": {"cause": "...", "confidence": 0.0, "reasoning": "...", "evidence": ["..."]},
  "alternative_hypotheses": [{"cause": "...", "confidence": 0.0, "reasoning": "..."}],
  "unknowns": ["..."]
}
Confidence values are in [0, 1]. Alternative confidence must not exceed the primary.`)
	return b.String(), nil
}

// parseOracleResponse enforces the schema: a non-empty primary cause,
// confidences inside [0, 1], and no alternative above the primary.
func parseOracleResponse(raw string, patternCount int) (models.HypothesisSet, error) {
	raw = strings.TrimSpace(raw)
	// Some backends wrap JSON in a fenced block despite JSON mode.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var resp oracleResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return models.HypothesisSet{}, fmt.Errorf("reasoner: oracle returned invalid JSON: %w", err)
	}
	if resp.Primary.Cause == "" {
		return models.HypothesisSet{}, fmt.Errorf("reasoner: oracle response missing primary cause")
	}
	if resp.Primary.Confidence < 0 || resp.Primary.Confidence > 1 {
		return models.HypothesisSet{}, fmt.Errorf("reasoner: oracle confidence %.2f out of range", resp.Primary.Confidence)
	}

	set := models.HypothesisSet{
		Primary: &models.Hypothesis{
			Cause:      resp.Primary.Cause,
			Confidence: resp.Primary.Confidence,
			Reasoning:  resp.Primary.Reasoning,
			Evidence:   resp.Primary.Evidence,
		},
		Alternatives: []models.Hypothesis{},
		Unknowns:     resp.Unknowns,
		Method:       models.MethodOracle,
		Patterns:     patternCount,
	}
	if set.Unknowns == nil {
		set.Unknowns = []string{}
	}
	for _, alt := range resp.Alternatives {
		if alt.Cause == "" {
			continue
		}
		if alt.Confidence < 0 || alt.Confidence > 1 {
			return models.HypothesisSet{}, fmt.Errorf("reasoner: alternative confidence %.2f out of range", alt.Confidence)
		}
		if alt.Confidence > resp.Primary.Confidence {
			return models.HypothesisSet{}, fmt.Errorf("reasoner: alternative %q outranks the primary", alt.Cause)
		}
		set.Alternatives = append(set.Alternatives, models.Hypothesis{
			Cause:      alt.Cause,
			Confidence: alt.Confidence,
			Reasoning:  alt.Reasoning,
		})
	}
	return set, nil
}
