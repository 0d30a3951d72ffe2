package costs

import (
	"strings"

	"rhea-hq/rhea/pkg/pricing"
	"rhea-hq/rhea/pkg/tokens"
)

// DefaultAssumedOutputLen is the placeholder completion length, in
// characters, used when an estimate does not specify one.
const DefaultAssumedOutputLen = 500

// Breakdown is the token and cost accounting for one request.
type Breakdown struct {
	// InputTokens and OutputTokens are the counted (or estimated) sides.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// InputCost, OutputCost and TotalCost are USD amounts.
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// Estimator prices requests against the catalog.
type Estimator struct {
	tokens  tokens.Estimator
	catalog *pricing.Catalog
}

// NewEstimator creates a cost estimator over the given counter and catalog.
func NewEstimator(counter tokens.Estimator, catalog *pricing.Catalog) *Estimator {
	return &Estimator{tokens: counter, catalog: catalog}
}

// Estimate prices a prospective request. assumedOutputLen is the expected
// completion length in characters; zero or negative selects
// DefaultAssumedOutputLen. Unknown (provider, model) pairs price to zero.
func (e *Estimator) Estimate(provider, model, inputText string, assumedOutputLen int) Breakdown {
	if assumedOutputLen <= 0 {
		assumedOutputLen = DefaultAssumedOutputLen
	}
	placeholder := strings.Repeat("a", assumedOutputLen)
	return e.Actual(provider, model, inputText, placeholder)
}

// Actual prices a completed request from its real input and output text.
func (e *Estimator) Actual(provider, model, inputText, outputText string) Breakdown {
	inputTokens := e.tokens.Count(inputText, model)
	outputTokens := e.tokens.Count(outputText, model)
	return e.FromTokens(provider, model, inputTokens, outputTokens)
}

// FromTokens prices already-counted token totals, used when the provider
// reports authoritative usage numbers.
func (e *Estimator) FromTokens(provider, model string, inputTokens, outputTokens int) Breakdown {
	price := e.catalog.Lookup(provider, model)

	b := Breakdown{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    float64(inputTokens) * price.InputCostPerToken,
		OutputCost:   float64(outputTokens) * price.OutputCostPerToken,
	}
	b.TotalCost = b.InputCost + b.OutputCost
	return b
}
