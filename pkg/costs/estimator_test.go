package costs

import (
	"math"
	"strings"
	"testing"

	"rhea-hq/rhea/pkg/pricing"
	"rhea-hq/rhea/pkg/tokens"
)

func testEstimator() *Estimator {
	counter := tokens.NewRatioEstimator(map[string]float64{"default": 4.0})
	catalog := pricing.NewCatalog(map[string]map[string]pricing.Price{
		"anthropic": {
			"claude-3-sonnet-20240229": {InputCostPerToken: 0.000003, OutputCostPerToken: 0.000015},
		},
		"ollama": {"llama3": {}},
	})
	return NewEstimator(counter, catalog)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestActual_PricesBothSides(t *testing.T) {
	e := testEstimator()

	input := strings.Repeat("abcd", 100)  // 100 tokens at 4 chars/token
	output := strings.Repeat("abcd", 200) // 200 tokens

	b := e.Actual("anthropic", "claude-3-sonnet-20240229", input, output)

	if b.InputTokens != 100 || b.OutputTokens != 200 {
		t.Fatalf("Expected 100/200 tokens, got %d/%d", b.InputTokens, b.OutputTokens)
	}
	if !approxEqual(b.InputCost, 100*0.000003) {
		t.Errorf("InputCost = %v, want %v", b.InputCost, 100*0.000003)
	}
	if !approxEqual(b.OutputCost, 200*0.000015) {
		t.Errorf("OutputCost = %v, want %v", b.OutputCost, 200*0.000015)
	}
	if !approxEqual(b.TotalCost, b.InputCost+b.OutputCost) {
		t.Errorf("TotalCost = %v, want sum of sides", b.TotalCost)
	}
}

func TestActual_UnknownPairIsFree(t *testing.T) {
	e := testEstimator()

	b := e.Actual("mystery", "model-x", "some input", "some output")
	if b.TotalCost != 0 {
		t.Errorf("Expected zero cost for unknown pair, got %v", b.TotalCost)
	}
	if b.InputTokens == 0 {
		t.Error("Tokens should still be counted for unknown pairs")
	}
}

func TestEstimate_UsesAssumedOutputLength(t *testing.T) {
	e := testEstimator()

	b := e.Estimate("anthropic", "claude-3-sonnet-20240229", "hi there", 400)
	// 400 chars at 4 chars/token = 100 output tokens.
	if b.OutputTokens != 100 {
		t.Errorf("Expected 100 assumed output tokens, got %d", b.OutputTokens)
	}
}

func TestEstimate_DefaultOutputLength(t *testing.T) {
	e := testEstimator()

	b := e.Estimate("anthropic", "claude-3-sonnet-20240229", "hi", 0)
	want := DefaultAssumedOutputLen / 4
	if b.OutputTokens != want {
		t.Errorf("Expected %d output tokens from default length, got %d", want, b.OutputTokens)
	}
}

func TestFromTokens_ProviderReportedUsage(t *testing.T) {
	e := testEstimator()

	b := e.FromTokens("anthropic", "claude-3-sonnet-20240229", 1000, 500)
	if !approxEqual(b.TotalCost, 1000*0.000003+500*0.000015) {
		t.Errorf("TotalCost = %v", b.TotalCost)
	}
}

func TestEstimate_FreeModelIsZero(t *testing.T) {
	e := testEstimator()

	b := e.Estimate("ollama", "llama3", strings.Repeat("x", 4000), 0)
	if b.TotalCost != 0 {
		t.Errorf("Expected free model estimate to be zero, got %v", b.TotalCost)
	}
}
