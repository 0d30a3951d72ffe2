package pricing

import "testing"

func testCatalog() *Catalog {
	return NewCatalog(map[string]map[string]Price{
		"anthropic": {
			"claude-3-opus-20240229":   {InputCostPerToken: 0.000015, OutputCostPerToken: 0.000075},
			"claude-3-haiku-20240307":  {InputCostPerToken: 0.00000025, OutputCostPerToken: 0.00000125},
			"claude-3-sonnet-20240229": {InputCostPerToken: 0.000003, OutputCostPerToken: 0.000015},
		},
		"openai": {
			"gpt-3.5-turbo": {InputCostPerToken: 0.0000005, OutputCostPerToken: 0.0000015},
		},
		"ollama": {
			"llama3": {},
		},
	})
}

// ============================================================================
// Lookup Tests
// ============================================================================

func TestCatalog_LookupKnown(t *testing.T) {
	c := testCatalog()

	price := c.Lookup("openai", "gpt-3.5-turbo")
	if price.InputCostPerToken != 0.0000005 {
		t.Errorf("Expected input rate 0.0000005, got %v", price.InputCostPerToken)
	}
}

func TestCatalog_UnknownPairIsFree(t *testing.T) {
	c := testCatalog()

	price := c.Lookup("mystery", "model-x")
	if price.PerToken() != 0 {
		t.Errorf("Expected unknown pair to be free, got %v per token", price.PerToken())
	}
	if c.Contains("mystery", "model-x") {
		t.Error("Contains should be false for unknown pair")
	}
}

// ============================================================================
// Tier Tests
// ============================================================================

func TestEntry_Tiers(t *testing.T) {
	tests := []struct {
		name  string
		price Price
		want  Tier
	}{
		{"zero cost is free", Price{}, TierFree},
		{"haiku is low", Price{InputCostPerToken: 0.00000025, OutputCostPerToken: 0.00000125}, TierLow},
		{"sonnet is medium", Price{InputCostPerToken: 0.000003, OutputCostPerToken: 0.000015}, TierMedium},
		{"opus is high", Price{InputCostPerToken: 0.000015, OutputCostPerToken: 0.000075}, TierHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{Provider: "p", Model: "m", Price: tt.price}
			if got := e.Tier(); got != tt.want {
				t.Errorf("Tier() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCatalog_ByTier(t *testing.T) {
	tiers := testCatalog().ByTier()

	if len(tiers[TierFree]) != 1 || tiers[TierFree][0].Provider != "ollama" {
		t.Errorf("Expected exactly ollama/llama3 in free tier, got %v", tiers[TierFree])
	}
	if len(tiers[TierHigh]) != 1 || tiers[TierHigh][0].Model != "claude-3-opus-20240229" {
		t.Errorf("Expected opus in high tier, got %v", tiers[TierHigh])
	}
}

// ============================================================================
// Ordering Tests
// ============================================================================

func TestCatalog_CheaperThan(t *testing.T) {
	c := testCatalog()
	opus := c.Lookup("anthropic", "claude-3-opus-20240229")

	cheaper := c.CheaperThan(opus.PerToken())
	if len(cheaper) != 4 {
		t.Fatalf("Expected 4 entries cheaper than opus, got %d", len(cheaper))
	}
	for _, e := range cheaper {
		if e.Price.PerToken() >= opus.PerToken() {
			t.Errorf("%s/%s is not strictly cheaper than opus", e.Provider, e.Model)
		}
	}
}

func TestCatalog_Cheapest(t *testing.T) {
	best, ok := testCatalog().Cheapest()
	if !ok {
		t.Fatal("Expected a cheapest entry")
	}
	if best.Provider != "ollama" {
		t.Errorf("Expected free ollama model to be cheapest, got %s/%s", best.Provider, best.Model)
	}
}

func TestCatalog_EmptyCatalog(t *testing.T) {
	c := NewCatalog(nil)

	if !c.Empty() {
		t.Error("Expected Empty() for nil table")
	}
	if _, ok := c.Cheapest(); ok {
		t.Error("Expected no cheapest entry in empty catalog")
	}
}

func TestCatalog_UpdatePrices(t *testing.T) {
	c := NewCatalog(nil)
	c.UpdatePrices(map[string]map[string]Price{
		"openai": {"gpt-4": {InputCostPerToken: 0.00003, OutputCostPerToken: 0.00006}},
	})

	if c.Empty() {
		t.Error("Expected catalog to be non-empty after reload")
	}
	if !c.Contains("openai", "gpt-4") {
		t.Error("Expected reloaded entry to resolve")
	}
}

func TestDefaultPrices_FreeProvidersPresent(t *testing.T) {
	c := NewCatalog(DefaultPrices())

	free := c.Free()
	providers := map[string]bool{}
	for _, e := range free {
		providers[e.Provider] = true
	}
	if !providers["ollama"] || !providers["simulated"] {
		t.Errorf("Expected ollama and simulated in free tier, got %v", free)
	}
}
