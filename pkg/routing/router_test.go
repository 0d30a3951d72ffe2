package routing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rhea-hq/rhea/pkg/budget"
	"rhea-hq/rhea/pkg/costs"
	"rhea-hq/rhea/pkg/pricing"
	"rhea-hq/rhea/pkg/tokens"
)

// stubChecker scripts budget outcomes per (provider, model) pair. Pairs not
// listed are allowed.
type stubChecker struct {
	rejected map[string]bool
	warnings map[string][]string
	err      error
}

func (s *stubChecker) Check(ctx context.Context, req budget.CheckRequest) (*budget.CheckResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	key := req.Provider + "/" + req.Model
	if s.rejected[key] {
		return &budget.CheckResult{Allowed: false, Reason: "budget exceeded"}, nil
	}
	return &budget.CheckResult{Allowed: true, Warnings: s.warnings[key]}, nil
}

// testCatalog builds a catalog with paid, cheap, and free tiers.
func testCatalog() *pricing.Catalog {
	return pricing.NewCatalog(map[string]map[string]pricing.Price{
		"anthropic": {
			"claude-3-opus-20240229":  {InputCostPerToken: 0.000015, OutputCostPerToken: 0.000075},
			"claude-3-haiku-20240307": {InputCostPerToken: 0.00000025, OutputCostPerToken: 0.00000125},
		},
		"openai": {
			"gpt-3.5-turbo": {InputCostPerToken: 0.0000005, OutputCostPerToken: 0.0000015},
		},
		"ollama": {
			"llama3": {InputCostPerToken: 0, OutputCostPerToken: 0},
		},
		"simulated": {
			"simulated-standard": {InputCostPerToken: 0, OutputCostPerToken: 0},
		},
	})
}

func testRouter(t *testing.T, catalog *pricing.Catalog, checker BudgetChecker) *Router {
	t.Helper()
	table, err := NewTable(map[string]TaskRoute{
		"default": {
			Provider: "anthropic",
			Model:    "claude-3-opus-20240229",
			Options:  Options{Temperature: 0.7, MaxTokens: 4000},
			Fallback: Fallback{Provider: "openai", Model: "gpt-4o"},
		},
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return NewRouter(table, catalog, checker)
}

// TestRouter_DefaultWithinBudget tests the happy path.
func TestRouter_DefaultWithinBudget(t *testing.T) {
	router := testRouter(t, testCatalog(), &stubChecker{})

	decision := router.Route(context.Background(), Request{InputText: "hello", TaskType: "default"})
	if decision.Provider != "anthropic" || decision.Model != "claude-3-opus-20240229" {
		t.Errorf("Expected default pair, got %s/%s", decision.Provider, decision.Model)
	}
	if decision.Downgraded {
		t.Error("Expected no downgrade")
	}
	if decision.Options.MaxTokens != 4000 {
		t.Errorf("Expected route options carried, got %+v", decision.Options)
	}
	if decision.Fallback.Provider != "openai" {
		t.Errorf("Expected route fallback carried, got %+v", decision.Fallback)
	}
}

// TestRouter_WarningsPropagate tests that warn-policy warnings reach the
// decision on the happy path.
func TestRouter_WarningsPropagate(t *testing.T) {
	checker := &stubChecker{
		warnings: map[string][]string{
			"anthropic/claude-3-opus-20240229": {"daily budget at 80%"},
		},
	}
	router := testRouter(t, testCatalog(), checker)

	decision := router.Route(context.Background(), Request{InputText: "hello"})
	if len(decision.Warnings) != 1 || !strings.Contains(decision.Warnings[0], "80%") {
		t.Errorf("Expected budget warning propagated, got %v", decision.Warnings)
	}
}

// TestRouter_DowngradesToCheaper tests the cheaper-alternative step and
// that the alternative is strictly cheaper than the rejected pair.
func TestRouter_DowngradesToCheaper(t *testing.T) {
	catalog := testCatalog()
	checker := &stubChecker{
		rejected: map[string]bool{"anthropic/claude-3-opus-20240229": true},
	}
	router := testRouter(t, catalog, checker)

	decision := router.Route(context.Background(), Request{InputText: "hello", TaskType: "default"})
	if !decision.Downgraded {
		t.Fatal("Expected a downgrade")
	}

	rejected := catalog.Lookup("anthropic", "claude-3-opus-20240229").PerToken()
	chosen := catalog.Lookup(decision.Provider, decision.Model).PerToken()
	if chosen >= rejected {
		t.Errorf("Expected strictly cheaper pair, got %s/%s at %v (rejected at %v)",
			decision.Provider, decision.Model, chosen, rejected)
	}

	// The default task preference ranks anthropic first, so the cheap
	// anthropic model wins over the cheap openai one.
	if decision.Provider != "anthropic" || decision.Model != "claude-3-haiku-20240307" {
		t.Errorf("Expected anthropic/claude-3-haiku-20240307, got %s/%s",
			decision.Provider, decision.Model)
	}

	found := false
	for _, w := range decision.Warnings {
		if strings.Contains(w, "downgraded") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected downgrade warning, got %v", decision.Warnings)
	}
}

// TestRouter_TaskPreferenceOrder tests that chat tasks prefer openai among
// cheaper alternatives.
func TestRouter_TaskPreferenceOrder(t *testing.T) {
	checker := &stubChecker{
		rejected: map[string]bool{"anthropic/claude-3-opus-20240229": true},
	}
	router := testRouter(t, testCatalog(), checker)

	decision := router.Route(context.Background(), Request{
		InputText: "hello",
		TaskType:  "chat",
		Provider:  "anthropic",
		Model:     "claude-3-opus-20240229",
	})
	if decision.Provider != "openai" || decision.Model != "gpt-3.5-turbo" {
		t.Errorf("Expected chat preference to pick openai/gpt-3.5-turbo, got %s/%s",
			decision.Provider, decision.Model)
	}
}

// TestRouter_FreeFallbackPrefersLocal tests the free tier ordering when no
// paid pair is affordable.
func TestRouter_FreeFallbackPrefersLocal(t *testing.T) {
	checker := &stubChecker{
		rejected: map[string]bool{
			"anthropic/claude-3-opus-20240229":  true,
			"anthropic/claude-3-haiku-20240307": true,
			"openai/gpt-3.5-turbo":              true,
		},
	}
	router := testRouter(t, testCatalog(), checker)

	decision := router.Route(context.Background(), Request{InputText: "hello"})
	if decision.Provider != "ollama" || decision.Model != "llama3" {
		t.Errorf("Expected ollama/llama3 free fallback, got %s/%s",
			decision.Provider, decision.Model)
	}
	if !decision.Downgraded {
		t.Error("Expected downgrade flag")
	}
}

// TestRouter_FreeFallbackSimulatedLast tests that the simulated provider is
// picked only when no local free model exists.
func TestRouter_FreeFallbackSimulatedLast(t *testing.T) {
	catalog := pricing.NewCatalog(map[string]map[string]pricing.Price{
		"anthropic": {
			"claude-3-opus-20240229": {InputCostPerToken: 0.000015, OutputCostPerToken: 0.000075},
		},
		"simulated": {
			"simulated-standard": {InputCostPerToken: 0, OutputCostPerToken: 0},
		},
	})
	checker := &stubChecker{
		rejected: map[string]bool{"anthropic/claude-3-opus-20240229": true},
	}
	router := testRouter(t, catalog, checker)

	decision := router.Route(context.Background(), Request{InputText: "hello"})
	if decision.Provider != "simulated" {
		t.Errorf("Expected simulated free fallback, got %s/%s", decision.Provider, decision.Model)
	}
}

// TestRouter_CheapestWhenNoFree tests the emergency step with a catalog
// holding no free models.
func TestRouter_CheapestWhenNoFree(t *testing.T) {
	catalog := pricing.NewCatalog(map[string]map[string]pricing.Price{
		"anthropic": {
			"claude-3-opus-20240229":  {InputCostPerToken: 0.000015, OutputCostPerToken: 0.000075},
			"claude-3-haiku-20240307": {InputCostPerToken: 0.00000025, OutputCostPerToken: 0.00000125},
		},
	})
	checker := &stubChecker{
		rejected: map[string]bool{
			"anthropic/claude-3-opus-20240229":  true,
			"anthropic/claude-3-haiku-20240307": true,
		},
	}
	router := testRouter(t, catalog, checker)

	decision := router.Route(context.Background(), Request{InputText: "hello"})
	if decision.Model != "claude-3-haiku-20240307" {
		t.Errorf("Expected cheapest model, got %s/%s", decision.Provider, decision.Model)
	}
	found := false
	for _, w := range decision.Warnings {
		if strings.Contains(w, "cheapest") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected cheapest-model warning, got %v", decision.Warnings)
	}
}

// TestRouter_EmptyCatalogReturnsDefault tests the last-resort step.
func TestRouter_EmptyCatalogReturnsDefault(t *testing.T) {
	catalog := pricing.NewCatalog(nil)
	checker := &stubChecker{
		rejected: map[string]bool{"anthropic/claude-3-opus-20240229": true},
	}
	router := testRouter(t, catalog, checker)

	decision := router.Route(context.Background(), Request{InputText: "hello"})
	if decision.Provider != "anthropic" || decision.Model != "claude-3-opus-20240229" {
		t.Errorf("Expected original default, got %s/%s", decision.Provider, decision.Model)
	}
	if len(decision.Warnings) == 0 {
		t.Fatal("Expected a no-alternatives warning")
	}
	if !strings.Contains(decision.Warnings[0], ErrCatalogEmpty.Error()) {
		t.Errorf("Expected warning to carry %q, got %v",
			ErrCatalogEmpty.Error(), decision.Warnings)
	}
}

// TestRouter_CheckFailureAllows tests that a broken budget store never
// blocks routing.
func TestRouter_CheckFailureAllows(t *testing.T) {
	checker := &stubChecker{err: errors.New("store down")}
	router := testRouter(t, testCatalog(), checker)

	decision := router.Route(context.Background(), Request{InputText: "hello"})
	if decision.Provider != "anthropic" || decision.Model != "claude-3-opus-20240229" {
		t.Errorf("Expected default pair despite check failure, got %s/%s",
			decision.Provider, decision.Model)
	}
}

// TestRouter_CascadeNeverFails tests the cascade against a real budget
// engine with an exhausted enforce cap: with a free model in the catalog the
// router must land on it.
func TestRouter_CascadeNeverFails(t *testing.T) {
	catalog := testCatalog()
	estimator := costs.NewEstimator(tokens.NewRatioEstimator(nil), catalog)
	engine := budget.NewEngine(budget.NewMemoryStore(), estimator)
	ctx := context.Background()

	if _, err := engine.SetLimit(ctx, budget.PeriodDaily, budget.ScopeAll, 0.000001, budget.PolicyEnforce); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}
	if err := engine.Record(ctx, &budget.UsageRecord{Provider: "anthropic", Model: "claude-3-opus-20240229", Cost: 1.0}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	router := testRouter(t, catalog, engine)
	decision := router.Route(ctx, Request{
		InputText: strings.Repeat("word ", 200),
		TaskType:  "default",
		Component: "planner",
	})

	if cost := catalog.Lookup(decision.Provider, decision.Model).PerToken(); cost != 0 {
		t.Errorf("Expected a free model with every cap blown, got %s/%s at %v",
			decision.Provider, decision.Model, cost)
	}
	if !decision.Downgraded {
		t.Error("Expected downgrade flag")
	}
}

// TestRouter_ExplicitPairOverride tests routing with an explicit pair.
func TestRouter_ExplicitPairOverride(t *testing.T) {
	router := testRouter(t, testCatalog(), &stubChecker{})

	decision := router.Route(context.Background(), Request{
		InputText: "hello",
		Provider:  "ollama",
		Model:     "llama3",
	})
	if decision.Provider != "ollama" || decision.Model != "llama3" {
		t.Errorf("Expected explicit pair honored, got %s/%s", decision.Provider, decision.Model)
	}
}

// TestStats tests decision counters.
func TestStats(t *testing.T) {
	checker := &stubChecker{
		rejected: map[string]bool{"anthropic/claude-3-opus-20240229": true},
	}
	router := testRouter(t, testCatalog(), checker)
	ctx := context.Background()

	router.Route(ctx, Request{InputText: "hello"})
	router.Route(ctx, Request{InputText: "hello", Provider: "ollama", Model: "llama3"})

	snap := router.Stats().Snapshot()
	if snap.TotalRequests != 2 {
		t.Errorf("Expected 2 total requests, got %d", snap.TotalRequests)
	}
	if snap.Downgrades != 1 {
		t.Errorf("Expected 1 downgrade, got %d", snap.Downgrades)
	}
	if snap.RequestsPerProvider["ollama"] != 1 {
		t.Errorf("Expected 1 ollama request, got %d", snap.RequestsPerProvider["ollama"])
	}

	router.Stats().Reset()
	if router.Stats().Snapshot().TotalRequests != 0 {
		t.Error("Expected counters reset")
	}
}
