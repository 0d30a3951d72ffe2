package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"rhea-hq/rhea/pkg/budget"
	"rhea-hq/rhea/pkg/pricing"
)

// BudgetChecker is the budget engine surface the router consults.
type BudgetChecker interface {
	Check(ctx context.Context, req budget.CheckRequest) (*budget.CheckResult, error)
}

// taskPreferences orders providers by task type for the cheaper-alternative
// search. Providers not listed rank after every listed one.
var taskPreferences = map[string][]string{
	"code":      {"anthropic", "openai", "ollama"},
	"planning":  {"anthropic", "openai", "ollama"},
	"reasoning": {"anthropic", "openai", "ollama"},
	"chat":      {"openai", "anthropic", "ollama"},
	"default":   {"anthropic", "openai", "ollama"},
}

// freePreferences orders providers for the free-tier fallback: local
// inference before the simulated stub.
var freePreferences = []string{"ollama", "simulated"}

// Router picks a (provider, model) pair per request, degrading through the
// fallback cascade when the budget engine rejects the preferred pair.
type Router struct {
	table   *Table
	catalog *pricing.Catalog
	budget  BudgetChecker
	logger  *slog.Logger
	stats   *Stats
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router's logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter creates a budget-aware router.
func NewRouter(table *Table, catalog *pricing.Catalog, checker BudgetChecker, opts ...RouterOption) *Router {
	r := &Router{
		table:   table,
		catalog: catalog,
		budget:  checker,
		logger:  slog.Default().With("component", "routing"),
		stats:   NewStats(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the router's decision counters.
func (r *Router) Stats() *Stats {
	return r.stats
}

// Resolve returns the configured route for (component, taskType) without
// applying budget awareness.
func (r *Router) Resolve(component, taskType string) TaskRoute {
	return r.table.Resolve(component, taskType)
}

// Route resolves the preferred pair for the request and degrades through the
// cascade if the budget engine rejects it: cheaper alternative by task
// preference, then a free model, then the cheapest model regardless of
// budget, then the preferred pair itself as a last resort. Route always
// returns a decision.
func (r *Router) Route(ctx context.Context, req Request) *Decision {
	route := r.table.Resolve(req.Component, req.TaskType)
	if req.Provider != "" && req.Model != "" {
		route.Provider = req.Provider
		route.Model = req.Model
	}

	r.stats.IncrementTotal()

	decision := &Decision{
		Provider: route.Provider,
		Model:    route.Model,
		Options:  route.Options,
		Fallback: route.Fallback,
	}

	result := r.check(ctx, req, route.Provider, route.Model)
	if result.Allowed {
		decision.Warnings = result.Warnings
		r.stats.IncrementProvider(route.Provider)
		return decision
	}

	// The preferred pair is over budget. Try a strictly cheaper pair
	// ranked by task-type provider preference.
	if alt, ok := r.findCheaperAlternative(route.Provider, route.Model, req.TaskType); ok {
		altResult := r.check(ctx, req, alt.Provider, alt.Model)
		if altResult.Allowed {
			decision.Provider = alt.Provider
			decision.Model = alt.Model
			decision.Downgraded = true
			decision.Warnings = append(altResult.Warnings, fmt.Sprintf(
				"budget limit exceeded; downgraded from %s/%s to %s/%s",
				route.Provider, route.Model, alt.Provider, alt.Model))
			r.stats.IncrementDowngrade()
			r.stats.IncrementProvider(alt.Provider)
			r.logger.Warn("routing downgraded",
				"from_provider", route.Provider, "from_model", route.Model,
				"to_provider", alt.Provider, "to_model", alt.Model)
			return decision
		}
	}

	// No affordable paid alternative: fall to the free tier.
	if free, ok := r.pickFree(); ok {
		decision.Provider = free.Provider
		decision.Model = free.Model
		decision.Downgraded = true
		decision.Warnings = []string{fmt.Sprintf(
			"budget limit exceeded; using free model %s/%s", free.Provider, free.Model)}
		r.stats.IncrementFreeFallback()
		r.stats.IncrementProvider(free.Provider)
		return decision
	}

	// No free model either: take the global cheapest regardless of budget.
	if cheapest, ok := r.catalog.Cheapest(); ok {
		decision.Provider = cheapest.Provider
		decision.Model = cheapest.Model
		decision.Downgraded = true
		decision.Warnings = []string{fmt.Sprintf(
			"budget limit exceeded; using cheapest model %s/%s", cheapest.Provider, cheapest.Model)}
		r.stats.IncrementEmergency()
		r.stats.IncrementProvider(cheapest.Provider)
		r.logger.Warn("routing emergency fallback",
			"provider", cheapest.Provider, "model", cheapest.Model)
		return decision
	}

	// Empty catalog: surrender to the preferred pair.
	decision.Warnings = []string{fmt.Sprintf(
		"budget limit exceeded but %v; using default model %s/%s",
		ErrCatalogEmpty, decision.Provider, decision.Model)}
	r.stats.IncrementEmergency()
	r.stats.IncrementProvider(decision.Provider)
	r.logger.Warn("routing last resort",
		"provider", decision.Provider, "model", decision.Model,
		"error", ErrCatalogEmpty)
	return decision
}

// check consults the budget engine. A failing budget store never blocks
// routing; the error is logged and the request treated as allowed.
func (r *Router) check(ctx context.Context, req Request, provider, model string) *budget.CheckResult {
	result, err := r.budget.Check(ctx, budget.CheckRequest{
		Provider:  provider,
		Model:     model,
		InputText: req.InputText,
		Component: req.Component,
		TaskType:  req.TaskType,
	})
	if err != nil {
		r.logger.Error("budget check unavailable, allowing request",
			"provider", provider, "model", model, "error", err)
		return &budget.CheckResult{Allowed: true}
	}
	return result
}

// findCheaperAlternative returns the best pair strictly cheaper per token
// than the current pair, ranked by task provider preference then ascending
// cost. A pair that is already free has no cheaper alternative.
func (r *Router) findCheaperAlternative(provider, model, taskType string) (pricing.Entry, bool) {
	current := r.catalog.Lookup(provider, model).PerToken()
	if current == 0 {
		return pricing.Entry{}, false
	}

	candidates := r.catalog.CheaperThan(current)
	if len(candidates) == 0 {
		return pricing.Entry{}, false
	}

	preferred, ok := taskPreferences[taskType]
	if !ok {
		preferred = taskPreferences["default"]
	}
	rank := func(p string) int {
		for i, name := range preferred {
			if name == p {
				return i
			}
		}
		return len(preferred) + 1
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i].Provider), rank(candidates[j].Provider)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Price.PerToken() < candidates[j].Price.PerToken()
	})

	return candidates[0], true
}

// pickFree returns a zero-cost pair, preferring providers in freePreferences
// order, else the first free entry.
func (r *Router) pickFree() (pricing.Entry, bool) {
	free := r.catalog.Free()
	if len(free) == 0 {
		return pricing.Entry{}, false
	}
	for _, provider := range freePreferences {
		for _, entry := range free {
			if entry.Provider == provider {
				return entry, true
			}
		}
	}
	return free[0], true
}
