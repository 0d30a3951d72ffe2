package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rhea-hq/rhea/pkg/costs"
)

// GroupBy keys for usage summaries.
const (
	GroupByProvider  = "provider"
	GroupByModel     = "model"
	GroupByComponent = "component"
	GroupByTaskType  = "task_type"
)

// CheckRequest describes a prospective completion for a pre-flight check.
type CheckRequest struct {
	Provider  string
	Model     string
	InputText string

	// AssumedOutputLen overrides the default assumed output length used
	// for the pre-flight estimate. Zero selects the default.
	AssumedOutputLen int

	Component string
	TaskType  string
}

// Engine applies budget settings to requests and maintains the usage ledger.
//
// Budgeting is advisory: checks and records are separate operations, so two
// concurrent requests can both pass a check that their combined cost would
// fail. Recording never consults budget state and never rejects.
type Engine struct {
	store     Store
	estimator *costs.Estimator
	logger    *slog.Logger
	metrics   *Metrics

	// assumedOutputLen is the default placeholder output length for
	// pre-flight estimates.
	assumedOutputLen int

	// now is replaceable for tests.
	now func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the engine's metrics collector.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithAssumedOutputLen sets the default placeholder output length used for
// pre-flight estimates when a check does not name its own.
func WithAssumedOutputLen(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.assumedOutputLen = n
		}
	}
}

// NewEngine creates a budget engine over the given store and cost estimator.
func NewEngine(store Store, estimator *costs.Estimator, opts ...EngineOption) *Engine {
	e := &Engine{
		store:            store,
		estimator:        estimator,
		logger:           slog.Default().With("component", "budget"),
		assumedOutputLen: costs.DefaultAssumedOutputLen,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetLimit installs a new cap for (period, provider), superseding any active
// setting for the pair. The superseded row is deactivated, not deleted.
func (e *Engine) SetLimit(ctx context.Context, period Period, provider string, amount float64, policy Policy) (*Setting, error) {
	if amount < 0 {
		return nil, fmt.Errorf("limit amount cannot be negative")
	}
	if provider == "" {
		provider = ScopeAll
	}

	setting := &Setting{
		Period:      period,
		Provider:    provider,
		LimitAmount: amount,
		Enforcement: policy,
		StartDate:   e.now(),
	}
	if err := e.store.ReplaceSetting(ctx, setting); err != nil {
		return nil, fmt.Errorf("failed to set limit: %w", err)
	}

	e.logger.Info("budget limit set",
		"period", period,
		"provider", provider,
		"limit", amount,
		"enforcement", policy)

	return setting, nil
}

// SetEnforcement changes the policy on the active setting for the pair. When
// no setting is active, a zero-limit row is created to carry the policy.
func (e *Engine) SetEnforcement(ctx context.Context, period Period, provider string, policy Policy) error {
	if provider == "" {
		provider = ScopeAll
	}

	updated, err := e.store.UpdateEnforcement(ctx, period, provider, policy)
	if err != nil {
		return fmt.Errorf("failed to update enforcement: %w", err)
	}
	if !updated {
		setting := &Setting{
			Period:      period,
			Provider:    provider,
			LimitAmount: 0,
			Enforcement: policy,
			StartDate:   e.now(),
		}
		if err := e.store.ReplaceSetting(ctx, setting); err != nil {
			return fmt.Errorf("failed to create enforcement setting: %w", err)
		}
	}

	e.logger.Info("budget enforcement set",
		"period", period,
		"provider", provider,
		"enforcement", policy)

	return nil
}

// CurrentUsage returns the cost accumulated in the current period. An empty
// provider sums across all providers.
func (e *Engine) CurrentUsage(ctx context.Context, period Period, provider string) (float64, error) {
	return e.store.SumCostSince(ctx, period.Start(e.now()), provider)
}

// Check runs the pre-flight budget check for a prospective request. Requests
// whose estimated cost is zero always pass. Otherwise each period's active
// setting is consulted, preferring a provider-specific setting over the
// all-providers one; enforce policies reject, warn policies accumulate
// warnings, ignore policies and zero limits are skipped.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	assumed := req.AssumedOutputLen
	if assumed <= 0 {
		assumed = e.assumedOutputLen
	}
	estimate := e.estimator.Estimate(req.Provider, req.Model, req.InputText, assumed)

	result := &CheckResult{
		Allowed:  true,
		Estimate: estimate,
	}

	if estimate.TotalCost == 0 {
		result.Reason = "free model"
		return result, nil
	}

	now := e.now()
	for _, period := range Periods {
		setting, err := e.activeSettingFor(ctx, period, req.Provider)
		if err != nil {
			return nil, err
		}
		if setting == nil || setting.LimitAmount == 0 || setting.Enforcement == PolicyIgnore {
			continue
		}

		// Usage scope follows the setting, not the request: an
		// all-providers cap counts every provider's spend.
		scope := setting.Provider
		if scope == ScopeAll {
			scope = ""
		}
		usage, err := e.store.SumCostSince(ctx, period.Start(now), scope)
		if err != nil {
			return nil, fmt.Errorf("failed to sum %s usage: %w", period, err)
		}

		if usage+estimate.TotalCost <= setting.LimitAmount {
			continue
		}

		switch setting.Enforcement {
		case PolicyEnforce:
			result.Allowed = false
			result.Reason = fmt.Sprintf("%s budget exceeded for %s: %.4f + %.4f > %.4f",
				period, setting.Provider, usage, estimate.TotalCost, setting.LimitAmount)
			result.Period = period
			result.Limit = setting.LimitAmount
			result.Usage = usage
			if e.metrics != nil {
				e.metrics.ChecksRejected.WithLabelValues(string(period), setting.Provider).Inc()
			}
			e.logger.Warn("budget check rejected request",
				"period", period,
				"provider", setting.Provider,
				"usage", usage,
				"estimate", estimate.TotalCost,
				"limit", setting.LimitAmount)
			return result, nil
		case PolicyWarn:
			warning := fmt.Sprintf("%s budget for %s at %.4f of %.4f; this request adds %.4f",
				period, setting.Provider, usage, setting.LimitAmount, estimate.TotalCost)
			result.Warnings = append(result.Warnings, warning)
			if e.metrics != nil {
				e.metrics.CheckWarnings.WithLabelValues(string(period), setting.Provider).Inc()
			}
			e.logger.Warn("budget warning",
				"period", period,
				"provider", setting.Provider,
				"usage", usage,
				"limit", setting.LimitAmount)
		}
	}

	if e.metrics != nil {
		e.metrics.ChecksAllowed.WithLabelValues(req.Provider).Inc()
	}
	return result, nil
}

// activeSettingFor prefers the provider-specific setting, falling back to the
// all-providers one.
func (e *Engine) activeSettingFor(ctx context.Context, period Period, provider string) (*Setting, error) {
	if provider != "" && provider != ScopeAll {
		setting, err := e.store.ActiveSetting(ctx, period, provider)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s setting: %w", period, err)
		}
		if setting != nil {
			return setting, nil
		}
	}
	setting, err := e.store.ActiveSetting(ctx, period, ScopeAll)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s setting: %w", period, err)
	}
	return setting, nil
}

// Record appends one record to the usage ledger. Recording succeeds
// regardless of budget state; only storage failures are returned.
func (e *Engine) Record(ctx context.Context, record *UsageRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = e.now()
	}
	if err := e.store.AppendUsage(ctx, record); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	if e.metrics != nil {
		e.metrics.UsageRecorded.WithLabelValues(record.Provider, record.Model).Inc()
		e.metrics.CostRecorded.WithLabelValues(record.Provider, record.Model).Add(record.Cost)
		e.metrics.TokensRecorded.WithLabelValues(record.Provider, record.Model, "input").Add(float64(record.InputTokens))
		e.metrics.TokensRecorded.WithLabelValues(record.Provider, record.Model, "output").Add(float64(record.OutputTokens))
	}

	e.logger.Debug("usage recorded",
		"provider", record.Provider,
		"model", record.Model,
		"component", record.Component,
		"cost", record.Cost)

	return nil
}

// RecordCompletion prices a finished request from its texts and appends it to
// the ledger.
func (e *Engine) RecordCompletion(ctx context.Context, provider, model, inputText, outputText, component, taskType string, metadata map[string]any) (*UsageRecord, error) {
	breakdown := e.estimator.Actual(provider, model, inputText, outputText)
	record := &UsageRecord{
		Timestamp:    e.now(),
		Provider:     provider,
		Model:        model,
		Component:    component,
		TaskType:     taskType,
		InputTokens:  breakdown.InputTokens,
		OutputTokens: breakdown.OutputTokens,
		Cost:         breakdown.TotalCost,
		Metadata:     metadata,
	}
	if err := e.Record(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordTokens appends a ledger record priced from reported token counts,
// for callers whose backends return usage directly.
func (e *Engine) RecordTokens(ctx context.Context, provider, model string, inputTokens, outputTokens int, component, taskType string, metadata map[string]any) (*UsageRecord, error) {
	breakdown := e.estimator.FromTokens(provider, model, inputTokens, outputTokens)
	record := &UsageRecord{
		Timestamp:    e.now(),
		Provider:     provider,
		Model:        model,
		Component:    component,
		TaskType:     taskType,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         breakdown.TotalCost,
		Metadata:     metadata,
	}
	if err := e.Record(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// UsageSummary aggregates the current period's ledger records, grouped by
// one of the GroupBy keys.
func (e *Engine) UsageSummary(ctx context.Context, period Period, groupBy string) (*Summary, error) {
	switch groupBy {
	case GroupByProvider, GroupByModel, GroupByComponent, GroupByTaskType:
	case "":
		groupBy = GroupByProvider
	default:
		return nil, fmt.Errorf("unknown group key %q", groupBy)
	}

	records, err := e.store.UsageSince(ctx, period.Start(e.now()), "")
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	summary := &Summary{
		Period: period,
		Groups: make(map[string]GroupTotals),
	}
	for _, r := range records {
		var key string
		switch groupBy {
		case GroupByProvider:
			key = r.Provider
		case GroupByModel:
			key = r.Model
		case GroupByComponent:
			key = r.Component
		case GroupByTaskType:
			key = r.TaskType
		}
		if key == "" {
			key = "unknown"
		}

		totals := summary.Groups[key]
		totals.Cost += r.Cost
		totals.InputTokens += r.InputTokens
		totals.OutputTokens += r.OutputTokens
		totals.Count++
		summary.Groups[key] = totals

		summary.TotalCost += r.Cost
		summary.TotalInputTokens += r.InputTokens
		summary.TotalOutputTokens += r.OutputTokens
		summary.Count++
	}
	return summary, nil
}

// Settings returns every active budget setting.
func (e *Engine) Settings(ctx context.Context) ([]Setting, error) {
	return e.store.ActiveSettings(ctx)
}

// SeedDefaults installs settings from configuration for pairs that have no
// active setting yet. Pairs already configured at runtime are left alone so
// a restart does not clobber operator changes.
func (e *Engine) SeedDefaults(ctx context.Context, seeds []Setting) error {
	for _, seed := range seeds {
		provider := seed.Provider
		if provider == "" {
			provider = ScopeAll
		}
		existing, err := e.store.ActiveSetting(ctx, seed.Period, provider)
		if err != nil {
			return fmt.Errorf("failed to load existing setting: %w", err)
		}
		if existing != nil {
			continue
		}
		setting := &Setting{
			Period:      seed.Period,
			Provider:    provider,
			LimitAmount: seed.LimitAmount,
			Enforcement: seed.Enforcement,
			StartDate:   e.now(),
		}
		if err := e.store.ReplaceSetting(ctx, setting); err != nil {
			return fmt.Errorf("failed to seed setting: %w", err)
		}
		e.logger.Info("seeded budget setting",
			"period", seed.Period,
			"provider", provider,
			"limit", seed.LimitAmount,
			"enforcement", seed.Enforcement)
	}
	return nil
}

// PruneUsage removes ledger rows older than the cutoff, returning the number
// removed.
func (e *Engine) PruneUsage(ctx context.Context, olderThan time.Time) (int, error) {
	deleted, err := e.store.PruneUsage(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	if deleted > 0 {
		e.logger.Info("pruned usage records", "deleted", deleted, "older_than", olderThan)
	}
	return deleted, nil
}
