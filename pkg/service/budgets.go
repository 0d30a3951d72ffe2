package service

import (
	"context"

	"rhea-hq/rhea/pkg/budget"
	"rhea-hq/rhea/pkg/routing"
)

// CheckBudget runs the pre-flight budget check for a prospective request
// without routing around a rejection. A rejected request returns the result
// together with a *routing.BudgetExceededError, matchable with
// errors.Is(err, routing.ErrBudgetExceeded).
func (s *Service) CheckBudget(ctx context.Context, provider, model, inputText, component, taskType string) (*budget.CheckResult, error) {
	result, err := s.budget.Check(ctx, budget.CheckRequest{
		Provider:  provider,
		Model:     model,
		InputText: inputText,
		Component: component,
		TaskType:  taskType,
	})
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, &routing.BudgetExceededError{
			Period:   string(result.Period),
			Provider: provider,
			Limit:    result.Limit,
			Usage:    result.Usage,
		}
	}
	return result, nil
}

// RecordCompletion writes a completed request to the usage ledger with
// estimated token counts. Recording never consults budget state.
func (s *Service) RecordCompletion(ctx context.Context, provider, model, inputText, outputText, component, taskType string, metadata map[string]any) (*budget.UsageRecord, error) {
	return s.budget.RecordCompletion(ctx, provider, model, inputText, outputText, component, taskType, metadata)
}

// CurrentUsage returns the cost accumulated in the named period. An empty
// provider sums across all providers.
func (s *Service) CurrentUsage(ctx context.Context, period, provider string) (float64, error) {
	p, err := budget.ParsePeriod(period)
	if err != nil {
		return 0, err
	}
	return s.budget.CurrentUsage(ctx, p, provider)
}

// UsageSummary returns aggregate usage for the named period grouped by
// provider, model, component, or task_type.
func (s *Service) UsageSummary(ctx context.Context, period, groupBy string) (*budget.Summary, error) {
	p, err := budget.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return s.budget.UsageSummary(ctx, p, groupBy)
}

// SetBudgetLimit installs a spend cap for (period, provider), superseding
// any active setting for the pair.
func (s *Service) SetBudgetLimit(ctx context.Context, period, provider string, amount float64, enforcement string) (*budget.Setting, error) {
	p, err := budget.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	policy, err := budget.ParsePolicy(enforcement)
	if err != nil {
		return nil, err
	}
	return s.budget.SetLimit(ctx, p, provider, amount, policy)
}

// SetEnforcementPolicy changes how the active (period, provider) cap is
// acted on, creating a zero-limit carrier setting when none is active.
func (s *Service) SetEnforcementPolicy(ctx context.Context, period, provider, enforcement string) error {
	p, err := budget.ParsePeriod(period)
	if err != nil {
		return err
	}
	policy, err := budget.ParsePolicy(enforcement)
	if err != nil {
		return err
	}
	return s.budget.SetEnforcement(ctx, p, provider, policy)
}

// BudgetSettings returns every active budget setting.
func (s *Service) BudgetSettings(ctx context.Context) ([]budget.Setting, error) {
	return s.budget.Settings(ctx)
}
