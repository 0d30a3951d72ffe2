package budget

import (
	"fmt"
	"time"

	"rhea-hq/rhea/pkg/costs"
)

// Period is a recurring accounting interval with its own spend cap.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists all periods in checking order, shortest first.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// ParsePeriod validates a period string.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown budget period %q", s)
	}
}

// Start returns the beginning of the period containing now: local midnight
// for daily, the most recent Monday midnight for weekly, the first of the
// month for monthly.
func (p Period) Start(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch p {
	case PeriodDaily:
		return midnight
	case PeriodWeekly:
		// time.Weekday is Sunday-based; shift to Monday-based.
		offset := (int(now.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return midnight
	}
}

// Policy is how a budget cap is acted on.
type Policy string

const (
	PolicyIgnore  Policy = "ignore"
	PolicyWarn    Policy = "warn"
	PolicyEnforce Policy = "enforce"
)

// ParsePolicy validates an enforcement policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyIgnore, PolicyWarn, PolicyEnforce:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown enforcement policy %q", s)
	}
}

// ScopeAll is the provider scope applying a setting to every provider.
const ScopeAll = "all"

// Setting is one budget limit row. At most one setting is active per
// (period, provider) pair; superseded rows are deactivated, never deleted.
type Setting struct {
	// ID is the storage-assigned row id.
	ID int64 `json:"id"`

	// Period is the accounting interval this limit covers.
	Period Period `json:"period"`

	// Provider is a provider name or ScopeAll.
	Provider string `json:"provider"`

	// LimitAmount is the USD cap for the period. Zero means no limit
	// (the row exists only to carry an enforcement policy).
	LimitAmount float64 `json:"limit_amount"`

	// Enforcement is the policy applied when the cap is reached.
	Enforcement Policy `json:"enforcement"`

	// StartDate is when this row became active.
	StartDate time.Time `json:"start_date"`

	// Active marks the current row for its (period, provider) pair.
	Active bool `json:"active"`
}

// UsageRecord is one completed request in the append-only ledger. Records
// are never mutated or deleted (retention pruning aside).
type UsageRecord struct {
	// ID is the storage-assigned row id.
	ID int64 `json:"id"`

	// Timestamp is when the completion was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Provider and Model identify the backend that served the request.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Component is the calling subsystem, TaskType its workload class.
	Component string `json:"component"`
	TaskType  string `json:"task_type"`

	// InputTokens and OutputTokens are the request's token counts.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Cost is the total USD cost.
	Cost float64 `json:"cost"`

	// Metadata carries request-scoped annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckResult is the outcome of a pre-flight budget check.
type CheckResult struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Reason explains a rejection (or "free model" for the zero-cost
	// short circuit).
	Reason string `json:"reason,omitempty"`

	// Period is the violated period when Allowed is false.
	Period Period `json:"period,omitempty"`

	// Limit and Usage describe the violated cap when Allowed is false.
	Limit float64 `json:"limit,omitempty"`
	Usage float64 `json:"usage,omitempty"`

	// Warnings collects warn-policy messages for periods whose caps the
	// request will push past.
	Warnings []string `json:"warnings,omitempty"`

	// Estimate is the pre-flight cost breakdown the decision was based on.
	Estimate costs.Breakdown `json:"estimate"`
}

// GroupTotals is one bucket of a usage summary.
type GroupTotals struct {
	Cost         float64 `json:"cost"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Count        int     `json:"count"`
}

// Summary aggregates ledger records for one period.
type Summary struct {
	Period            Period                 `json:"period"`
	TotalCost         float64                `json:"total_cost"`
	TotalInputTokens  int                    `json:"total_input_tokens"`
	TotalOutputTokens int                    `json:"total_output_tokens"`
	Count             int                    `json:"count"`
	Groups            map[string]GroupTotals `json:"groups"`
}
