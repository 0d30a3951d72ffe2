package config

import (
	"time"

	"rhea-hq/rhea/pkg/budget"
	"rhea-hq/rhea/pkg/pricing"
	"rhea-hq/rhea/pkg/routing"
)

// Config is the root configuration structure for Rhea. It contains all
// sections for storage, pricing, token estimation, task routing, budgets,
// conversation contexts, retention, and telemetry.
type Config struct {
	// Storage configures the durable stores for the usage ledger and
	// conversation documents.
	Storage StorageConfig `yaml:"storage"`

	// Pricing is the per-(provider, model) cost table. Keys are provider
	// names, then model ids. An empty table selects the built-in prices.
	Pricing map[string]map[string]PriceConfig `yaml:"pricing"`

	// Tokens configures token estimation.
	Tokens TokensConfig `yaml:"tokens"`

	// Tasks is the route table. Keys are task types ("code", "chat"),
	// component names ("ergon"), or component_task pairs ("ergon_code").
	Tasks map[string]TaskRouteConfig `yaml:"tasks"`

	// Budgets configures spend limits.
	Budgets BudgetsConfig `yaml:"budgets"`

	// Contexts configures conversation windows.
	Contexts ContextsConfig `yaml:"contexts"`

	// Retention configures background pruning and flushing.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects and locates the durable stores.
type StorageConfig struct {
	// DataDir is the base directory for data files.
	// Default: "data"
	DataDir string `yaml:"data_dir"`

	// BudgetDB is the SQLite file for the usage ledger and budget
	// settings. Relative paths resolve under DataDir.
	// Default: "budget.db"
	BudgetDB string `yaml:"budget_db"`

	// ContextBackend selects conversation persistence: "file", "sqlite",
	// or "memory" for no persistence.
	// Default: "file"
	ContextBackend string `yaml:"context_backend"`

	// ContextDir is the directory for file-backed context documents.
	// Relative paths resolve under DataDir.
	// Default: "contexts"
	ContextDir string `yaml:"context_dir"`

	// ContextDB is the SQLite file for sqlite-backed context documents.
	// Relative paths resolve under DataDir.
	// Default: "contexts.db"
	ContextDB string `yaml:"context_db"`

	// BusyTimeout is the SQLite lock wait.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PriceConfig is one model's per-token cost pair.
type PriceConfig struct {
	// InputCostPerToken is the USD cost per input token.
	InputCostPerToken float64 `yaml:"input_cost_per_token"`

	// OutputCostPerToken is the USD cost per output token.
	OutputCostPerToken float64 `yaml:"output_cost_per_token"`
}

// TokensConfig configures token estimation.
type TokensConfig struct {
	// Ratios maps model ids (or family prefixes, or "default") to
	// characters-per-token ratios. An empty table selects the pure
	// heuristic counter.
	Ratios map[string]float64 `yaml:"ratios"`
}

// TaskRouteConfig is one configured route.
type TaskRouteConfig struct {
	Provider string              `yaml:"provider"`
	Model    string              `yaml:"model"`
	Options  RouteOptionsConfig  `yaml:"options"`
	Fallback RouteFallbackConfig `yaml:"fallback"`
}

// RouteOptionsConfig carries a route's completion parameters.
type RouteOptionsConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RouteFallbackConfig is a route's static backup pair.
type RouteFallbackConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// BudgetsConfig configures spend limits.
type BudgetsConfig struct {
	// Seeds are limits installed at startup for (period, provider) pairs
	// that have no active setting yet. Runtime changes are never
	// overwritten by seeds.
	Seeds []BudgetSeedConfig `yaml:"seeds"`

	// AssumedOutputLength is the placeholder output length (characters)
	// used for pre-flight cost estimates.
	// Default: 500
	AssumedOutputLength int `yaml:"assumed_output_length"`
}

// BudgetSeedConfig is one seeded budget limit.
type BudgetSeedConfig struct {
	// Period is "daily", "weekly", or "monthly".
	Period string `yaml:"period"`

	// Provider is a provider name or "all".
	// Default: "all"
	Provider string `yaml:"provider"`

	// Limit is the USD cap for the period.
	Limit float64 `yaml:"limit"`

	// Enforcement is "ignore", "warn", or "enforce".
	// Default: "warn"
	Enforcement string `yaml:"enforcement"`
}

// ContextsConfig configures conversation windows.
type ContextsConfig struct {
	// MaxTokens bounds each window's active token total.
	// Default: 4000
	MaxTokens int `yaml:"max_tokens"`

	// MaxMessages bounds each window's active message count. Zero means
	// unbounded.
	MaxMessages int `yaml:"max_messages"`

	// SummaryMethod selects archival summarization: "heuristic" or
	// "model".
	// Default: "heuristic"
	SummaryMethod string `yaml:"summary_method"`

	// SummaryProvider and SummaryModel name the pair the model
	// summarizer completes against.
	SummaryProvider string `yaml:"summary_provider"`
	SummaryModel    string `yaml:"summary_model"`
}

// RetentionConfig configures background maintenance.
type RetentionConfig struct {
	// Enabled turns the retention scheduler on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is the cron expression for maintenance runs.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string `yaml:"schedule"`

	// UsageMaxAge is how long ledger records are kept. Zero disables
	// pruning.
	// Default: 2160h (90 days)
	UsageMaxAge time.Duration `yaml:"usage_max_age"`

	// ContextIdleFlush is how long a window may sit unused in memory
	// before it is persisted and evicted. Zero disables flushing.
	// Default: 24h
	ContextIdleFlush time.Duration `yaml:"context_idle_flush"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	// LogLevel is "debug", "info", "warn", or "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json".
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// MetricsEnabled registers Prometheus collectors.
	// Default: true
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// PriceTable converts the configured pricing section to catalog form. An
// empty section yields the built-in table.
func (c *Config) PriceTable() map[string]map[string]pricing.Price {
	if len(c.Pricing) == 0 {
		return pricing.DefaultPrices()
	}
	table := make(map[string]map[string]pricing.Price, len(c.Pricing))
	for provider, models := range c.Pricing {
		table[provider] = make(map[string]pricing.Price, len(models))
		for model, price := range models {
			table[provider][model] = pricing.Price{
				InputCostPerToken:  price.InputCostPerToken,
				OutputCostPerToken: price.OutputCostPerToken,
			}
		}
	}
	return table
}

// Routes converts the configured task section to route-table form. An empty
// section yields the built-in routes.
func (c *Config) Routes() map[string]routing.TaskRoute {
	if len(c.Tasks) == 0 {
		return routing.DefaultRoutes()
	}
	routes := make(map[string]routing.TaskRoute, len(c.Tasks))
	for key, task := range c.Tasks {
		routes[key] = routing.TaskRoute{
			Provider: task.Provider,
			Model:    task.Model,
			Options: routing.Options{
				Temperature: task.Options.Temperature,
				MaxTokens:   task.Options.MaxTokens,
			},
			Fallback: routing.Fallback{
				Provider: task.Fallback.Provider,
				Model:    task.Fallback.Model,
			},
		}
	}
	return routes
}

// BudgetSeeds converts the configured seeds to budget settings.
func (c *Config) BudgetSeeds() []budget.Setting {
	seeds := make([]budget.Setting, 0, len(c.Budgets.Seeds))
	for _, seed := range c.Budgets.Seeds {
		seeds = append(seeds, budget.Setting{
			Period:      budget.Period(seed.Period),
			Provider:    seed.Provider,
			LimitAmount: seed.Limit,
			Enforcement: budget.Policy(seed.Enforcement),
		})
	}
	return seeds
}
