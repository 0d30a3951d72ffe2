package config

import "time"

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with their defaults. Explicitly
// configured values are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.BudgetDB == "" {
		cfg.Storage.BudgetDB = "budget.db"
	}
	if cfg.Storage.ContextBackend == "" {
		cfg.Storage.ContextBackend = "file"
	}
	if cfg.Storage.ContextDir == "" {
		cfg.Storage.ContextDir = "contexts"
	}
	if cfg.Storage.ContextDB == "" {
		cfg.Storage.ContextDB = "contexts.db"
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = 5 * time.Second
	}

	if cfg.Budgets.AssumedOutputLength == 0 {
		cfg.Budgets.AssumedOutputLength = 500
	}
	for i := range cfg.Budgets.Seeds {
		if cfg.Budgets.Seeds[i].Provider == "" {
			cfg.Budgets.Seeds[i].Provider = "all"
		}
		if cfg.Budgets.Seeds[i].Enforcement == "" {
			cfg.Budgets.Seeds[i].Enforcement = "warn"
		}
	}

	if cfg.Contexts.MaxTokens == 0 {
		cfg.Contexts.MaxTokens = 4000
	}
	if cfg.Contexts.SummaryMethod == "" {
		cfg.Contexts.SummaryMethod = "heuristic"
	}
	if cfg.Contexts.SummaryProvider == "" {
		cfg.Contexts.SummaryProvider = "anthropic"
	}
	if cfg.Contexts.SummaryModel == "" {
		cfg.Contexts.SummaryModel = "claude-3-haiku-20240307"
	}

	// A wholly absent retention section defaults to enabled; an explicit
	// section keeps its own Enabled value.
	if cfg.Retention == (RetentionConfig{}) {
		cfg.Retention.Enabled = true
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 3 * * *"
	}
	if cfg.Retention.UsageMaxAge == 0 {
		cfg.Retention.UsageMaxAge = 90 * 24 * time.Hour
	}
	if cfg.Retention.ContextIdleFlush == 0 {
		cfg.Retention.ContextIdleFlush = 24 * time.Hour
	}

	// Same convention for telemetry: an absent section enables metrics.
	if cfg.Telemetry == (TelemetryConfig{}) {
		cfg.Telemetry.MetricsEnabled = true
	}
	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = "info"
	}
	if cfg.Telemetry.LogFormat == "" {
		cfg.Telemetry.LogFormat = "text"
	}
}
