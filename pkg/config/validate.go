package config

import (
	"fmt"
	"strings"
	"time"

	"rhea-hq/rhea/pkg/budget"
)

// minUsageRetention is the shortest allowed usage record retention. Pruning
// inside the current monthly budget period would shrink its reported usage,
// and a monthly period spans up to 31 days.
const minUsageRetention = 31 * 24 * time.Hour

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.context_backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validatePricing(cfg.Pricing)...)
	errs = append(errs, validateTokens(&cfg.Tokens)...)
	errs = append(errs, validateTasks(cfg.Tasks)...)
	errs = append(errs, validateBudgets(&cfg.Budgets)...)
	errs = append(errs, validateContexts(&cfg.Contexts)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateStorage validates storage configuration.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.DataDir == "" {
		errs = append(errs, FieldError{
			Field:   "storage.data_dir",
			Message: "data directory is required",
		})
	}

	switch cfg.ContextBackend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.context_backend",
			Message: fmt.Sprintf("unknown backend %q (must be file, sqlite, or memory)", cfg.ContextBackend),
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "storage.busy_timeout",
			Message: "busy timeout must be non-negative",
		})
	}

	return errs
}

// validatePricing validates the per-provider price table.
func validatePricing(pricing map[string]map[string]PriceConfig) []FieldError {
	var errs []FieldError

	for provider, models := range pricing {
		for model, price := range models {
			if price.InputCostPerToken < 0 {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("pricing.%s.%s.input_cost_per_token", provider, model),
					Message: "price must be non-negative",
				})
			}
			if price.OutputCostPerToken < 0 {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("pricing.%s.%s.output_cost_per_token", provider, model),
					Message: "price must be non-negative",
				})
			}
		}
	}

	return errs
}

// validateTokens validates token estimation configuration.
func validateTokens(cfg *TokensConfig) []FieldError {
	var errs []FieldError

	for model, ratio := range cfg.Ratios {
		if ratio <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("tokens.ratios.%s", model),
				Message: "ratio must be positive",
			})
		}
	}

	return errs
}

// validateTasks validates task routing configuration.
func validateTasks(tasks map[string]TaskRouteConfig) []FieldError {
	var errs []FieldError

	for task, route := range tasks {
		if route.Provider == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("tasks.%s.provider", task),
				Message: "provider is required",
			})
		}
		if route.Model == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("tasks.%s.model", task),
				Message: "model is required",
			})
		}
		if route.Options.MaxTokens < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("tasks.%s.options.max_tokens", task),
				Message: "max tokens must be non-negative",
			})
		}
	}

	return errs
}

// validateBudgets validates budget seed configuration.
func validateBudgets(cfg *BudgetsConfig) []FieldError {
	var errs []FieldError

	for i, seed := range cfg.Seeds {
		if _, err := budget.ParsePeriod(seed.Period); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("budgets.seeds[%d].period", i),
				Message: err.Error(),
			})
		}
		if _, err := budget.ParsePolicy(seed.Enforcement); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("budgets.seeds[%d].enforcement", i),
				Message: err.Error(),
			})
		}
		if seed.Limit < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("budgets.seeds[%d].limit", i),
				Message: "limit must be non-negative",
			})
		}
	}

	if cfg.AssumedOutputLength < 0 {
		errs = append(errs, FieldError{
			Field:   "budgets.assumed_output_length",
			Message: "assumed output length must be non-negative",
		})
	}

	return errs
}

// validateContexts validates conversation context configuration.
func validateContexts(cfg *ContextsConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxTokens <= 0 {
		errs = append(errs, FieldError{
			Field:   "contexts.max_tokens",
			Message: "max tokens must be positive",
		})
	}
	if cfg.MaxMessages < 0 {
		errs = append(errs, FieldError{
			Field:   "contexts.max_messages",
			Message: "max messages must be non-negative",
		})
	}

	switch cfg.SummaryMethod {
	case "heuristic", "model":
	default:
		errs = append(errs, FieldError{
			Field:   "contexts.summary_method",
			Message: fmt.Sprintf("unknown method %q (must be heuristic or model)", cfg.SummaryMethod),
		})
	}

	if cfg.SummaryMethod == "model" {
		if cfg.SummaryProvider == "" {
			errs = append(errs, FieldError{
				Field:   "contexts.summary_provider",
				Message: "provider is required for model summaries",
			})
		}
		if cfg.SummaryModel == "" {
			errs = append(errs, FieldError{
				Field:   "contexts.summary_model",
				Message: "model is required for model summaries",
			})
		}
	}

	return errs
}

// validateRetention validates retention configuration.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && cfg.Schedule == "" {
		errs = append(errs, FieldError{
			Field:   "retention.schedule",
			Message: "schedule is required when retention is enabled",
		})
	}
	if cfg.UsageMaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.usage_max_age",
			Message: "usage max age must be non-negative",
		})
	} else if cfg.UsageMaxAge > 0 && cfg.UsageMaxAge < minUsageRetention {
		errs = append(errs, FieldError{
			Field:   "retention.usage_max_age",
			Message: fmt.Sprintf("usage max age must cover the longest budget period (%v)", minUsageRetention),
		})
	}
	if cfg.ContextIdleFlush < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.context_idle_flush",
			Message: "context idle flush must be non-negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.log_level",
			Message: fmt.Sprintf("unknown level %q (must be debug, info, warn, or error)", cfg.LogLevel),
		})
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.log_format",
			Message: fmt.Sprintf("unknown format %q (must be text or json)", cfg.LogFormat),
		})
	}

	return errs
}
