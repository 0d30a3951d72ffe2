package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Apply defaults
	ApplyDefaults(&cfg)

	// Validate
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RHEA_SECTION_FIELD (e.g., RHEA_STORAGE_DATA_DIR).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	// First load from file (this already applies defaults)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Re-validate after overrides
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from path when it is non-empty, and falls
// back to the built-in defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfigWithEnvOverrides(path)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format RHEA_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Storage overrides
	if val := os.Getenv("RHEA_STORAGE_DATA_DIR"); val != "" {
		cfg.Storage.DataDir = val
	}
	if val := os.Getenv("RHEA_STORAGE_BUDGET_DB"); val != "" {
		cfg.Storage.BudgetDB = val
	}
	if val := os.Getenv("RHEA_STORAGE_CONTEXT_BACKEND"); val != "" {
		cfg.Storage.ContextBackend = val
	}
	if val := os.Getenv("RHEA_STORAGE_CONTEXT_DIR"); val != "" {
		cfg.Storage.ContextDir = val
	}
	if val := os.Getenv("RHEA_STORAGE_CONTEXT_DB"); val != "" {
		cfg.Storage.ContextDB = val
	}
	if val := os.Getenv("RHEA_STORAGE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.BusyTimeout = d
		}
	}

	// Context overrides
	if val := os.Getenv("RHEA_CONTEXTS_MAX_TOKENS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Contexts.MaxTokens = i
		}
	}
	if val := os.Getenv("RHEA_CONTEXTS_MAX_MESSAGES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Contexts.MaxMessages = i
		}
	}
	if val := os.Getenv("RHEA_CONTEXTS_SUMMARY_METHOD"); val != "" {
		cfg.Contexts.SummaryMethod = val
	}

	// Retention overrides
	if val := os.Getenv("RHEA_RETENTION_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Retention.Enabled = b
		}
	}
	if val := os.Getenv("RHEA_RETENTION_SCHEDULE"); val != "" {
		cfg.Retention.Schedule = val
	}
	if val := os.Getenv("RHEA_RETENTION_USAGE_MAX_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Retention.UsageMaxAge = d
		}
	}

	// Telemetry overrides
	if val := os.Getenv("RHEA_TELEMETRY_LOG_LEVEL"); val != "" {
		cfg.Telemetry.LogLevel = val
	}
	if val := os.Getenv("RHEA_TELEMETRY_LOG_FORMAT"); val != "" {
		cfg.Telemetry.LogFormat = val
	}
	if val := os.Getenv("RHEA_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.MetricsEnabled = b
		}
	}
}
