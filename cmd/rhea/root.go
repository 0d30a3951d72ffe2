package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rhea-hq/rhea/pkg/config"
	"rhea-hq/rhea/pkg/service"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rhea",
	Short: "Rhea - budget-aware LLM routing and context engine",
	Long: `Rhea routes LLM requests to (provider, model) pairs under configurable
spend caps and maintains token-bounded conversation contexts.

It provides:
  - Task- and component-based model routing with a budget fallback cascade
  - Per-period spend caps with ignore/warn/enforce policies
  - An append-only usage ledger with grouped summaries
  - Conversation windows with archival summarization, search, and merge`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults to built-in configuration)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration named by --config, or the built-in
// defaults when the flag is unset, and installs logging per its telemetry
// section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

// newService constructs the wired application core for a CLI invocation.
// The caller must Close it.
func newService(ctx context.Context) (*service.Service, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	svc, err := service.New(ctx, cfg, service.Options{})
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Telemetry.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Telemetry.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
