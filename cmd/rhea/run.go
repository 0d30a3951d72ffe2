package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rhea-hq/rhea/pkg/config"
)

var runFlags struct {
	watchConfig bool
	debounce    time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run Rhea as a long-lived engine",
	Long: `Run Rhea as a long-lived engine until interrupted.

The retention scheduler prunes old usage records and idle contexts on the
configured cron schedule, and with --watch the configuration file is
monitored for changes: edits to pricing and token ratios apply in place
without a restart.

Examples:
  # Run with the built-in configuration
  rhea run

  # Run with a config file and hot reload
  rhea run --config /etc/rhea/config.yaml --watch`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch", false, "reload pricing and token ratios when the config file changes")
	runCmd.Flags().DurationVar(&runFlags.debounce, "watch-debounce", 0, "quiet interval before a reload (default 100ms)")
}

func runEngine(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cfg, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}

	if runFlags.watchConfig {
		if cfgFile == "" {
			return fmt.Errorf("--watch requires --config")
		}
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:             cfgFile,
			DebounceInterval: runFlags.debounce,
		}, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		defer watcher.Stop()
		go func() {
			if err := watcher.Watch(ctx, svc.ApplyConfig); err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		}()
	}

	slog.Info("rhea running",
		"retention_enabled", cfg.Retention.Enabled,
		"config_watch", runFlags.watchConfig,
	)

	<-ctx.Done()

	stats := svc.RoutingStats()
	slog.Info("rhea shutting down",
		"routing_requests", stats.TotalRequests,
		"routing_downgrades", stats.Downgrades,
		"routing_free_fallbacks", stats.FreeFallbacks,
		"routing_emergencies", stats.Emergencies,
	)
	return nil
}
