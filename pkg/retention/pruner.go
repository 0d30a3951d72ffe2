package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// UsagePruner deletes old usage ledger records.
type UsagePruner interface {
	PruneUsage(ctx context.Context, olderThan time.Time) (int, error)
}

// ContextFlusher persists and evicts idle conversation windows.
type ContextFlusher interface {
	FlushIdle(ctx context.Context, idleFor time.Duration) int
}

// Config contains configuration for the retention pruner.
type Config struct {
	// Schedule is a cron expression for scheduling maintenance runs.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables the scheduler.
	Schedule string

	// UsageMaxAge is how long usage ledger records are retained.
	// 0 means keep records forever (no pruning).
	UsageMaxAge time.Duration

	// ContextIdleFlush is how long a conversation window may sit unused
	// in memory before it is persisted and evicted.
	// 0 disables flushing.
	ContextIdleFlush time.Duration
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule:         "0 3 * * *",
		UsageMaxAge:      90 * 24 * time.Hour,
		ContextIdleFlush: 24 * time.Hour,
	}
}

// Pruner enforces retention policies on the usage ledger and the in-memory
// conversation cache.
type Pruner struct {
	usage     UsagePruner
	contexts  ContextFlusher
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner. Either usage or contexts may be
// nil; the corresponding phase is skipped.
func NewPruner(usage UsagePruner, contexts ContextFlusher, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		usage:    usage,
		contexts: contexts,
		config:   config,
		logger:   slog.Default().With("component", "retention"),
	}

	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Scheduler returns the pruner's scheduler.
func (p *Pruner) Scheduler() *Scheduler {
	return p.scheduler
}

// Prune runs one maintenance cycle.
//
// Maintenance happens in two phases:
// 1. Ledger: delete usage records older than UsageMaxAge
// 2. Contexts: persist and evict windows idle longer than ContextIdleFlush
//
// Returns the number of ledger records deleted.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	var deleted int

	if p.usage != nil && p.config.UsageMaxAge > 0 {
		cutoff := time.Now().Add(-p.config.UsageMaxAge)
		n, err := p.usage.PruneUsage(ctx, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("prune usage failed: %w", err)
		}
		deleted = n
		p.logger.Info("pruned usage records",
			"deleted_count", n,
			"max_age", p.config.UsageMaxAge,
		)
	}

	if p.contexts != nil && p.config.ContextIdleFlush > 0 {
		flushed := p.contexts.FlushIdle(ctx, p.config.ContextIdleFlush)
		if flushed > 0 {
			p.logger.Info("flushed idle contexts",
				"flushed_count", flushed,
				"idle_for", p.config.ContextIdleFlush,
			)
		} else {
			p.logger.Debug("no idle contexts to flush")
		}
	}

	return deleted, nil
}
