package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"rhea-hq/rhea/pkg/budget"
	"rhea-hq/rhea/pkg/config"
	"rhea-hq/rhea/pkg/conversation"
	"rhea-hq/rhea/pkg/costs"
	"rhea-hq/rhea/pkg/llm"
	"rhea-hq/rhea/pkg/pricing"
	"rhea-hq/rhea/pkg/retention"
	"rhea-hq/rhea/pkg/routing"
	"rhea-hq/rhea/pkg/tokens"
)

// Options overrides parts of the wiring, mainly for tests and embedding.
type Options struct {
	// Client is the LLM execution collaborator. Nil selects the simulated
	// client.
	Client llm.Client

	// BudgetStore overrides the configured SQLite ledger store.
	BudgetStore budget.Store

	// ContextBackends overrides the configured conversation persistence.
	ContextBackends []conversation.Backend

	// Registry receives Prometheus collectors when metrics are enabled.
	// Nil selects the default registerer.
	Registry prometheus.Registerer

	Logger *slog.Logger
}

// Service is the wired application core.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	counter   *tokens.RatioEstimator
	catalog   *pricing.Catalog
	estimator *costs.Estimator
	budget    *budget.Engine
	router    *routing.Router
	contexts  *conversation.Store
	client    llm.Client

	// modelSummarizer is non-nil when model-based summarization is
	// configured; pending summaries are upgraded after chat turns.
	modelSummarizer *conversation.ModelSummarizer

	pruner *retention.Pruner

	closers []func() error
}

// New constructs a Service from configuration. Budget seeds are installed
// and, when a durable context backend is configured, existing contexts
// remain lazily loadable (use LoadContexts to warm the cache eagerly).
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		logger: logger.With("component", "service"),
	}

	s.counter = tokens.NewRatioEstimator(cfg.Tokens.Ratios)
	s.catalog = pricing.NewCatalog(cfg.PriceTable())
	s.estimator = costs.NewEstimator(s.counter, s.catalog)

	store := opts.BudgetStore
	if store == nil {
		path, err := dataPath(cfg.Storage.DataDir, cfg.Storage.BudgetDB)
		if err != nil {
			return nil, err
		}
		sqliteStore, err := budget.NewSQLiteStoreWithConfig(budget.SQLiteStoreConfig{
			DBPath:      path,
			BusyTimeout: cfg.Storage.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open budget store: %w", err)
		}
		store = sqliteStore
		s.closers = append(s.closers, sqliteStore.Close)
	}

	engineOpts := []budget.EngineOption{
		budget.WithAssumedOutputLen(cfg.Budgets.AssumedOutputLength),
	}
	if cfg.Telemetry.MetricsEnabled {
		reg := opts.Registry
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		engineOpts = append(engineOpts, budget.WithMetrics(budget.NewMetrics(reg)))
	}
	s.budget = budget.NewEngine(store, s.estimator, engineOpts...)

	if err := s.budget.SeedDefaults(ctx, cfg.BudgetSeeds()); err != nil {
		return nil, fmt.Errorf("failed to seed budget settings: %w", err)
	}

	table, err := routing.NewTable(cfg.Routes())
	if err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}
	s.router = routing.NewRouter(table, s.catalog, s.budget)

	s.client = opts.Client
	if s.client == nil {
		s.client = llm.NewSimulated()
	}

	var summarizer conversation.Summarizer = conversation.HeuristicSummarizer{}
	if cfg.Contexts.SummaryMethod == "model" {
		s.modelSummarizer = conversation.NewModelSummarizer(
			s.client, cfg.Contexts.SummaryProvider, cfg.Contexts.SummaryModel)
		summarizer = s.modelSummarizer
	}

	backends := opts.ContextBackends
	if backends == nil {
		backends, err = contextBackends(cfg)
		if err != nil {
			return nil, err
		}
	}

	s.contexts = conversation.NewStore(conversation.StoreOptions{
		Backends:           backends,
		Counter:            s.counter,
		Model:              table.Resolve("", "").Model,
		Summarizer:         summarizer,
		DefaultMaxTokens:   cfg.Contexts.MaxTokens,
		DefaultMaxMessages: cfg.Contexts.MaxMessages,
		Logger:             logger,
	})
	s.closers = append(s.closers, s.contexts.Close)

	s.pruner = retention.NewPruner(s.budget, s.contexts, &retention.Config{
		Schedule:         cfg.Retention.Schedule,
		UsageMaxAge:      cfg.Retention.UsageMaxAge,
		ContextIdleFlush: cfg.Retention.ContextIdleFlush,
	})

	return s, nil
}

// Router returns the underlying router, exposed for stats inspection.
func (s *Service) Router() *routing.Router {
	return s.router
}

// RoutingStats returns a snapshot of the router's decision counters.
func (s *Service) RoutingStats() routing.Snapshot {
	return s.router.Stats().Snapshot()
}

// ResetRoutingStats zeroes the router's decision counters.
func (s *Service) ResetRoutingStats() {
	s.router.Stats().Reset()
}

// Catalog returns the pricing catalog. Hot-reload handlers update its
// prices in place.
func (s *Service) Catalog() *pricing.Catalog {
	return s.catalog
}

// Estimator returns the token estimator. Hot-reload handlers update its
// ratios in place.
func (s *Service) Estimator() *tokens.RatioEstimator {
	return s.counter
}

// ApplyConfig applies hot-reloadable sections of a freshly loaded
// configuration: pricing and token ratios. Structural sections (storage,
// routes, retention) require a restart.
func (s *Service) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.catalog.UpdatePrices(cfg.PriceTable())
	s.counter.UpdateRatios(cfg.Tokens.Ratios)
	s.logger.Info("applied reloaded configuration",
		"pricing_providers", len(cfg.Pricing),
		"token_ratios", len(cfg.Tokens.Ratios),
	)
}

// Start launches background maintenance when retention is enabled.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Retention.Enabled {
		return nil
	}
	return s.pruner.Scheduler().Start(ctx)
}

// Prune runs one retention cycle immediately.
func (s *Service) Prune(ctx context.Context) (int, error) {
	return s.pruner.Prune(ctx)
}

// Close stops background work and releases every owned resource.
func (s *Service) Close() error {
	s.pruner.Scheduler().Stop()

	var errs []error
	// Close in reverse construction order.
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dataPath resolves a possibly relative file name under the data directory,
// creating the directory as needed.
func dataPath(dataDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
		return name, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Join(dataDir, name), nil
}

// contextBackends builds conversation persistence from configuration.
func contextBackends(cfg *config.Config) ([]conversation.Backend, error) {
	switch cfg.Storage.ContextBackend {
	case "memory":
		return nil, nil
	case "file":
		dir := cfg.Storage.ContextDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Storage.DataDir, dir)
		}
		backend, err := conversation.NewFileBackend(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open context directory: %w", err)
		}
		return []conversation.Backend{backend}, nil
	case "sqlite":
		path, err := dataPath(cfg.Storage.DataDir, cfg.Storage.ContextDB)
		if err != nil {
			return nil, err
		}
		backend, err := conversation.NewSQLiteBackend(conversation.SQLiteBackendConfig{
			Path:        path,
			BusyTimeout: cfg.Storage.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open context database: %w", err)
		}
		return []conversation.Backend{backend}, nil
	default:
		return nil, fmt.Errorf("unknown context backend %q", cfg.Storage.ContextBackend)
	}
}
