package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"rhea-hq/rhea/pkg/llm"
	"rhea-hq/rhea/pkg/tokens"
)

// ErrContextNotFound is returned when an operation names an unknown
// context id and cannot create one.
var ErrContextNotFound = errors.New("context not found")

// Store manages the lifecycle of many windows: an in-memory cache in front
// of durable backends, cross-window search, and merging. Windows are
// persisted after every mutation; persistence failures are logged and the
// in-memory window stays authoritative.
type Store struct {
	mu       sync.Mutex
	windows  map[string]*Window
	backends []Backend

	counter    tokens.Estimator
	model      string
	summarizer Summarizer

	defaultMaxTokens   int
	defaultMaxMessages int

	logger *slog.Logger
}

// StoreOptions configures a Store. Zero values select defaults.
type StoreOptions struct {
	// Backends are tried in order on load; every backend is written on
	// persist. Empty means memory-only operation.
	Backends []Backend

	// Counter and Model size messages for windowing.
	Counter tokens.Estimator
	Model   string

	// Summarizer produces archival summaries for every window.
	Summarizer Summarizer

	// DefaultMaxTokens and DefaultMaxMessages bound new windows that do
	// not name their own limits.
	DefaultMaxTokens   int
	DefaultMaxMessages int

	Logger *slog.Logger
}

// NewStore creates a window store.
func NewStore(opts StoreOptions) *Store {
	if opts.Counter == nil {
		opts.Counter = tokens.NewRatioEstimator(nil)
	}
	if opts.Summarizer == nil {
		opts.Summarizer = HeuristicSummarizer{}
	}
	if opts.DefaultMaxTokens <= 0 {
		opts.DefaultMaxTokens = DefaultMaxTokens
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "conversation")
	}
	return &Store{
		windows:            make(map[string]*Window),
		backends:           opts.Backends,
		counter:            opts.Counter,
		model:              opts.Model,
		summarizer:         opts.Summarizer,
		defaultMaxTokens:   opts.DefaultMaxTokens,
		defaultMaxMessages: opts.DefaultMaxMessages,
		logger:             opts.Logger,
	}
}

// CreateOptions tune a window created (or metadata merged) by GetOrCreate.
type CreateOptions struct {
	MaxTokens   int
	MaxMessages int
	Metadata    map[string]any
}

// GetOrCreate returns the window for the id, loading it from the first
// backend that has it, or creating a fresh one. Repeated calls with the
// same id return the same window. New windows infer a component from a
// "component:rest" id convention.
func (s *Store) GetOrCreate(ctx context.Context, contextID string, opts *CreateOptions) (*Window, error) {
	if contextID == "" {
		return nil, fmt.Errorf("context id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(ctx, contextID, opts)
}

func (s *Store) getOrCreateLocked(ctx context.Context, contextID string, opts *CreateOptions) (*Window, error) {
	if w, ok := s.windows[contextID]; ok {
		if opts != nil && opts.Metadata != nil {
			w.SetMetadata(opts.Metadata)
		}
		return w, nil
	}

	// Durable load, first backend wins. A failing backend is skipped.
	for _, backend := range s.backends {
		doc, err := backend.Load(ctx, contextID)
		if err != nil {
			s.logger.Warn("context load failed",
				"context_id", contextID, "error", err)
			continue
		}
		if doc == nil {
			continue
		}
		w, err := FromDocument(doc, s.loadOptions(opts, doc))
		if err != nil {
			s.logger.Warn("context document invalid",
				"context_id", contextID, "error", err)
			continue
		}
		if opts != nil && opts.Metadata != nil {
			w.SetMetadata(opts.Metadata)
		}
		s.windows[contextID] = w
		s.logger.Info("loaded context", "context_id", contextID)
		return w, nil
	}

	metadata := map[string]any{"component": inferComponent(contextID)}
	w := NewWindow(contextID, s.windowOptions(opts, metadata))
	s.windows[contextID] = w
	s.logger.Info("created context", "context_id", contextID)
	return w, nil
}

// windowOptions merges store defaults with per-call options.
func (s *Store) windowOptions(opts *CreateOptions, metadata map[string]any) WindowOptions {
	wo := WindowOptions{
		MaxTokens:   s.defaultMaxTokens,
		MaxMessages: s.defaultMaxMessages,
		Counter:     s.counter,
		Model:       s.model,
		Summarizer:  s.summarizer,
		Metadata:    metadata,
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			wo.MaxTokens = opts.MaxTokens
		}
		if opts.MaxMessages > 0 {
			wo.MaxMessages = opts.MaxMessages
		}
		if opts.Metadata != nil {
			merged := make(map[string]any, len(metadata)+len(opts.Metadata))
			for k, v := range metadata {
				merged[k] = v
			}
			for k, v := range opts.Metadata {
				merged[k] = v
			}
			wo.Metadata = merged
		}
	}
	return wo
}

// loadOptions builds options for rebuilding a persisted window. The
// document's stored limits take precedence over store defaults so a context
// created with custom limits keeps them across restarts; explicit per-call
// options still win.
func (s *Store) loadOptions(opts *CreateOptions, doc *Document) WindowOptions {
	wo := s.windowOptions(opts, nil)
	if (opts == nil || opts.MaxTokens <= 0) && doc.MaxTokens > 0 {
		wo.MaxTokens = doc.MaxTokens
	}
	if (opts == nil || opts.MaxMessages <= 0) && doc.MaxMessages > 0 {
		wo.MaxMessages = doc.MaxMessages
	}
	return wo
}

// inferComponent derives a component from a "component:rest" id.
func inferComponent(contextID string) string {
	if idx := strings.Index(contextID, ":"); idx > 0 {
		return contextID[:idx]
	}
	return "unknown"
}

// Add appends a message to the context and persists the whole window.
func (s *Store) Add(ctx context.Context, contextID, role, content string, metadata map[string]any) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getOrCreateLocked(ctx, contextID, nil)
	if err != nil {
		return nil, err
	}
	w.AddMessage(NewMessage(role, content, metadata))
	s.persistLocked(ctx, w)
	return w, nil
}

// persistLocked writes the window to every backend. Failures are logged;
// the in-memory window stays authoritative.
func (s *Store) persistLocked(ctx context.Context, w *Window) {
	if len(s.backends) == 0 {
		return
	}
	doc := w.ToDocument()
	for _, backend := range s.backends {
		if err := backend.Save(ctx, doc); err != nil {
			s.logger.Warn("context persist failed",
				"context_id", w.ContextID(), "error", err)
		}
	}
}

// History returns the context's messages: optional summaries rendered as
// system messages first, then optionally the archived set, then the active
// set. A positive limit keeps the most recent entries.
func (s *Store) History(ctx context.Context, contextID string, includeArchived, includeSummaries bool, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getOrCreateLocked(ctx, contextID, nil)
	if err != nil {
		return nil, err
	}

	var result []Message
	if includeSummaries {
		for _, summary := range w.Summaries() {
			result = append(result, Message{
				ID:        summary.ID,
				Role:      RoleSystem,
				Content:   summary.Text,
				Timestamp: summary.Timestamp,
				Metadata: map[string]any{
					"type":          "summary",
					"message_count": summary.MessageCount,
					"time_range":    summary.TimeRange,
					"topics":        summary.Topics,
				},
			})
		}
	}
	if includeArchived {
		result = append(result, w.ArchivedMessages()...)
	}
	result = append(result, w.Messages()...)

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// FormattedHistory returns the provider-ready rendering of the context.
func (s *Store) FormattedHistory(ctx context.Context, contextID, provider string, includeSummaries bool) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getOrCreateLocked(ctx, contextID, nil)
	if err != nil {
		return nil, err
	}
	return w.FormattedMessages(provider, includeSummaries), nil
}

// SearchResult is one matching message with its relevance score.
type SearchResult struct {
	ContextID       string         `json:"context_id,omitempty"`
	Message         Message        `json:"message"`
	Score           float64        `json:"score"`
	ContextMetadata map[string]any `json:"context_metadata,omitempty"`
}

// Search finds messages in one context containing the query, scored by
// occurrence count and how early the first occurrence falls, capped at 1.0.
func (s *Store) Search(ctx context.Context, contextID, query string, searchArchived bool, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getOrCreateLocked(ctx, contextID, nil)
	if err != nil {
		return nil, err
	}
	return searchWindow(w, query, searchArchived, limit), nil
}

func searchWindow(w *Window, query string, searchArchived bool, limit int) []SearchResult {
	var messages []Message
	if searchArchived {
		messages = append(messages, w.ArchivedMessages()...)
	}
	messages = append(messages, w.Messages()...)

	queryLower := strings.ToLower(query)
	var results []SearchResult
	for _, msg := range messages {
		content := strings.ToLower(msg.Content)
		idx := strings.Index(content, queryLower)
		if idx < 0 || len(content) == 0 {
			continue
		}

		count := strings.Count(content, queryLower)
		position := float64(idx) / float64(len(content))
		score := (1.0 - position*0.5) + float64(count)*0.1
		if score > 1.0 {
			score = 1.0
		}
		results = append(results, SearchResult{Message: msg, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// SearchAll fans the search across every loaded window, optionally filtered
// by component, and returns the globally top-scoring results.
func (s *Store) SearchAll(ctx context.Context, query, component string, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []SearchResult
	for contextID, w := range s.windows {
		if component != "" && !windowMatchesComponent(w, contextID, component) {
			continue
		}
		for _, result := range searchWindow(w, query, true, limit) {
			result.ContextID = contextID
			result.ContextMetadata = w.Metadata()
			all = append(all, result)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func windowMatchesComponent(w *Window, contextID, component string) bool {
	want := strings.ToLower(component)
	if got, ok := w.Metadata()["component"].(string); ok && strings.ToLower(got) == want {
		return true
	}
	return strings.HasPrefix(strings.ToLower(contextID), want+":")
}

// Merge folds the sources' full histories into the target: metadata is
// unioned (the target keeps its own component), every source message is
// sorted by timestamp and replayed through AddMessage so the target's own
// windowing and summarization apply, and the result is persisted. All
// sources must already be loaded.
func (s *Store) Merge(ctx context.Context, targetID string, sourceIDs []string, maxMessages int) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources := make([]*Window, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		w, ok := s.windows[id]
		if !ok {
			return nil, fmt.Errorf("source %q: %w", id, ErrContextNotFound)
		}
		sources = append(sources, w)
	}

	opts := &CreateOptions{MaxMessages: maxMessages}
	target, err := s.getOrCreateLocked(ctx, targetID, opts)
	if err != nil {
		return nil, err
	}

	combined := make(map[string]any)
	for _, source := range sources {
		for k, v := range source.Metadata() {
			combined[k] = v
		}
	}
	component := target.metadata["component"]
	target.SetMetadata(combined)
	if component != nil {
		target.metadata["component"] = component
	}
	target.metadata["merged_from"] = append([]string(nil), sourceIDs...)
	target.metadata["merged_at"] = time.Now().Format(time.RFC3339)

	var all []Message
	for _, source := range sources {
		all = append(all, source.ArchivedMessages()...)
		all = append(all, source.Messages()...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	// Replay through AddMessage so the merged history is re-windowed
	// under the target's own limits.
	target.active = nil
	target.archived = nil
	target.summaries = nil
	target.recount()
	for _, msg := range all {
		target.AddMessage(msg)
	}

	s.persistLocked(ctx, target)
	return target, nil
}

// Delete removes the context from the cache and every backend. Deleting an
// unknown context is not an error.
func (s *Store) Delete(ctx context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, contextID)
	for _, backend := range s.backends {
		if err := backend.Delete(ctx, contextID); err != nil {
			s.logger.Warn("context delete failed",
				"context_id", contextID, "error", err)
		}
	}
	return nil
}

// LoadAll loads every persisted context into the cache, returning how many
// were loaded. Contexts already cached are left alone.
func (s *Store) LoadAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, backend := range s.backends {
		ids, err := backend.List(ctx)
		if err != nil {
			s.logger.Warn("context listing failed", "error", err)
			continue
		}
		for _, id := range ids {
			if _, ok := s.windows[id]; ok {
				continue
			}
			doc, err := backend.Load(ctx, id)
			if err != nil || doc == nil {
				continue
			}
			w, err := FromDocument(doc, s.loadOptions(nil, doc))
			if err != nil {
				s.logger.Warn("context document invalid",
					"context_id", id, "error", err)
				continue
			}
			s.windows[id] = w
			count++
		}
	}

	s.logger.Info("loaded contexts", "count", count)
	return count, nil
}

// ContextSummary describes a context without its message bodies.
type ContextSummary struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ActiveCount   int            `json:"active_message_count"`
	ArchivedCount int            `json:"archived_message_count"`
	TotalMessages int            `json:"total_messages"`
	SummaryCount  int            `json:"summary_count"`
	LatestSummary string         `json:"latest_summary,omitempty"`
	TokenCount    int            `json:"token_count"`
	Metadata      map[string]any `json:"metadata"`
}

// Summary returns the context's metadata summary.
func (s *Store) Summary(ctx context.Context, contextID string) (*ContextSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[contextID]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", contextID, ErrContextNotFound)
	}
	return windowSummary(contextID, w), nil
}

func windowSummary(contextID string, w *Window) *ContextSummary {
	summaries := w.Summaries()
	latest := ""
	if len(summaries) > 0 {
		latest = summaries[len(summaries)-1].Text
	}
	active := len(w.Messages())
	archived := len(w.ArchivedMessages())
	return &ContextSummary{
		ID:            contextID,
		CreatedAt:     w.CreatedAt(),
		UpdatedAt:     w.UpdatedAt(),
		ActiveCount:   active,
		ArchivedCount: archived,
		TotalMessages: active + archived,
		SummaryCount:  len(summaries),
		LatestSummary: latest,
		TokenCount:    w.TokenCount(),
		Metadata:      w.Metadata(),
	}
}

// List returns summaries for every loaded context, optionally filtered by
// component, newest first.
func (s *Store) List(ctx context.Context, component string) ([]ContextSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []ContextSummary
	for contextID, w := range s.windows {
		if component != "" && !windowMatchesComponent(w, contextID, component) {
			continue
		}
		summaries = append(summaries, *windowSummary(contextID, w))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// FlushIdle persists and evicts windows idle for longer than the cutoff,
// returning how many were evicted. Evicted contexts reload from a backend
// on next use.
func (s *Store) FlushIdle(ctx context.Context, idleFor time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-idleFor)
	count := 0
	for contextID, w := range s.windows {
		if w.UpdatedAt().After(cutoff) {
			continue
		}
		s.persistLocked(ctx, w)
		delete(s.windows, contextID)
		count++
	}
	if count > 0 {
		s.logger.Info("flushed idle contexts", "count", count)
	}
	return count
}

// Close closes every backend.
func (s *Store) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
