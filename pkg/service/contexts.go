package service

import (
	"context"

	"rhea-hq/rhea/pkg/conversation"
)

// GetOrCreateContext returns the window for the id, creating it on first
// use. Repeated calls with the same id return the same logical window.
func (s *Service) GetOrCreateContext(ctx context.Context, contextID string, opts *conversation.CreateOptions) (*conversation.Window, error) {
	return s.contexts.GetOrCreate(ctx, contextID, opts)
}

// AddToContext appends a message to the context and persists the window.
func (s *Service) AddToContext(ctx context.Context, contextID, role, content string, metadata map[string]any) (*conversation.Window, error) {
	return s.contexts.Add(ctx, contextID, role, content, metadata)
}

// ContextHistory returns the context's messages, optionally including
// archived messages and summaries. A positive limit keeps only the most
// recent entries.
func (s *Service) ContextHistory(ctx context.Context, contextID string, includeArchived, includeSummaries bool, limit int) ([]conversation.Message, error) {
	return s.contexts.History(ctx, contextID, includeArchived, includeSummaries, limit)
}

// SearchContext searches one context's messages.
func (s *Service) SearchContext(ctx context.Context, contextID, query string, searchArchived bool, limit int) ([]conversation.SearchResult, error) {
	return s.contexts.Search(ctx, contextID, query, searchArchived, limit)
}

// SearchAllContexts searches every loaded context, optionally filtered by
// component.
func (s *Service) SearchAllContexts(ctx context.Context, query, component string, limit int) ([]conversation.SearchResult, error) {
	return s.contexts.SearchAll(ctx, query, component, limit)
}

// MergeContexts replays the sources' messages into the target in
// chronological order, re-windowing under the target's limits.
func (s *Service) MergeContexts(ctx context.Context, targetID string, sourceIDs []string, maxMessages int) (*conversation.Window, error) {
	return s.contexts.Merge(ctx, targetID, sourceIDs, maxMessages)
}

// DeleteContext removes the context from the cache and every backend.
// Deleting an absent context is not an error.
func (s *Service) DeleteContext(ctx context.Context, contextID string) error {
	return s.contexts.Delete(ctx, contextID)
}

// ContextSummary returns metadata about one loaded context.
func (s *Service) ContextSummary(ctx context.Context, contextID string) (*conversation.ContextSummary, error) {
	return s.contexts.Summary(ctx, contextID)
}

// ListContexts returns metadata for loaded contexts, newest first,
// optionally filtered by component.
func (s *Service) ListContexts(ctx context.Context, component string) ([]conversation.ContextSummary, error) {
	return s.contexts.List(ctx, component)
}

// LoadContexts warms the cache from the persistence backends and returns
// the number of contexts loaded.
func (s *Service) LoadContexts(ctx context.Context) (int, error) {
	return s.contexts.LoadAll(ctx)
}
