package service

import (
	"context"
	"fmt"
	"time"

	"rhea-hq/rhea/pkg/conversation"
	"rhea-hq/rhea/pkg/llm"
	"rhea-hq/rhea/pkg/routing"
)

// RouteRequest is a single-shot completion request with no conversation
// context.
type RouteRequest struct {
	// InputText is the prompt.
	InputText string

	// TaskType classifies the workload (code, chat, planning, ...).
	TaskType string

	// Component is the calling subsystem.
	Component string

	// Provider and Model, when both set, override the configured route.
	Provider string
	Model    string

	// SystemPrompt is an optional system instruction.
	SystemPrompt string
}

// ChatRequest is a completion request within a conversation context.
type ChatRequest struct {
	// ContextID names the conversation window.
	ContextID string

	// Message is the new user message.
	Message string

	TaskType  string
	Component string

	// Provider and Model, when both set, override the configured route.
	Provider string
	Model    string

	SystemPrompt string
}

// RouteResult is the outcome of a routed completion.
type RouteResult struct {
	// Reply is the assistant's text.
	Reply string `json:"reply"`

	// Provider and Model are the pair that served the request.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Downgraded reports whether the budget cascade moved off the
	// preferred pair.
	Downgraded bool `json:"downgraded"`

	// Warnings collects budget warnings and downgrade notices.
	Warnings []string `json:"warnings,omitempty"`

	// Usage is the recorded token accounting.
	Usage llm.Usage `json:"usage"`

	// Cost is the recorded cost of the completion.
	Cost float64 `json:"cost"`

	// Latency is the wall-clock duration of the model call.
	Latency time.Duration `json:"latency"`
}

// Route selects a (provider, model) pair for the request without calling
// the model. The cascade is total; Route never fails.
func (s *Service) Route(ctx context.Context, req RouteRequest) *routing.Decision {
	return s.router.Route(ctx, routing.Request{
		InputText: req.InputText,
		TaskType:  req.TaskType,
		Component: req.Component,
		Provider:  req.Provider,
		Model:     req.Model,
	})
}

// RouteAndComplete routes the request, calls the model, and records actual
// usage against the budget ledger.
func (s *Service) RouteAndComplete(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	decision := s.Route(ctx, req)

	resp, err := s.complete(ctx, decision, []llm.Message{
		{Role: conversation.RoleUser, Content: req.InputText},
	}, req.SystemPrompt)
	if err != nil {
		return nil, err
	}

	cost := s.recordUsage(ctx, resp, req.InputText, req.Component, req.TaskType, nil)

	return &RouteResult{
		Reply:      resp.Message,
		Provider:   resp.Provider,
		Model:      resp.Model,
		Downgraded: decision.Downgraded,
		Warnings:   decision.Warnings,
		Usage:      resp.Usage,
		Cost:       cost,
		Latency:    resp.Latency,
	}, nil
}

// RouteChatRequest appends the user message to the context, routes with
// budget awareness, completes against the windowed history, records actual
// usage, and appends the assistant reply to the context.
func (s *Service) RouteChatRequest(ctx context.Context, req ChatRequest) (*RouteResult, error) {
	if req.ContextID == "" {
		return nil, fmt.Errorf("context id is required")
	}

	if _, err := s.contexts.Add(ctx, req.ContextID, conversation.RoleUser, req.Message, nil); err != nil {
		return nil, err
	}

	decision := s.Route(ctx, RouteRequest{
		InputText: req.Message,
		TaskType:  req.TaskType,
		Component: req.Component,
		Provider:  req.Provider,
		Model:     req.Model,
	})

	messages, err := s.contexts.FormattedHistory(ctx, req.ContextID, decision.Provider, true)
	if err != nil {
		return nil, err
	}

	resp, err := s.complete(ctx, decision, messages, req.SystemPrompt)
	if err != nil {
		return nil, err
	}

	cost := s.recordUsage(ctx, resp, req.Message, req.Component, req.TaskType,
		map[string]any{"context_id": req.ContextID})

	if _, err := s.contexts.Add(ctx, req.ContextID, conversation.RoleAssistant, resp.Message, nil); err != nil {
		return nil, err
	}

	s.upgradePendingSummaries(ctx, req.ContextID)

	return &RouteResult{
		Reply:      resp.Message,
		Provider:   resp.Provider,
		Model:      resp.Model,
		Downgraded: decision.Downgraded,
		Warnings:   decision.Warnings,
		Usage:      resp.Usage,
		Cost:       cost,
		Latency:    resp.Latency,
	}, nil
}

// StreamChatRequest is the streaming variant of RouteChatRequest. The
// returned channel carries incremental chunks and closes after the terminal
// done chunk; usage recording and the assistant-message append happen when
// the stream completes.
func (s *Service) StreamChatRequest(ctx context.Context, req ChatRequest) (<-chan llm.Chunk, error) {
	if req.ContextID == "" {
		return nil, fmt.Errorf("context id is required")
	}

	if _, err := s.contexts.Add(ctx, req.ContextID, conversation.RoleUser, req.Message, nil); err != nil {
		return nil, err
	}

	decision := s.Route(ctx, RouteRequest{
		InputText: req.Message,
		TaskType:  req.TaskType,
		Component: req.Component,
		Provider:  req.Provider,
		Model:     req.Model,
	})

	messages, err := s.contexts.FormattedHistory(ctx, req.ContextID, decision.Provider, true)
	if err != nil {
		return nil, err
	}

	stream, err := s.client.StreamComplete(ctx, &llm.Request{
		Provider:     decision.Provider,
		Model:        decision.Model,
		Messages:     messages,
		SystemPrompt: req.SystemPrompt,
		Options: llm.Options{
			Temperature: decision.Options.Temperature,
			MaxTokens:   decision.Options.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("streaming completion failed: %w", err)
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		var reply string
		for chunk := range stream {
			reply += chunk.Delta
			if chunk.Done && chunk.Err == nil {
				if _, rerr := s.budget.RecordCompletion(ctx,
					decision.Provider, decision.Model,
					req.Message, reply,
					req.Component, req.TaskType,
					map[string]any{"context_id": req.ContextID},
				); rerr != nil {
					s.logger.Error("failed to record streamed completion", "error", rerr)
				}
				if _, aerr := s.contexts.Add(ctx, req.ContextID,
					conversation.RoleAssistant, reply, nil); aerr != nil {
					s.logger.Error("failed to append streamed reply", "error", aerr)
				}
				s.upgradePendingSummaries(ctx, req.ContextID)
			}
			out <- chunk
		}
	}()
	return out, nil
}

// complete calls the model for the decided pair, retrying once on the
// route's static fallback pair when the call itself fails.
func (s *Service) complete(ctx context.Context, decision *routing.Decision, messages []llm.Message, systemPrompt string) (*llm.Response, error) {
	llmReq := &llm.Request{
		Provider:     decision.Provider,
		Model:        decision.Model,
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Options: llm.Options{
			Temperature: decision.Options.Temperature,
			MaxTokens:   decision.Options.MaxTokens,
		},
	}

	resp, err := s.client.Complete(ctx, llmReq)
	if err == nil {
		return resp, nil
	}

	fb := decision.Fallback
	if fb.Provider == "" || fb.Model == "" ||
		(fb.Provider == decision.Provider && fb.Model == decision.Model) {
		return nil, fmt.Errorf("completion failed on %s/%s: %w",
			decision.Provider, decision.Model, err)
	}

	s.logger.Warn("completion failed, trying fallback pair",
		"provider", decision.Provider, "model", decision.Model,
		"fallback_provider", fb.Provider, "fallback_model", fb.Model,
		"error", err,
	)

	llmReq.Provider = fb.Provider
	llmReq.Model = fb.Model
	resp, fbErr := s.client.Complete(ctx, llmReq)
	if fbErr != nil {
		return nil, fmt.Errorf("completion failed on %s/%s and fallback %s/%s: %w",
			decision.Provider, decision.Model, fb.Provider, fb.Model, fbErr)
	}
	return resp, nil
}

// recordUsage writes the completion to the ledger, preferring
// provider-reported token counts over estimation. Recording failures are
// logged; the completion still succeeds.
func (s *Service) recordUsage(ctx context.Context, resp *llm.Response, inputText, component, taskType string, metadata map[string]any) float64 {
	var cost float64
	var err error

	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		rec, rerr := s.budget.RecordTokens(ctx, resp.Provider, resp.Model,
			resp.Usage.InputTokens, resp.Usage.OutputTokens, component, taskType, metadata)
		if rerr == nil {
			cost = rec.Cost
		}
		err = rerr
	} else {
		rec, rerr := s.budget.RecordCompletion(ctx, resp.Provider, resp.Model,
			inputText, resp.Message, component, taskType, metadata)
		if rerr == nil {
			cost = rec.Cost
		}
		err = rerr
	}

	if err != nil {
		s.logger.Error("failed to record completion usage",
			"provider", resp.Provider, "model", resp.Model, "error", err)
	}
	return cost
}

// upgradePendingSummaries completes any queued model summaries for the
// context. No-op under heuristic summarization.
func (s *Service) upgradePendingSummaries(ctx context.Context, contextID string) {
	if s.modelSummarizer == nil {
		return
	}
	w, err := s.contexts.GetOrCreate(ctx, contextID, nil)
	if err != nil {
		return
	}
	s.modelSummarizer.UpgradePending(ctx, w)
}
