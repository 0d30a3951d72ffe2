package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Simulated is a zero-cost Client used in tests and as the stub provider the
// router's free tier falls back to. It echoes a canned reply derived from the
// last user message and reports estimated usage so downstream accounting has
// something to record.
type Simulated struct {
	// Reply overrides the generated reply text when non-empty.
	Reply string

	// Err, when set, is returned from every call. Used to exercise failure
	// paths in tests.
	Err error
}

// NewSimulated creates a simulated client.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Complete returns a deterministic reply.
func (s *Simulated) Complete(ctx context.Context, req *Request) (*Response, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	reply := s.replyFor(req)

	return &Response{
		Message:  reply,
		Provider: req.Provider,
		Model:    req.Model,
		Usage: Usage{
			InputTokens:  approximateTokens(joinContent(req)),
			OutputTokens: approximateTokens(reply),
		},
		Latency: time.Since(start),
	}, nil
}

// StreamComplete streams the reply word by word, then a terminal Done chunk.
func (s *Simulated) StreamComplete(ctx context.Context, req *Request) (<-chan Chunk, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	reply := s.replyFor(req)
	out := make(chan Chunk)

	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(reply, " ") {
			select {
			case <-ctx.Done():
				out <- Chunk{Err: ctx.Err()}
				return
			case out <- Chunk{Delta: word}:
			}
		}
		out <- Chunk{Done: true, Provider: req.Provider, Model: req.Model}
	}()

	return out, nil
}

func (s *Simulated) replyFor(req *Request) string {
	if s.Reply != "" {
		return s.Reply
	}
	last := ""
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	if last == "" {
		return "simulated response"
	}
	return fmt.Sprintf("simulated response to: %s", last)
}

func joinContent(req *Request) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	for _, m := range req.Messages {
		b.WriteString(m.Content)
	}
	return b.String()
}

// approximateTokens mirrors the heuristic counter so simulated usage lines up
// with estimator output in tests.
func approximateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text)) + len(text)/4
}
