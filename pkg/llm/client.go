package llm

import (
	"context"
	"time"
)

// Message is a single turn handed to the collaborator.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Options carries per-request generation parameters. Zero values mean
// provider defaults.
type Options struct {
	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens caps the completion length.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Request is a completion request for a specific (provider, model) pair.
type Request struct {
	// Provider is the provider name (e.g., "anthropic", "openai", "ollama").
	Provider string

	// Model is the model identifier.
	Model string

	// Messages is the conversation, oldest first.
	Messages []Message

	// SystemPrompt is an optional system instruction, kept separate because
	// providers differ in how they accept it.
	SystemPrompt string

	// Options carries generation parameters.
	Options Options
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	// InputTokens is the prompt token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the completion token count.
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed (non-streaming) result.
type Response struct {
	// Message is the assistant's reply text.
	Message string

	// Provider and Model echo the pair that served the request; a
	// collaborator may substitute within a provider's model family.
	Provider string
	Model    string

	// Usage is the provider-reported token accounting. May be zero when the
	// provider does not report usage; callers fall back to estimation.
	Usage Usage

	// Latency is the wall-clock duration of the call.
	Latency time.Duration
}

// Chunk is one increment of a streaming response. The terminal chunk has
// Done set and carries the final provider/model pair.
type Chunk struct {
	// Delta is the incremental text. Empty on the terminal chunk.
	Delta string

	// Done marks the end of the stream.
	Done bool

	// Provider and Model are set on the terminal chunk.
	Provider string
	Model    string

	// Err is set when streaming failed; the channel closes after an
	// errored chunk.
	Err error
}

// Client is the consumed LLM execution capability.
//
// Implementations must respect context cancellation. The routing engine
// treats every call as a fallible suspension point.
type Client interface {
	// Complete sends a request and blocks until the full response arrives.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// StreamComplete sends a request and returns a channel of incremental
	// chunks. The caller must drain the channel; it closes after the
	// terminal Done chunk (or after a chunk carrying Err).
	StreamComplete(ctx context.Context, req *Request) (<-chan Chunk, error)
}
