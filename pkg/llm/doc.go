// Package llm defines the execution boundary between the routing engine and
// the systems that actually talk to model providers.
//
// # Overview
//
// The engine never performs network I/O itself. It selects a (provider, model)
// pair, prepares a message list, and hands both to a Client. Everything past
// that boundary (HTTP transport, authentication, retries, SSE framing) is
// the collaborator's concern.
//
// # Usage
//
//	resp, err := client.Complete(ctx, &llm.Request{
//	    Provider: "anthropic",
//	    Model:    "claude-3-sonnet-20240229",
//	    Messages: messages,
//	})
//
// The package also ships a Simulated client: a free, deterministic provider
// used in tests and as the terminal free-tier fallback target.
package llm
