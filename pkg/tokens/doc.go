// Package tokens provides approximate token counting for LLM text.
//
// # Overview
//
// Exact tokenization is provider-specific and expensive to reproduce; the
// engine only needs counts good enough for admission decisions and window
// accounting. Two counters are provided:
//
//   - RatioEstimator: model-aware, using configured characters-per-token
//     ratios with model-family prefix matching. Within a few percent of
//     provider counts for typical text.
//   - Heuristic fallback: word count plus length/4, used when no ratio
//     table is configured for the model.
//
// Both are deterministic for identical input and monotonic in input length.
//
// # Message Overhead
//
// Providers frame each chat message with role markers and separators.
// MessageTokens adds a fixed overhead per message to approximate this.
package tokens
