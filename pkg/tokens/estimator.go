package tokens

import (
	"log/slog"
	"strings"
	"sync"
)

// MessageOverhead is the fixed per-message framing cost added on top of the
// content token count, approximating provider role/separator tokens.
const MessageOverhead = 4

// defaultCharsPerToken is the ratio used when no model-specific ratio is
// configured and no "default" entry exists.
const defaultCharsPerToken = 4.0

// Estimator approximates the token count of text for a given model.
type Estimator interface {
	// Count returns a non-negative token count for text under model.
	Count(text, model string) int

	// MessageTokens returns the cost of carrying content as one chat
	// message: Count plus the fixed framing overhead. Empty content still
	// costs the overhead.
	MessageTokens(content, model string) int
}

// RatioEstimator is a character-ratio token counter. It resolves a
// characters-per-token ratio by exact model match, then model-family prefix
// match, then the "default" entry. When the ratio table is empty it degrades
// to the heuristic counter, logging the degradation once.
type RatioEstimator struct {
	ratios map[string]float64

	fallbackOnce sync.Once
	logger       *slog.Logger

	mu sync.RWMutex
}

// NewRatioEstimator creates an estimator over the given model → chars-per-token
// table. A nil or empty table yields a pure heuristic estimator.
func NewRatioEstimator(ratios map[string]float64) *RatioEstimator {
	return &RatioEstimator{
		ratios: ratios,
		logger: slog.Default().With("component", "tokens"),
	}
}

// Count returns the approximate token count of text for model.
func (e *RatioEstimator) Count(text, model string) int {
	if text == "" {
		return 0
	}

	ratio, ok := e.ratioFor(model)
	if !ok {
		e.fallbackOnce.Do(func() {
			e.logger.Warn("no token ratio configured, using heuristic counter", "model", model)
		})
		return Heuristic(text)
	}

	tokens := float64(len(text)) / ratio
	if tokens < 1.0 {
		return 1
	}
	return int(tokens + 0.5)
}

// MessageTokens returns the windowing cost of one chat message.
func (e *RatioEstimator) MessageTokens(content, model string) int {
	return e.Count(content, model) + MessageOverhead
}

// UpdateRatios replaces the ratio table. Safe for concurrent use; supports
// config hot reload.
func (e *RatioEstimator) UpdateRatios(ratios map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratios = ratios
}

func (e *RatioEstimator) ratioFor(model string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.ratios) == 0 {
		return 0, false
	}
	if ratio, ok := e.ratios[model]; ok {
		return ratio, true
	}
	// Model family match (e.g. "gpt-4" covers "gpt-4-0613").
	for pattern, ratio := range e.ratios {
		if pattern != "default" && strings.HasPrefix(model, pattern) {
			return ratio, true
		}
	}
	if ratio, ok := e.ratios["default"]; ok {
		return ratio, true
	}
	return defaultCharsPerToken, true
}

// Heuristic is the tokenizer-free counter: word count plus length/4. It
// over-counts slightly, which is the safe direction for admission decisions.
func Heuristic(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text)) + len(text)/4
}
