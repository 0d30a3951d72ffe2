package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rhea-hq/rhea/pkg/llm"
)

// Summarizer turns one archival batch into a Summary. Implementations must
// always return a usable summary; a slow or remote method returns a pending
// placeholder and upgrades it later.
type Summarizer interface {
	Summarize(batch []Message) Summary
}

// maxTopics caps keyword extraction per summary.
const maxTopics = 5

var (
	wordPattern  = regexp.MustCompile(`\b\w{3,}\b`)
	topicPattern = regexp.MustCompile(`(?i)topics:?\s*(.*)`)

	stopWords = map[string]bool{
		"the": true, "and": true, "for": true,
		"this": true, "that": true, "with": true, "from": true,
	}
)

// HeuristicSummarizer builds summaries from role counts and keyword
// extraction over user content. It needs no model and never blocks.
type HeuristicSummarizer struct{}

// Summarize implements Summarizer.
func (HeuristicSummarizer) Summarize(batch []Message) Summary {
	summary := newBatchSummary(batch)
	summary.Method = MethodHeuristic
	summary.Topics = extractTopics(batch)
	summary.Text = fmt.Sprintf("Archived %d messages (%d from user, %d from assistant)",
		summary.MessageCount, summary.UserMessages, summary.AssistantMessages)
	return summary
}

// extractTopics pulls up to maxTopics keywords from user messages,
// stopword-filtered, in order of first appearance.
func extractTopics(batch []Message) []string {
	var topics []string
	seen := make(map[string]bool)

	for _, msg := range batch {
		if msg.Role != RoleUser {
			continue
		}
		words := wordPattern.FindAllString(strings.ToLower(msg.Content), -1)
		kept := 0
		for _, word := range words {
			if kept >= maxTopics {
				break
			}
			if stopWords[word] || seen[word] {
				continue
			}
			seen[word] = true
			topics = append(topics, word)
			kept++
		}
	}

	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}

// newBatchSummary fills the batch-derived fields common to every method.
func newBatchSummary(batch []Message) Summary {
	summary := Summary{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		MessageCount: len(batch),
	}
	for _, msg := range batch {
		switch msg.Role {
		case RoleUser:
			summary.UserMessages++
		case RoleAssistant:
			summary.AssistantMessages++
		case RoleSystem:
			summary.SystemMessages++
		}
	}
	if len(batch) > 0 {
		summary.TimeRange = fmt.Sprintf("%s to %s",
			batch[0].Timestamp.Format(time.RFC3339),
			batch[len(batch)-1].Timestamp.Format(time.RFC3339))
	}
	return summary
}

// ModelSummarizer produces model-written summaries. Summarize itself never
// calls the model: it returns a pending placeholder and remembers the batch
// so UpgradePending can replace the placeholder asynchronously. Replacement
// is idempotent; a summary is upgraded at most once.
type ModelSummarizer struct {
	client   llm.Client
	provider string
	model    string
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string][]Message // summary id -> batch
}

// NewModelSummarizer creates a model-backed summarizer.
func NewModelSummarizer(client llm.Client, provider, model string) *ModelSummarizer {
	return &ModelSummarizer{
		client:   client,
		provider: provider,
		model:    model,
		logger:   slog.Default().With("component", "conversation"),
		pending:  make(map[string][]Message),
	}
}

// Summarize implements Summarizer.
func (m *ModelSummarizer) Summarize(batch []Message) Summary {
	summary := newBatchSummary(batch)
	summary.Method = MethodModelPending
	summary.Text = "Messages archived (model summary pending)"

	m.mu.Lock()
	m.pending[summary.ID] = append([]Message(nil), batch...)
	m.mu.Unlock()

	return summary
}

// UpgradePending rewrites the window's pending summaries with model output.
// Batches whose completion fails stay pending for the next pass. Summaries
// already upgraded, or unknown to this summarizer, are left untouched.
func (m *ModelSummarizer) UpgradePending(ctx context.Context, w *Window) {
	for _, summary := range w.Summaries() {
		if summary.Method != MethodModelPending {
			continue
		}

		m.mu.Lock()
		batch, ok := m.pending[summary.ID]
		m.mu.Unlock()
		if !ok {
			continue
		}

		upgraded, err := m.summarizeWithModel(ctx, summary, batch)
		if err != nil {
			m.logger.Warn("summary upgrade failed",
				"context_id", w.ContextID(), "summary_id", summary.ID, "error", err)
			continue
		}

		if w.ReplaceSummary(summary.ID, upgraded) {
			m.mu.Lock()
			delete(m.pending, summary.ID)
			m.mu.Unlock()
		}
	}
}

// summarizeWithModel asks the model for a paragraph plus a topics line.
func (m *ModelSummarizer) summarizeWithModel(ctx context.Context, pending Summary, batch []Message) (Summary, error) {
	var prompt strings.Builder
	prompt.WriteString("Summarize the following conversation messages in a concise paragraph " +
		"focusing on key points and topics discussed. Extract 3-5 main topics.\n\n")
	for _, msg := range batch {
		content := msg.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Fprintf(&prompt, "[%s]: %s\n\n", msg.Role, content)
	}

	resp, err := m.client.Complete(ctx, &llm.Request{
		Provider:     m.provider,
		Model:        m.model,
		Messages:     []llm.Message{{Role: RoleUser, Content: prompt.String()}},
		SystemPrompt: "You are a summarization assistant. Create concise, accurate summaries.",
		Options:      llm.Options{Temperature: 0.3, MaxTokens: 300},
	})
	if err != nil {
		return Summary{}, err
	}

	upgraded := pending
	upgraded.Method = MethodModel
	upgraded.Text = resp.Message
	upgraded.Topics = parseTopics(resp.Message)
	return upgraded, nil
}

// parseTopics extracts a "Topics:" line from model output.
func parseTopics(text string) []string {
	match := topicPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	var topics []string
	for _, part := range strings.FieldsFunc(match[1], func(r rune) bool {
		return r == ',' || r == '\n' || r == '•'
	}) {
		topic := strings.Trim(strings.TrimSpace(part), "•-* ")
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}
