package conversation

import (
	"fmt"
	"strings"
	"time"

	"rhea-hq/rhea/pkg/llm"
	"rhea-hq/rhea/pkg/tokens"
)

// DefaultMaxTokens bounds a window when no limit is configured.
const DefaultMaxTokens = 4000

// truncateKeepPercent is how much oversize content survives each trim pass.
const truncateKeepPercent = 80

// Window is one conversation's bounded message buffer. Adding a message may
// truncate oversize content, then archive the oldest messages until the
// window fits its limits again. The active set never drops below one
// message while non-empty.
//
// A Window is not safe for concurrent use; the Store serializes access.
type Window struct {
	contextID   string
	maxTokens   int
	maxMessages int

	counter    tokens.Estimator
	model      string
	summarizer Summarizer

	active    []Message
	archived  []Message
	summaries []Summary
	metadata  map[string]any

	createdAt   time.Time
	updatedAt   time.Time
	totalTokens int
}

// WindowOptions configures a new window. Zero values select defaults.
type WindowOptions struct {
	// MaxTokens bounds the active set's token total. Default
	// DefaultMaxTokens.
	MaxTokens int

	// MaxMessages bounds the active set's length. Zero means unbounded.
	MaxMessages int

	// Counter estimates per-message token cost. Default is the ratio
	// estimator with built-in ratios.
	Counter tokens.Estimator

	// Model is the model id the counter estimates against.
	Model string

	// Summarizer produces one summary per archival batch. Default is the
	// heuristic summarizer.
	Summarizer Summarizer

	// Metadata seeds the window's metadata.
	Metadata map[string]any
}

// NewWindow creates an empty window.
func NewWindow(contextID string, opts WindowOptions) *Window {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Counter == nil {
		opts.Counter = tokens.NewRatioEstimator(nil)
	}
	if opts.Summarizer == nil {
		opts.Summarizer = HeuristicSummarizer{}
	}
	metadata := make(map[string]any, len(opts.Metadata))
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	now := time.Now()
	return &Window{
		contextID:   contextID,
		maxTokens:   opts.MaxTokens,
		maxMessages: opts.MaxMessages,
		counter:     opts.Counter,
		model:       opts.Model,
		summarizer:  opts.Summarizer,
		metadata:    metadata,
		createdAt:   now,
		updatedAt:   now,
	}
}

// ContextID returns the window's unique key.
func (w *Window) ContextID() string { return w.contextID }

// TokenCount returns the active set's token total.
func (w *Window) TokenCount() int { return w.totalTokens }

// MaxTokens returns the window's token limit.
func (w *Window) MaxTokens() int { return w.maxTokens }

// MaxMessages returns the window's message count limit, zero if unbounded.
func (w *Window) MaxMessages() int { return w.maxMessages }

// CreatedAt returns when the window was created.
func (w *Window) CreatedAt() time.Time { return w.createdAt }

// UpdatedAt returns when the window last changed.
func (w *Window) UpdatedAt() time.Time { return w.updatedAt }

// Messages returns a copy of the active set in insertion order.
func (w *Window) Messages() []Message {
	return append([]Message(nil), w.active...)
}

// ArchivedMessages returns a copy of the archived set in archival order.
func (w *Window) ArchivedMessages() []Message {
	return append([]Message(nil), w.archived...)
}

// Summaries returns a copy of the window's summaries.
func (w *Window) Summaries() []Summary {
	return append([]Summary(nil), w.summaries...)
}

// Metadata returns a copy of the window's metadata.
func (w *Window) Metadata() map[string]any {
	out := make(map[string]any, len(w.metadata))
	for k, v := range w.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata merges entries into the window's metadata.
func (w *Window) SetMetadata(metadata map[string]any) {
	for k, v := range metadata {
		w.metadata[k] = v
	}
}

// AddMessage appends a message to the active set, truncating oversize
// content first, then archives the oldest messages until the window fits
// its limits again.
func (w *Window) AddMessage(msg Message) {
	cost := w.counter.MessageTokens(msg.Content, w.model)

	// A single message larger than the whole window is trimmed from the
	// tail until it fits, keeping the leading content.
	for cost > w.maxTokens {
		runes := []rune(msg.Content)
		if len(runes) == 0 {
			break
		}
		msg.Content = string(runes[:len(runes)*truncateKeepPercent/100])
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]any)
		}
		msg.Metadata["truncated"] = true
		cost = w.counter.MessageTokens(msg.Content, w.model)
	}

	w.active = append(w.active, msg)
	w.totalTokens += cost
	w.updatedAt = time.Now()

	w.manageWindow()
}

// manageWindow enforces the message count limit, then the token limit one
// archived message at a time. Archiving one message strictly reduces the
// token total, so the loop terminates.
func (w *Window) manageWindow() {
	if w.maxMessages > 0 && len(w.active) > w.maxMessages {
		w.archive(len(w.active) - w.maxMessages)
	}

	for w.totalTokens > w.maxTokens && len(w.active) > 1 {
		w.archive(1)
	}
}

// archive moves the oldest count messages out of the active set, producing
// exactly one summary for the batch. The active set keeps at least one
// message.
func (w *Window) archive(count int) {
	if count <= 0 || len(w.active) == 0 {
		return
	}
	if len(w.active) == 1 {
		return
	}
	if count > len(w.active)-1 {
		count = len(w.active) - 1
	}

	batch := w.active[:count]
	w.summaries = append(w.summaries, w.summarizer.Summarize(batch))
	w.archived = append(w.archived, batch...)
	w.active = append([]Message(nil), w.active[count:]...)
	w.recount()
}

// recount recomputes the token total from the active set. Called after
// every structural change so the total never drifts.
func (w *Window) recount() {
	total := 0
	for _, msg := range w.active {
		total += w.counter.MessageTokens(msg.Content, w.model)
	}
	w.totalTokens = total
}

// ReplaceSummary swaps a pending summary for its upgraded version. Only
// model-pending summaries are replaceable, so replacement is idempotent.
func (w *Window) ReplaceSummary(id string, upgraded Summary) bool {
	for i, existing := range w.summaries {
		if existing.ID != id {
			continue
		}
		if existing.Method != MethodModelPending {
			return false
		}
		upgraded.ID = id
		w.summaries[i] = upgraded
		w.updatedAt = time.Now()
		return true
	}
	return false
}

// FormattedMessages renders the window for a provider: an optional leading
// system message flattening all summaries, then the active messages in
// insertion order. Providers accepting only the three standard roles get
// non-standard roles normalized to user.
func (w *Window) FormattedMessages(provider string, includeSummaries bool) []llm.Message {
	var formatted []llm.Message

	if includeSummaries && len(w.summaries) > 0 {
		var texts []string
		for _, summary := range w.summaries {
			text := "Previous conversation: " + summary.Text
			if len(summary.Topics) > 0 {
				text += " Topics: " + strings.Join(summary.Topics, ", ")
			}
			texts = append(texts, text)
		}
		formatted = append(formatted, llm.Message{
			Role:    RoleSystem,
			Content: "Context summaries:\n" + strings.Join(texts, "\n"),
		})
	}

	for _, msg := range w.active {
		role := msg.Role
		if provider == "anthropic" || provider == "openai" {
			switch role {
			case RoleUser, RoleAssistant, RoleSystem:
			default:
				role = RoleUser
			}
		}
		formatted = append(formatted, llm.Message{Role: role, Content: msg.Content})
	}

	return formatted
}

// Document is a window's serializable form.
type Document struct {
	ContextID   string         `json:"context_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Messages    []Message      `json:"messages"`
	Archived    []Message      `json:"archived_messages"`
	Summaries   []Summary      `json:"summaries"`
	Metadata    map[string]any `json:"metadata"`
	TotalTokens int            `json:"total_token_count"`
	MaxTokens   int            `json:"max_tokens"`
	MaxMessages int            `json:"max_messages,omitempty"`
}

// ToDocument serializes the window, archived messages included.
func (w *Window) ToDocument() *Document {
	return &Document{
		ContextID:   w.contextID,
		CreatedAt:   w.createdAt,
		UpdatedAt:   w.updatedAt,
		Messages:    w.Messages(),
		Archived:    w.ArchivedMessages(),
		Summaries:   w.Summaries(),
		Metadata:    w.Metadata(),
		TotalTokens: w.totalTokens,
		MaxTokens:   w.maxTokens,
		MaxMessages: w.maxMessages,
	}
}

// FromDocument rebuilds a window from its serialized form, recounting
// tokens rather than trusting the stored total.
func FromDocument(doc *Document, opts WindowOptions) (*Window, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}
	if doc.ContextID == "" {
		return nil, fmt.Errorf("document missing context id")
	}

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = doc.MaxTokens
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = doc.MaxMessages
	}
	w := NewWindow(doc.ContextID, opts)

	if !doc.CreatedAt.IsZero() {
		w.createdAt = doc.CreatedAt
	}
	if !doc.UpdatedAt.IsZero() {
		w.updatedAt = doc.UpdatedAt
	}
	w.active = append([]Message(nil), doc.Messages...)
	w.archived = append([]Message(nil), doc.Archived...)
	w.summaries = append([]Summary(nil), doc.Summaries...)
	for k, v := range doc.Metadata {
		w.metadata[k] = v
	}
	w.recount()

	return w, nil
}
