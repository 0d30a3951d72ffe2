package conversation

import (
	"strings"
	"testing"
	"time"
)

// charCounter charges one token per character and no framing overhead,
// making window arithmetic exact in tests.
type charCounter struct{}

func (charCounter) Count(text, model string) int         { return len(text) }
func (charCounter) MessageTokens(text, model string) int { return len(text) }

// sumActiveTokens recomputes the active set's cost with the test counter.
func sumActiveTokens(w *Window) int {
	total := 0
	for _, msg := range w.Messages() {
		total += len(msg.Content)
	}
	return total
}

// TestWindow_AddAndCount tests basic accumulation.
func TestWindow_AddAndCount(t *testing.T) {
	w := NewWindow("test:basic", WindowOptions{MaxTokens: 100, Counter: charCounter{}})

	w.AddMessage(NewMessage(RoleUser, "hello", nil))
	w.AddMessage(NewMessage(RoleAssistant, "world", nil))

	if got := w.TokenCount(); got != 10 {
		t.Errorf("Expected token count 10, got %d", got)
	}
	if len(w.Messages()) != 2 {
		t.Errorf("Expected 2 active messages, got %d", len(w.Messages()))
	}
	if len(w.ArchivedMessages()) != 0 {
		t.Errorf("Expected no archived messages, got %d", len(w.ArchivedMessages()))
	}
}

// TestWindow_TokenCountInvariant tests that the total always equals the sum
// over the active set, across many adds and evictions.
func TestWindow_TokenCountInvariant(t *testing.T) {
	w := NewWindow("test:invariant", WindowOptions{MaxTokens: 50, Counter: charCounter{}})

	for i := 0; i < 20; i++ {
		w.AddMessage(NewMessage(RoleUser, strings.Repeat("x", 7+i%13), nil))
		if got, want := w.TokenCount(), sumActiveTokens(w); got != want {
			t.Fatalf("After add %d: token count %d != active sum %d", i, got, want)
		}
	}
}

// TestWindow_EvictionKeepsOneMessage tests the windowing sequence: each
// 30-token message in a 50-token window archives its predecessor, producing
// one summary per batch and never emptying the active set.
func TestWindow_EvictionKeepsOneMessage(t *testing.T) {
	w := NewWindow("test:evict", WindowOptions{MaxTokens: 50, Counter: charCounter{}})
	content := strings.Repeat("m", 30)

	w.AddMessage(NewMessage(RoleUser, content, nil))
	if len(w.Messages()) != 1 || len(w.Summaries()) != 0 {
		t.Fatalf("After message 1: active=%d summaries=%d", len(w.Messages()), len(w.Summaries()))
	}

	w.AddMessage(NewMessage(RoleAssistant, content, nil))
	if len(w.Messages()) != 1 {
		t.Errorf("After message 2: expected 1 active, got %d", len(w.Messages()))
	}
	if len(w.ArchivedMessages()) != 1 {
		t.Errorf("After message 2: expected 1 archived, got %d", len(w.ArchivedMessages()))
	}
	if len(w.Summaries()) != 1 {
		t.Fatalf("After message 2: expected 1 summary, got %d", len(w.Summaries()))
	}
	if w.Summaries()[0].MessageCount != 1 {
		t.Errorf("Expected summary covering 1 message, got %d", w.Summaries()[0].MessageCount)
	}

	w.AddMessage(NewMessage(RoleUser, content, nil))
	if len(w.Messages()) != 1 {
		t.Errorf("After message 3: expected 1 active, got %d", len(w.Messages()))
	}
	if len(w.ArchivedMessages()) != 2 {
		t.Errorf("After message 3: expected 2 archived, got %d", len(w.ArchivedMessages()))
	}
	if len(w.Summaries()) != 2 {
		t.Errorf("After message 3: expected 2 summaries, got %d", len(w.Summaries()))
	}
}

// TestWindow_OversizeMessageTruncated tests the keep-80% truncation loop.
func TestWindow_OversizeMessageTruncated(t *testing.T) {
	w := NewWindow("test:truncate", WindowOptions{MaxTokens: 100, Counter: charCounter{}})

	w.AddMessage(NewMessage(RoleUser, strings.Repeat("a", 500), nil))

	msgs := w.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Content) > 100 {
		t.Errorf("Expected content truncated to fit 100 tokens, got %d chars", len(msgs[0].Content))
	}
	if truncated, _ := msgs[0].Metadata["truncated"].(bool); !truncated {
		t.Error("Expected truncated metadata flag")
	}
	if w.TokenCount() > w.MaxTokens() {
		t.Errorf("Token count %d exceeds limit %d", w.TokenCount(), w.MaxTokens())
	}
}

// TestWindow_MaxMessagesOverflow tests the message count limit.
func TestWindow_MaxMessagesOverflow(t *testing.T) {
	w := NewWindow("test:maxmsg", WindowOptions{MaxTokens: 10000, MaxMessages: 3, Counter: charCounter{}})

	for i := 0; i < 5; i++ {
		w.AddMessage(NewMessage(RoleUser, "short", nil))
	}

	if len(w.Messages()) != 3 {
		t.Errorf("Expected 3 active messages, got %d", len(w.Messages()))
	}
	if len(w.ArchivedMessages()) != 2 {
		t.Errorf("Expected 2 archived messages, got %d", len(w.ArchivedMessages()))
	}
}

// TestWindow_HeuristicSummary tests role counts and topic extraction.
func TestWindow_HeuristicSummary(t *testing.T) {
	batch := []Message{
		NewMessage(RoleUser, "deploy the kubernetes cluster with monitoring", nil),
		NewMessage(RoleAssistant, "done", nil),
		NewMessage(RoleSystem, "note", nil),
	}

	summary := HeuristicSummarizer{}.Summarize(batch)
	if summary.MessageCount != 3 {
		t.Errorf("Expected message count 3, got %d", summary.MessageCount)
	}
	if summary.UserMessages != 1 || summary.AssistantMessages != 1 || summary.SystemMessages != 1 {
		t.Errorf("Unexpected role counts: %+v", summary)
	}
	if summary.Method != MethodHeuristic {
		t.Errorf("Expected heuristic method, got %s", summary.Method)
	}
	if len(summary.Topics) == 0 || len(summary.Topics) > 5 {
		t.Errorf("Expected 1-5 topics, got %v", summary.Topics)
	}
	for _, topic := range summary.Topics {
		if topic == "the" || topic == "with" {
			t.Errorf("Stopword leaked into topics: %v", summary.Topics)
		}
	}
	if !strings.Contains(summary.Text, "3 messages") {
		t.Errorf("Unexpected summary text: %q", summary.Text)
	}
}

// TestWindow_FormattedMessages tests summary flattening and role
// normalization.
func TestWindow_FormattedMessages(t *testing.T) {
	w := NewWindow("test:format", WindowOptions{MaxTokens: 50, Counter: charCounter{}})
	content := strings.Repeat("k", 30)

	w.AddMessage(NewMessage(RoleUser, content, nil))
	w.AddMessage(NewMessage(RoleAssistant, content, nil)) // archives message 1
	w.AddMessage(Message{ID: "x", Role: "tool", Content: "result", Timestamp: time.Now()})

	formatted := w.FormattedMessages("anthropic", true)
	if len(formatted) == 0 || formatted[0].Role != RoleSystem {
		t.Fatalf("Expected leading system summary message, got %+v", formatted)
	}
	if !strings.Contains(formatted[0].Content, "Context summaries:") {
		t.Errorf("Unexpected summary content: %q", formatted[0].Content)
	}

	last := formatted[len(formatted)-1]
	if last.Role != RoleUser {
		t.Errorf("Expected non-standard role normalized to user, got %q", last.Role)
	}

	// Without summaries the system message is absent.
	bare := w.FormattedMessages("anthropic", false)
	if len(bare) != len(w.Messages()) {
		t.Errorf("Expected only active messages, got %d", len(bare))
	}

	// Unconstrained providers keep the original role.
	raw := w.FormattedMessages("ollama", false)
	if raw[len(raw)-1].Role != "tool" {
		t.Errorf("Expected original role for ollama, got %q", raw[len(raw)-1].Role)
	}
}

// TestWindow_DocumentRoundTrip tests serialization fidelity.
func TestWindow_DocumentRoundTrip(t *testing.T) {
	w := NewWindow("test:roundtrip", WindowOptions{
		MaxTokens: 50,
		Counter:   charCounter{},
		Metadata:  map[string]any{"component": "test"},
	})
	content := strings.Repeat("r", 30)
	w.AddMessage(NewMessage(RoleUser, content, nil))
	w.AddMessage(NewMessage(RoleAssistant, content, nil))

	doc := w.ToDocument()
	restored, err := FromDocument(doc, WindowOptions{Counter: charCounter{}})
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}

	if restored.ContextID() != w.ContextID() {
		t.Errorf("Context id mismatch: %q vs %q", restored.ContextID(), w.ContextID())
	}
	if len(restored.Messages()) != len(w.Messages()) {
		t.Errorf("Active count mismatch: %d vs %d", len(restored.Messages()), len(w.Messages()))
	}
	if len(restored.ArchivedMessages()) != len(w.ArchivedMessages()) {
		t.Errorf("Archived count mismatch")
	}
	if len(restored.Summaries()) != len(w.Summaries()) {
		t.Errorf("Summary count mismatch")
	}
	if restored.TokenCount() != w.TokenCount() {
		t.Errorf("Token count mismatch: %d vs %d", restored.TokenCount(), w.TokenCount())
	}
	if restored.Metadata()["component"] != "test" {
		t.Errorf("Metadata lost: %v", restored.Metadata())
	}
	if restored.MaxTokens() != 50 {
		t.Errorf("Max tokens lost: %d", restored.MaxTokens())
	}
}

// TestWindow_ReplaceSummaryIdempotent tests that only pending summaries are
// replaceable, exactly once.
func TestWindow_ReplaceSummaryIdempotent(t *testing.T) {
	w := NewWindow("test:replace", WindowOptions{MaxTokens: 1000, Counter: charCounter{}})
	w.summaries = []Summary{
		{ID: "pending-1", Method: MethodModelPending, Text: "pending"},
		{ID: "final-1", Method: MethodHeuristic, Text: "final"},
	}

	upgraded := Summary{Method: MethodModel, Text: "model summary"}
	if !w.ReplaceSummary("pending-1", upgraded) {
		t.Fatal("Expected pending summary to be replaced")
	}
	if w.Summaries()[0].Text != "model summary" || w.Summaries()[0].ID != "pending-1" {
		t.Errorf("Unexpected replacement result: %+v", w.Summaries()[0])
	}

	// A second replacement is a no-op.
	if w.ReplaceSummary("pending-1", Summary{Method: MethodModel, Text: "again"}) {
		t.Error("Expected second replacement to be rejected")
	}
	if w.ReplaceSummary("final-1", upgraded) {
		t.Error("Expected heuristic summary to be immutable")
	}
	if w.ReplaceSummary("missing", upgraded) {
		t.Error("Expected unknown id to be rejected")
	}
}
