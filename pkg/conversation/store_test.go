package conversation

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T, backends ...Backend) *Store {
	t.Helper()
	return NewStore(StoreOptions{
		Backends:         backends,
		Counter:          charCounter{},
		DefaultMaxTokens: 1000,
	})
}

// TestStore_GetOrCreateIdempotent tests that repeated calls return the same
// window.
func TestStore_GetOrCreateIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "planner:session1", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	second, err := store.GetOrCreate(ctx, "planner:session1", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if first != second {
		t.Error("Expected the same window instance")
	}
}

// TestStore_ComponentInference tests the "component:rest" id convention.
func TestStore_ComponentInference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		contextID string
		want      string
	}{
		{"planner:session1", "planner"},
		{"coder:x:y", "coder"},
		{"plain", "unknown"},
	}

	for _, tt := range tests {
		w, err := store.GetOrCreate(ctx, tt.contextID, nil)
		if err != nil {
			t.Fatalf("GetOrCreate(%q) failed: %v", tt.contextID, err)
		}
		if got := w.Metadata()["component"]; got != tt.want {
			t.Errorf("GetOrCreate(%q) component = %v, want %q", tt.contextID, got, tt.want)
		}
	}
}

// TestStore_MetadataMergedOnHit tests metadata updates on existing windows.
func TestStore_MetadataMergedOnHit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetOrCreate(ctx, "planner:s", nil); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	w, err := store.GetOrCreate(ctx, "planner:s", &CreateOptions{
		Metadata: map[string]any{"owner": "alice"},
	})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if w.Metadata()["owner"] != "alice" {
		t.Errorf("Expected merged metadata, got %v", w.Metadata())
	}
	if w.Metadata()["component"] != "planner" {
		t.Errorf("Expected component preserved, got %v", w.Metadata())
	}
}

// TestStore_PersistRoundTrip tests that a window survives a fresh store
// over the same backend, for both backend kinds.
func TestStore_PersistRoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) Backend{
		"file": func(t *testing.T) Backend {
			b, err := NewFileBackend(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileBackend failed: %v", err)
			}
			return b
		},
		"sqlite": func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(SQLiteBackendConfig{Path: filepath.Join(t.TempDir(), "contexts.db")})
			if err != nil {
				t.Fatalf("NewSQLiteBackend failed: %v", err)
			}
			return b
		},
	}

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			backend := factory(t)
			defer backend.Close()

			ctx := context.Background()
			store := newTestStore(t, backend)

			if _, err := store.Add(ctx, "planner:persist", RoleUser, "remember this", nil); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
			if _, err := store.Add(ctx, "planner:persist", RoleAssistant, "noted", nil); err != nil {
				t.Fatalf("Add failed: %v", err)
			}

			// A fresh store sees the persisted window.
			fresh := newTestStore(t, backend)
			w, err := fresh.GetOrCreate(ctx, "planner:persist", nil)
			if err != nil {
				t.Fatalf("GetOrCreate failed: %v", err)
			}
			msgs := w.Messages()
			if len(msgs) != 2 {
				t.Fatalf("Expected 2 messages after reload, got %d", len(msgs))
			}
			if msgs[0].Content != "remember this" || msgs[1].Content != "noted" {
				t.Errorf("Unexpected reloaded contents: %+v", msgs)
			}
			if w.Metadata()["component"] != "planner" {
				t.Errorf("Expected metadata reloaded, got %v", w.Metadata())
			}

			// Custom limits survive the reload instead of reverting to
			// store defaults.
			if _, err := store.GetOrCreate(ctx, "planner:limits", &CreateOptions{
				MaxTokens:   50,
				MaxMessages: 3,
			}); err != nil {
				t.Fatalf("GetOrCreate failed: %v", err)
			}
			if _, err := store.Add(ctx, "planner:limits", RoleUser, "small window", nil); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
			limited, err := fresh.GetOrCreate(ctx, "planner:limits", nil)
			if err != nil {
				t.Fatalf("GetOrCreate failed: %v", err)
			}
			if limited.MaxTokens() != 50 {
				t.Errorf("Reloaded max tokens = %d, want 50", limited.MaxTokens())
			}
			if limited.MaxMessages() != 3 {
				t.Errorf("Reloaded max messages = %d, want 3", limited.MaxMessages())
			}
		})
	}
}

// TestStore_History tests summary conversion, archived inclusion, and the
// limit.
func TestStore_History(t *testing.T) {
	store := NewStore(StoreOptions{Counter: charCounter{}, DefaultMaxTokens: 50})
	ctx := context.Background()
	content := strings.Repeat("h", 30)

	for i := 0; i < 3; i++ {
		if _, err := store.Add(ctx, "planner:h", RoleUser, content, nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	full, err := store.History(ctx, "planner:h", true, true, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	// 2 summaries + 2 archived + 1 active.
	if len(full) != 5 {
		t.Fatalf("Expected 5 history entries, got %d", len(full))
	}
	if full[0].Role != RoleSystem || full[0].Metadata["type"] != "summary" {
		t.Errorf("Expected leading summary entry, got %+v", full[0])
	}

	active, err := store.History(ctx, "planner:h", false, false, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active entry, got %d", len(active))
	}

	limited, err := store.History(ctx, "planner:h", true, true, 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected limit applied, got %d entries", len(limited))
	}
}

// TestStore_SearchScoring tests substring scoring and ordering.
func TestStore_SearchScoring(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Query early in content scores higher than late; repetition adds.
	if _, err := store.Add(ctx, "planner:search", RoleUser, "kubernetes deployment notes and more padding here", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "planner:search", RoleUser, "some long unrelated preamble before mentioning kubernetes", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "planner:search", RoleUser, "nothing relevant", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	results, err := store.Search(ctx, "planner:search", "kubernetes", true, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if !strings.HasPrefix(results[0].Message.Content, "kubernetes") {
		t.Errorf("Expected earliest-occurrence message first, got %q", results[0].Message.Content)
	}
	for _, r := range results {
		if r.Score <= 0 || r.Score > 1.0 {
			t.Errorf("Score out of range: %v", r.Score)
		}
	}
	if results[0].Score < results[1].Score {
		t.Error("Expected descending score order")
	}

	// Case-insensitive.
	upper, err := store.Search(ctx, "planner:search", "KUBERNETES", true, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(upper) != 2 {
		t.Errorf("Expected case-insensitive match, got %d results", len(upper))
	}
}

// TestStore_SearchAll tests the cross-context fan-out and component filter.
func TestStore_SearchAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "planner:a", RoleUser, "budget review for deployment", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "coder:b", RoleUser, "budget estimate in code", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	all, err := store.SearchAll(ctx, "budget", "", 10)
	if err != nil {
		t.Fatalf("SearchAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 results across contexts, got %d", len(all))
	}
	for _, r := range all {
		if r.ContextID == "" {
			t.Error("Expected context id on cross-context results")
		}
		if r.ContextMetadata["component"] == nil {
			t.Error("Expected context metadata on cross-context results")
		}
	}

	planner, err := store.SearchAll(ctx, "budget", "planner", 10)
	if err != nil {
		t.Fatalf("SearchAll failed: %v", err)
	}
	if len(planner) != 1 || planner[0].ContextID != "planner:a" {
		t.Errorf("Expected component filter, got %+v", planner)
	}
}

// TestStore_MergeChronological tests that merged histories interleave by
// timestamp regardless of source insertion order.
func TestStore_MergeChronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	a, err := store.GetOrCreate(ctx, "planner:a", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	a.AddMessage(Message{ID: "m1", Role: RoleUser, Content: "first", Timestamp: base})
	a.AddMessage(Message{ID: "m3", Role: RoleUser, Content: "third", Timestamp: base.Add(2 * time.Minute)})

	b, err := store.GetOrCreate(ctx, "coder:b", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	b.AddMessage(Message{ID: "m2", Role: RoleUser, Content: "second", Timestamp: base.Add(time.Minute)})

	merged, err := store.Merge(ctx, "planner:target", []string{"planner:a", "coder:b"}, 0)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	msgs := merged.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 merged messages, got %d", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Errorf("Position %d: expected %q, got %q", i, want, msgs[i].Content)
		}
	}

	meta := merged.Metadata()
	if meta["component"] != "planner" {
		t.Errorf("Expected target component preserved, got %v", meta["component"])
	}
	from, ok := meta["merged_from"].([]string)
	if !ok || len(from) != 2 {
		t.Errorf("Expected merged_from marker, got %v", meta["merged_from"])
	}
	if meta["merged_at"] == nil {
		t.Error("Expected merged_at marker")
	}
}

// TestStore_MergeRewindows tests that the replay applies the target's own
// limits.
func TestStore_MergeRewindows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	src, err := store.GetOrCreate(ctx, "planner:src", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		src.AddMessage(Message{
			ID: string(rune('a' + i)), Role: RoleUser, Content: "msg",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	merged, err := store.Merge(ctx, "planner:small", []string{"planner:src"}, 2)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(merged.Messages()) != 2 {
		t.Errorf("Expected target limited to 2 active messages, got %d", len(merged.Messages()))
	}
	if len(merged.ArchivedMessages()) != 4 {
		t.Errorf("Expected 4 archived after replay, got %d", len(merged.ArchivedMessages()))
	}
	if len(merged.Summaries()) == 0 {
		t.Error("Expected replay to produce summaries")
	}
}

// TestStore_MergeUnknownSource tests the missing-source error.
func TestStore_MergeUnknownSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Merge(ctx, "planner:t", []string{"missing:src"}, 0); err == nil {
		t.Fatal("Expected error for unknown source")
	}
}

// TestStore_DeleteIdempotent tests delete across cache and backends.
func TestStore_DeleteIdempotent(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer backend.Close()

	store := newTestStore(t, backend)
	ctx := context.Background()

	if _, err := store.Add(ctx, "planner:del", RoleUser, "to delete", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := store.Delete(ctx, "planner:del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, "planner:del"); err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}

	doc, err := backend.Load(ctx, "planner:del")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc != nil {
		t.Error("Expected backend document removed")
	}
}

// TestStore_LoadAll tests bulk loading of persisted contexts.
func TestStore_LoadAll(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	seed := newTestStore(t, backend)
	for _, id := range []string{"planner:1", "planner:2", "coder:3"} {
		if _, err := seed.Add(ctx, id, RoleUser, "content", nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	fresh := newTestStore(t, backend)
	count, err := fresh.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 contexts loaded, got %d", count)
	}

	list, err := fresh.List(ctx, "planner")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 planner contexts, got %d", len(list))
	}
}

// TestStore_SummaryAndList tests context metadata summaries.
func TestStore_SummaryAndList(t *testing.T) {
	store := NewStore(StoreOptions{Counter: charCounter{}, DefaultMaxTokens: 50})
	ctx := context.Background()
	content := strings.Repeat("s", 30)

	for i := 0; i < 3; i++ {
		if _, err := store.Add(ctx, "planner:sum", RoleUser, content, nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	summary, err := store.Summary(ctx, "planner:sum")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.ActiveCount != 1 || summary.ArchivedCount != 2 {
		t.Errorf("Unexpected counts: %+v", summary)
	}
	if summary.TotalMessages != 3 {
		t.Errorf("Expected 3 total messages, got %d", summary.TotalMessages)
	}
	if summary.SummaryCount != 2 || summary.LatestSummary == "" {
		t.Errorf("Expected summaries reflected, got %+v", summary)
	}

	if _, err := store.Summary(ctx, "missing:ctx"); err == nil {
		t.Error("Expected error for unknown context")
	}

	// List sorts newest first.
	if _, err := store.Add(ctx, "coder:later", RoleUser, "newest", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 contexts, got %d", len(list))
	}
	if list[0].ID != "coder:later" {
		t.Errorf("Expected newest context first, got %q", list[0].ID)
	}
}

// TestStore_FlushIdle tests persist-and-evict of idle windows.
func TestStore_FlushIdle(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer backend.Close()

	store := newTestStore(t, backend)
	ctx := context.Background()

	if _, err := store.Add(ctx, "planner:idle", RoleUser, "old", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Everything is recent: nothing flushes.
	if count := store.FlushIdle(ctx, time.Hour); count != 0 {
		t.Errorf("Expected no flush, got %d", count)
	}

	// A zero idle threshold flushes everything.
	if count := store.FlushIdle(ctx, 0); count != 1 {
		t.Errorf("Expected 1 flushed, got %d", count)
	}

	// The evicted window reloads from the backend.
	w, err := store.GetOrCreate(ctx, "planner:idle", nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if len(w.Messages()) != 1 {
		t.Errorf("Expected reloaded window, got %d messages", len(w.Messages()))
	}
}
