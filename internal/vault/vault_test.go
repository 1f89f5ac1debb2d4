package vault

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	root := t.TempDir()
	writeNote(t, root, "bread/sourdough.md",
		"# Sourdough Starter\n\nFeed the starter twice a day. Sourdough needs patience.\n")
	writeNote(t, root, "bread/rye.md",
		"# Rye Bread\n\nRye dough is sticky. Use a wet hand when shaping.\n")
	writeNote(t, root, "garden.md",
		"# Garden Plan\n\nPlant tomatoes after the last frost.\n")
	writeNote(t, root, ".obsidian/config.md", "# Hidden\n\nShould never be indexed.\n")

	idx, err := NewIndex(filepath.Join(t.TempDir(), "vault.db"), root, nil)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	if _, err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	return idx
}

func TestReindexCounts(t *testing.T) {
	idx := newTestIndex(t)
	if got := idx.NoteCount(); got != 3 {
		t.Errorf("NoteCount = %d, want 3 (hidden dirs excluded)", got)
	}
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Search("sourdough", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Title != "Sourdough Starter" {
		t.Errorf("top result = %q, want %q", results[0].Title, "Sourdough Starter")
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %f, want > 0", results[0].Score)
	}
	if results[0].Snippet == "" {
		t.Error("expected a snippet")
	}
}

func TestSearchNoMatches(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search("quantum chromodynamics", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchPunctuationSafe(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.Search(`what's "rye" bread?`, 5); err != nil {
		t.Errorf("punctuated query should not break FTS syntax: %v", err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.Search("   ", 5); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestReindexReplacesRemovedNotes(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a.md", "# Alpha\n\nalpha body\n")
	writeNote(t, root, "b.md", "# Beta\n\nbeta body\n")

	idx, err := NewIndex(filepath.Join(t.TempDir(), "vault.db"), root, nil)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()

	if _, err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "b.md")); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Reindex(); err != nil {
		t.Fatalf("Reindex after removal: %v", err)
	}

	if got := idx.NoteCount(); got != 1 {
		t.Errorf("NoteCount = %d, want 1", got)
	}
	results, err := idx.Search("beta", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("removed note still searchable: %+v", results)
	}
}

func TestExtract(t *testing.T) {
	title, body := extract([]byte("# My Note\n\nSome *emphasized* text with a [link](https://example.com).\n"))
	if title != "My Note" {
		t.Errorf("title = %q, want %q", title, "My Note")
	}
	if strings.Contains(body, "*") || strings.Contains(body, "](") {
		t.Errorf("body should be plain text, got %q", body)
	}
	if !strings.Contains(body, "emphasized") {
		t.Errorf("body lost text content: %q", body)
	}
}

func TestSearchToolReturnsJSON(t *testing.T) {
	idx := newTestIndex(t)
	tool := NewSearchTool(idx, 5)

	out, err := tool.Handler(context.Background(), map[string]any{"query": "sourdough"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	var results []SearchResult
	if err := json.Unmarshal([]byte(out.(string)), &results); err != nil {
		t.Fatalf("tool output is not JSON: %v", err)
	}
	if len(results) == 0 || results[0].Title != "Sourdough Starter" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	idx := newTestIndex(t)
	tool := NewSearchTool(idx, 5)
	if _, err := tool.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error when query missing")
	}
}
