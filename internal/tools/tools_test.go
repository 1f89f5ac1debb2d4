package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quillhq/quill-agent/internal/events"
)

func TestRegistryPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		reg.Register(&Tool{Name: name, Description: name})
	}

	got := reg.Names()
	want := []string{"charlie", "alpha", "bravo"}
	if len(got) != len(want) {
		t.Fatalf("Names() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{Name: "echo", Description: "first"})
	reg.Register(&Tool{Name: "echo", Description: "second"})

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	if got := reg.Get("echo").Description; got != "second" {
		t.Errorf("Description = %q, want %q", got, "second")
	}
}

func TestRegistryDescribe(t *testing.T) {
	reg := testRegistry()
	infos := reg.Describe()
	if len(infos) != reg.Len() {
		t.Fatalf("Describe() returned %d entries, want %d", len(infos), reg.Len())
	}
	if infos[0].Name != "echo" {
		t.Errorf("first tool = %q, want %q", infos[0].Name, "echo")
	}
	for _, info := range infos {
		if info.Description == "" {
			t.Errorf("tool %q has no description", info.Name)
		}
	}
}

func TestFileTreeTool(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"inbox.md",
		"projects/quill.md",
		"projects/notes.txt",
		".obsidian/workspace.json",
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewFileTreeTool(root)

	out, err := tool.Handler(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	listing := out.(string)
	if !strings.Contains(listing, "inbox.md") {
		t.Errorf("listing missing inbox.md:\n%s", listing)
	}
	if !strings.Contains(listing, filepath.Join("projects", "quill.md")) {
		t.Errorf("listing missing nested file:\n%s", listing)
	}
	if strings.Contains(listing, "workspace.json") {
		t.Errorf("hidden directory should be skipped:\n%s", listing)
	}

	out, err = tool.Handler(context.Background(), map[string]any{"extension": "md", "path": "projects"})
	if err != nil {
		t.Fatalf("Handler with filters: %v", err)
	}
	listing = out.(string)
	if !strings.Contains(listing, "quill.md") || strings.Contains(listing, "notes.txt") {
		t.Errorf("extension filter not applied:\n%s", listing)
	}
}

func TestFileTreeToolRejectsEscape(t *testing.T) {
	tool := NewFileTreeTool(t.TempDir())
	if _, err := tool.Handler(context.Background(), map[string]any{"path": "../../etc"}); err == nil {
		t.Fatal("expected error for path escaping the vault")
	}
}

func TestTimerToolFiresEvent(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(4)
	defer bus.Unsubscribe(ch)

	tool := NewTimerTool(bus)
	out, err := tool.Handler(context.Background(), map[string]any{
		"seconds": float64(0.01),
		"label":   "tea",
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if msg := out.(string); !strings.Contains(msg, "tea") {
		t.Errorf("confirmation should mention the label, got %q", msg)
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindTimerFired {
			t.Errorf("event kind = %q, want %q", ev.Kind, events.KindTimerFired)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer event never fired")
	}
}

func TestTimerToolRejectsBadDuration(t *testing.T) {
	tool := NewTimerTool(events.New())
	if _, err := tool.Handler(context.Background(), map[string]any{"seconds": "soon"}); err == nil {
		t.Fatal("expected error for non-numeric duration")
	}
	if _, err := tool.Handler(context.Background(), map[string]any{"seconds": float64(-3)}); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
