package tools

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quillhq/quill-agent/internal/events"
	"github.com/quillhq/quill-agent/internal/protocol"
)

// maxTreeEntries caps file_tree output so a deep vault cannot blow up
// the prompt.
const maxTreeEntries = 200

// NewFileTreeTool returns a tool that lists files under root. Paths are
// reported relative to root; hidden files and directories are skipped.
func NewFileTreeTool(root string) *Tool {
	return &Tool{
		Name:        "file_tree",
		Description: "List the files in the note vault. Use this to discover what notes exist before searching or reading.",
		Args: []protocol.ArgInfo{
			{Name: "path", Description: "Subdirectory to list, relative to the vault root. Omit for the whole vault.", Required: false},
			{Name: "extension", Description: "Only list files with this extension (e.g. \"md\").", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if root == "" {
				return nil, fmt.Errorf("no vault directory configured")
			}

			sub, _ := args["path"].(string)
			ext, _ := args["extension"].(string)
			ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")

			base := root
			if sub != "" {
				clean := filepath.Clean(sub)
				if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
					return nil, fmt.Errorf("path %q escapes the vault", sub)
				}
				base = filepath.Join(root, clean)
			}

			var entries []string
			err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if strings.HasPrefix(d.Name(), ".") && path != base {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					return nil
				}
				if ext != "" && !strings.EqualFold(strings.TrimPrefix(filepath.Ext(path), "."), ext) {
					return nil
				}
				rel, relErr := filepath.Rel(root, path)
				if relErr != nil {
					return relErr
				}
				entries = append(entries, rel)
				if len(entries) >= maxTreeEntries {
					return filepath.SkipAll
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk vault: %w", err)
			}

			if len(entries) == 0 {
				return "No files found.", nil
			}
			sort.Strings(entries)
			return fmt.Sprintf("%d file(s):\n%s", len(entries), strings.Join(entries, "\n")), nil
		},
	}
}

// NewTimerTool returns a fire-and-forget reminder tool. When the timer
// expires, a timer_fired event is published on the bus; the tool itself
// returns immediately.
func NewTimerTool(bus *events.Bus) *Tool {
	return &Tool{
		Name:        "start_timer",
		Description: "Start a reminder timer. The timer fires as an event after the given number of seconds.",
		Args: []protocol.ArgInfo{
			{Name: "seconds", Description: "Timer duration in seconds.", Required: true},
			{Name: "label", Description: "Short label describing what the timer is for.", Required: false},
		},
		ExampleArgs: `{"seconds": 300, "label": "tea"}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			secs, ok := args["seconds"].(float64)
			if !ok || secs <= 0 {
				return nil, fmt.Errorf("seconds must be a positive number")
			}
			label, _ := args["label"].(string)

			duration := time.Duration(secs * float64(time.Second))
			go func() {
				time.Sleep(duration)
				bus.Emit(events.SourceTimer, events.KindTimerFired, map[string]any{
					"label":        label,
					"duration_sec": int(secs),
				})
			}()

			if label == "" {
				return fmt.Sprintf("Timer started for %s.", duration), nil
			}
			return fmt.Sprintf("Timer %q started for %s.", label, duration), nil
		},
	}
}
