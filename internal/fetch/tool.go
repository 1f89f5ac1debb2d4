package fetch

import (
	"context"
	"fmt"

	"github.com/quillhq/quill-agent/internal/protocol"
	"github.com/quillhq/quill-agent/internal/tools"
)

// NewTool exposes the fetcher as the web_fetch tool.
func NewTool(f *Fetcher) *tools.Tool {
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Download a web page and return its readable text. Use after web_search to read a promising result.",
		Args: []protocol.ArgInfo{
			{Name: "url", Description: "The page URL to fetch.", Required: true},
			{Name: "max_chars", Description: "Truncate extracted text to this many characters.", Required: false},
		},
		ExampleArgs: `{"url": "https://example.com/article"}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rawURL, _ := args["url"].(string)
			if rawURL == "" {
				return nil, fmt.Errorf("url argument is required")
			}

			maxChars := 0
			if n, ok := args["max_chars"].(float64); ok {
				maxChars = int(n)
			}

			page, err := f.Fetch(ctx, rawURL, maxChars)
			if err != nil {
				return nil, err
			}
			if page.StatusCode >= 400 {
				return nil, fmt.Errorf("fetch %s: HTTP %d", page.URL, page.StatusCode)
			}

			if page.Title != "" {
				return fmt.Sprintf("%s\n\n%s", page.Title, page.Text), nil
			}
			return page.Text, nil
		},
	}
}
