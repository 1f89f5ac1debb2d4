package search

import (
	"context"
	"fmt"

	"github.com/quillhq/quill-agent/internal/protocol"
	"github.com/quillhq/quill-agent/internal/tools"
)

// NewTool exposes the manager as the web_search tool.
func NewTool(mgr *Manager, maxResults int) *tools.Tool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web. Use for current information that would not be in the user's notes.",
		Args: []protocol.ArgInfo{
			{Name: "query", Description: "The search query.", Required: true},
			{Name: "count", Description: fmt.Sprintf("Maximum number of results (default %d).", maxResults), Required: false},
		},
		ExampleArgs: `{"query": "sourdough hydration best practices"}`,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query argument is required")
			}

			count := maxResults
			if n, ok := args["count"].(float64); ok && n > 0 && int(n) < maxResults {
				count = int(n)
			}

			results, err := mgr.Search(ctx, query, Options{Count: count})
			if err != nil {
				return nil, fmt.Errorf("web search: %w", err)
			}
			return FormatResults(results), nil
		},
	}
}
