package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillhq/quill-agent/internal/protocol"
	"github.com/quillhq/quill-agent/internal/tools"
)

// NewSearchTool exposes the index as the vault_search tool. Results
// are returned as a JSON array so the agent loop can read titles and
// scores out of them for citations.
func NewSearchTool(idx *Index, maxResults int) *tools.Tool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &tools.Tool{
		Name:        "vault_search",
		Description: "Search the user's note vault by keyword. Returns matching notes with titles, relevance scores and snippets.",
		Args: []protocol.ArgInfo{
			{Name: "query", Description: "Keywords to search for.", Required: true},
			{Name: "limit", Description: fmt.Sprintf("Maximum number of results (default %d).", maxResults), Required: false},
		},
		ExampleArgs: `{"query": "sourdough starter"}`,
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query argument is required")
			}

			limit := maxResults
			if n, ok := args["limit"].(float64); ok && n > 0 && int(n) < maxResults {
				limit = int(n)
			}

			results, err := idx.Search(query, limit)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return "No matching notes found.", nil
			}

			data, err := json.Marshal(results)
			if err != nil {
				return nil, fmt.Errorf("encode results: %w", err)
			}
			return string(data), nil
		},
	}
}
