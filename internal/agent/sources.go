package agent

import (
	"encoding/json"
	"sort"
)

// Source is one provenance entry surfaced to the user as a citation.
type Source struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// provenanceTool is the one tool whose results carry citation
// metadata.
const provenanceTool = "vault_search"

// extractSources parses provenance entries out of a tool result.
// Only vault_search results are inspected; anything that is not a JSON
// result list (e.g. the "no matches" message) yields nothing.
func extractSources(toolName, result string) []Source {
	if toolName != provenanceTool {
		return nil
	}

	var hits []struct {
		Title string  `json:"title"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(result), &hits); err != nil {
		return nil
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		if h.Title == "" {
			continue
		}
		sources = append(sources, Source{Title: h.Title, Score: h.Score})
	}
	return sources
}

// dedupeSources keeps, per unique title, only the highest-scoring
// occurrence, and returns the result sorted by score descending.
func dedupeSources(sources []Source) []Source {
	if len(sources) == 0 {
		return nil
	}

	best := make(map[string]float64, len(sources))
	for _, s := range sources {
		if score, seen := best[s.Title]; !seen || s.Score > score {
			best[s.Title] = s.Score
		}
	}

	out := make([]Source, 0, len(best))
	for title, score := range best {
		out = append(out, Source{Title: title, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})
	return out
}
