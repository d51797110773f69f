package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/scribe-agent/internal/tools"
)

// RegisterTool adds the search_web tool backed by the given provider.
//
// Call this only when a provider is configured. Leaving the tool out of
// the registry keeps it out of the schema list, so the model never
// attempts a search it cannot perform; a stale tool_call for it would
// resolve as an unknown tool and come back as a recoverable error.
func RegisterTool(r *tools.Registry, p Provider) {
	r.Register(&tools.Tool{
		Name:        "search_web",
		Description: "Search the web to gather sources and snippets for current information.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query",
				},
				"type": map[string]any{
					"type":        "string",
					"enum":        []string{VerticalSearch, VerticalNews},
					"default":     VerticalSearch,
					"description": "Search vertical",
				},
				"num_results": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     10,
					"default":     5,
					"description": "Maximum number of results to return",
				},
				"gl": map[string]any{
					"type":        "string",
					"description": "Country code for results (e.g. us, in)",
				},
				"hl": map[string]any{
					"type":        "string",
					"description": "Language code (e.g. en)",
				},
			},
			"required": []string{"query"},
		},
		Handler: toolHandler(p),
	})
}

func toolHandler(p Provider) func(ctx context.Context, args map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query, _ := args["query"].(string)
		query = strings.TrimSpace(query)
		if query == "" {
			return nil, fmt.Errorf("query is required")
		}

		opts := Options{}
		if v, ok := args["type"].(string); ok {
			opts.Vertical = strings.ToLower(strings.TrimSpace(v))
		}
		if n, ok := args["num_results"].(float64); ok {
			opts.Count = int(n)
		}
		if gl, ok := args["gl"].(string); ok {
			opts.Country = strings.TrimSpace(gl)
		}
		if hl, ok := args["hl"].(string); ok {
			opts.Language = strings.TrimSpace(hl)
		}

		resp, err := p.Search(ctx, query, opts)
		if err != nil {
			return nil, err
		}

		vertical := opts.Vertical
		if vertical != VerticalNews {
			vertical = VerticalSearch
		}

		out := map[string]any{
			"type":    vertical,
			"query":   query,
			"results": resp.Results,
		}
		if resp.AnswerBox != nil {
			out["answer_box"] = resp.AnswerBox
		}
		if resp.KnowledgeGraph != nil {
			out["knowledge_graph"] = resp.KnowledgeGraph
		}
		return out, nil
	}
}
