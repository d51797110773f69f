// Package search provides the web search provider behind the
// search_web tool.
//
// Providers implement the [Provider] interface; the tool layer is
// registered only when a provider is actually configured, so the model
// never sees a search tool it cannot use.
package search

import "context"

// Verticals a provider may support.
const (
	VerticalSearch = "search"
	VerticalNews   = "news"
)

// Result is a single search result. Source and Date are populated for
// news results, Position for organic ones.
type Result struct {
	Title    string `json:"title"`
	URL      string `json:"link"`
	Snippet  string `json:"snippet,omitempty"`
	Source   string `json:"source,omitempty"`
	Date     string `json:"date,omitempty"`
	Position int    `json:"position,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Vertical selects the result type: "search" (default) or "news".
	Vertical string

	// Count is the maximum number of results to return (1-10).
	// Zero means provider default.
	Count int

	// Country is a two-letter country code for result localization.
	Country string

	// Language is a two-letter language code.
	Language string
}

// Response is everything a provider returned for one query.
type Response struct {
	Results []Result `json:"results"`

	// AnswerBox and KnowledgeGraph are enrichment blocks some
	// providers return alongside results. Passed through as-is.
	AnswerBox      map[string]any `json:"answer_box,omitempty"`
	KnowledgeGraph map[string]any `json:"knowledge_graph,omitempty"`
}

// Provider is the interface search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "serper").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}
