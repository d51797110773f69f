package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nugget/scribe-agent/internal/httpkit"
)

// Serper implements the Provider interface for the Serper Google
// Search API.
type Serper struct {
	apiKey     string
	baseURL    string
	country    string
	language   string
	httpClient *http.Client
}

// NewSerper creates a Serper provider. Country and language act as
// defaults for queries that don't specify their own.
func NewSerper(apiKey, country, language string) *Serper {
	if country == "" {
		country = "us"
	}
	if language == "" {
		language = "en"
	}
	return &Serper{
		apiKey:     apiKey,
		baseURL:    "https://google.serper.dev",
		country:    country,
		language:   language,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// SetBaseURL overrides the API endpoint. For tests.
func (s *Serper) SetBaseURL(u string) { s.baseURL = u }

func (s *Serper) Name() string { return "serper" }

// serperItem is one entry in Serper's organic or news arrays.
type serperItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Source   string `json:"source"`
	Date     string `json:"date"`
	Position int    `json:"position"`
}

// serperResponse is the JSON response from Serper's search endpoints.
type serperResponse struct {
	Organic        []serperItem   `json:"organic"`
	News           []serperItem   `json:"news"`
	AnswerBox      map[string]any `json:"answerBox"`
	KnowledgeGraph map[string]any `json:"knowledgeGraph"`
}

func (s *Serper) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	vertical := opts.Vertical
	if vertical != VerticalNews {
		vertical = VerticalSearch
	}

	count := opts.Count
	if count <= 0 {
		count = 5
	}
	if count > 10 {
		count = 10
	}

	gl := opts.Country
	if gl == "" {
		gl = s.country
	}
	hl := opts.Language
	if hl == "" {
		hl = s.language
	}

	payload, err := json.Marshal(map[string]any{
		"q":   query,
		"gl":  gl,
		"hl":  hl,
		"num": count,
	})
	if err != nil {
		return nil, fmt.Errorf("serper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+vertical, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 800))
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	items := sr.Organic
	if vertical == VerticalNews {
		items = sr.News
	}
	if len(items) > count {
		items = items[:count]
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		r := Result{
			Title:   trimText(item.Title, 200),
			URL:     item.Link,
			Snippet: trimText(item.Snippet, 400),
		}
		if vertical == VerticalNews {
			r.Source = item.Source
			r.Date = item.Date
		} else {
			r.Position = item.Position
		}
		results = append(results, r)
	}

	return &Response{
		Results:        results,
		AnswerBox:      pick(sr.AnswerBox, "answer", "snippet", "title", "link"),
		KnowledgeGraph: pick(sr.KnowledgeGraph, "title", "type", "description", "website", "imageUrl"),
	}, nil
}

// trimText truncates text to max runes, marking the cut with an ellipsis.
func trimText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// pick copies the named keys that are present and non-nil.
func pick(src map[string]any, keys ...string) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := map[string]any{}
	for _, k := range keys {
		if v, ok := src[k]; ok && v != nil {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
