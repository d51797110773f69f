package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/nugget/scribe-agent/internal/tools"
)

// fakeProvider records the last query and returns canned results.
type fakeProvider struct {
	lastQuery string
	lastOpts  Options
	err       error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	f.lastQuery = query
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &Response{
		Results:   []Result{{Title: "hit", URL: "https://example.com"}},
		AnswerBox: map[string]any{"answer": "42"},
	}, nil
}

func TestSearchWebTool(t *testing.T) {
	p := &fakeProvider{}
	r := tools.NewRegistry()
	RegisterTool(r, p)

	res := r.Execute(context.Background(), "search_web",
		`{"query":"go releases","type":"news","num_results":3,"gl":"de","hl":"de"}`)
	if !res.OK {
		t.Fatalf("expected OK, got error %q", res.Error)
	}

	if p.lastQuery != "go releases" {
		t.Errorf("query = %q", p.lastQuery)
	}
	want := Options{Vertical: "news", Count: 3, Country: "de", Language: "de"}
	if p.lastOpts != want {
		t.Errorf("opts = %+v, want %+v", p.lastOpts, want)
	}

	if res.Data["type"] != "news" || res.Data["query"] != "go releases" {
		t.Errorf("payload = %+v", res.Data)
	}
	if res.Data["answer_box"] == nil {
		t.Error("answer_box missing from payload")
	}
}

func TestSearchWebToolRequiresQuery(t *testing.T) {
	r := tools.NewRegistry()
	RegisterTool(r, &fakeProvider{})

	res := r.Execute(context.Background(), "search_web", `{"query":"  "}`)
	if res.OK {
		t.Error("expected OK=false for blank query")
	}
}

func TestSearchWebToolProviderError(t *testing.T) {
	r := tools.NewRegistry()
	RegisterTool(r, &fakeProvider{err: fmt.Errorf("quota exhausted")})

	res := r.Execute(context.Background(), "search_web", `{"query":"x"}`)
	if res.OK {
		t.Error("expected OK=false")
	}
	if res.Error != "quota exhausted" {
		t.Errorf("error = %q", res.Error)
	}
}
