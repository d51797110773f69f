package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatSendsHeadersAndBody(t *testing.T) {
	var gotReq chatRequest
	var gotAuth, gotReferer, gotTitle string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model": "test/model-1",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	c := NewOpenRouter("sk-test", "test/model-1",
		WithBaseURL(srv.URL),
		WithAttribution("http://localhost:5173", "Scribe"),
	)

	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "t"}}}
	resp, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}}, tools)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReferer != "http://localhost:5173" || gotTitle != "Scribe" {
		t.Errorf("attribution headers = %q / %q", gotReferer, gotTitle)
	}
	if gotReq.Model != "test/model-1" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if gotReq.ToolChoice != "auto" || !gotReq.ParallelToolCalls {
		t.Errorf("tool settings = %q / %v, want auto / true", gotReq.ToolChoice, gotReq.ParallelToolCalls)
	}

	if resp.Message.Content != "hi" {
		t.Errorf("content = %q, want hi", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatOmitsToolFieldsWithoutTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		json.NewDecoder(r.Body).Decode(&raw)
		for _, key := range []string{"tools", "tool_choice", "parallel_tool_calls"} {
			if _, present := raw[key]; present {
				t.Errorf("request contains %q despite empty tool list", key)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenRouter("sk-test", "m", WithBaseURL(srv.URL))
	if _, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil); err != nil {
		t.Fatalf("chat: %v", err)
	}
}

func TestChatParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "create_note",
								"arguments": `{"title":"x"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenRouter("sk-test", "m", WithBaseURL(srv.URL))
	resp, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool_calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "create_note" {
		t.Errorf("call = %+v", call)
	}
	// Arguments stay raw JSON text; the executor parses them.
	if call.Function.Arguments != `{"title":"x"}` {
		t.Errorf("arguments = %q", call.Function.Arguments)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenRouter("sk-test", "m", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error for HTTP 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status code in message", err)
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewOpenRouter("sk-test", "m", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("err = %v, want no-choices error", err)
	}
}

func TestChatMissingAPIKey(t *testing.T) {
	c := NewOpenRouter("", "m")
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestChatDefaultsAssistantRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "no role field"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenRouter("sk-test", "m", WithBaseURL(srv.URL))
	resp, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Message.Role != "assistant" {
		t.Errorf("role = %q, want assistant", resp.Message.Role)
	}
}
