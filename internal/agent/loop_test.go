package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/scribe-agent/internal/llm"
	"github.com/nugget/scribe-agent/internal/store"
	"github.com/nugget/scribe-agent/internal/tools"
)

// fakeClient returns scripted assistant messages in order. The last
// script entry repeats if the loop asks for more rounds.
type fakeClient struct {
	script []llm.Message
	err    error
	calls  [][]llm.Message
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, schemas []map[string]any) (*llm.ChatResponse, error) {
	wire := make([]llm.Message, len(messages))
	copy(wire, messages)
	f.calls = append(f.calls, wire)

	if f.err != nil {
		return nil, f.err
	}

	i := len(f.calls) - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return &llm.ChatResponse{Model: "fake", Message: f.script[i]}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupLoop(t *testing.T, client llm.Client, maxRounds int) (*Loop, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := tools.NewRegistry()
	registry.Register(&tools.Tool{
		Name:        "stash",
		Description: "stores a value",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if args["explode"] == true {
				return nil, fmt.Errorf("stash is full")
			}
			return map[string]any{"stored": true}, nil
		},
	})

	return NewLoop(discardLogger(), st, client, registry, maxRounds), st
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func TestChatSimpleAnswer(t *testing.T) {
	client := &fakeClient{script: []llm.Message{
		{Role: "assistant", Content: "Hello there."},
	}}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("")
	updated, trace, err := loop.Chat(context.Background(), sess.ID, "say hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(trace) != 0 {
		t.Errorf("trace = %d records, want 0", len(trace))
	}
	wantRoles := []string{"user", "assistant"}
	if len(updated.Messages) != len(wantRoles) {
		t.Fatalf("messages = %d, want %d", len(updated.Messages), len(wantRoles))
	}
	if updated.Messages[1].Content != "Hello there." {
		t.Errorf("assistant content = %q", updated.Messages[1].Content)
	}

	// First user message names the session.
	if updated.Title != "say hello" {
		t.Errorf("title = %q, want the user message", updated.Title)
	}
}

func TestChatSystemPromptOnWireOnly(t *testing.T) {
	client := &fakeClient{script: []llm.Message{
		{Role: "assistant", Content: "ok"},
	}}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("")
	updated, _, err := loop.Chat(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(client.calls))
	}
	wire := client.calls[0]
	if wire[0].Role != "system" || wire[0].Content == "" {
		t.Errorf("wire[0] = %+v, want system prompt", wire[0])
	}

	// The persisted transcript never contains the system prompt.
	for _, m := range updated.Messages {
		if m.Role == "system" {
			t.Error("system message leaked into the transcript")
		}
	}
}

func TestChatToolRound(t *testing.T) {
	client := &fakeClient{script: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("call_1", "stash", "{}")}},
		{Role: "assistant", Content: "Stored it."},
	}}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("")
	updated, trace, err := loop.Chat(context.Background(), sess.ID, "stash this")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(trace) != 1 {
		t.Fatalf("trace = %d records, want 1", len(trace))
	}
	if trace[0].ToolCall.ID != "call_1" || !trace[0].Result.OK {
		t.Errorf("trace[0] = %+v, want successful call_1", trace[0])
	}

	wantRoles := []string{"user", "assistant", "tool", "assistant"}
	if len(updated.Messages) != len(wantRoles) {
		t.Fatalf("messages = %d, want %d", len(updated.Messages), len(wantRoles))
	}
	for i, want := range wantRoles {
		if updated.Messages[i].Role != want {
			t.Errorf("messages[%d].role = %q, want %q", i, updated.Messages[i].Role, want)
		}
	}

	// The tool result message links back to the originating call and
	// carries the serialized result.
	toolMsg := updated.Messages[2]
	if toolMsg.ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q, want call_1", toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.Content, `"ok":true`) {
		t.Errorf("tool content = %q, want serialized result", toolMsg.Content)
	}

	// Second model call sees the tool result in the wire transcript.
	second := client.calls[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Errorf("last wire message = %+v, want the tool result", last)
	}
}

func TestChatMultipleToolCallsInOrder(t *testing.T) {
	client := &fakeClient{script: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{
			toolCall("call_a", "stash", "{}"),
			toolCall("call_b", "stash", `{"explode":true}`),
		}},
		{Role: "assistant", Content: "done"},
	}}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("")
	_, trace, err := loop.Chat(context.Background(), sess.ID, "two calls")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(trace) != 2 {
		t.Fatalf("trace = %d records, want 2", len(trace))
	}
	if trace[0].ToolCall.ID != "call_a" || trace[1].ToolCall.ID != "call_b" {
		t.Errorf("trace order = [%s %s], want [call_a call_b]",
			trace[0].ToolCall.ID, trace[1].ToolCall.ID)
	}
	if !trace[0].Result.OK {
		t.Error("first call should succeed")
	}
	// Handler errors become failed results, never loop errors.
	if trace[1].Result.OK || trace[1].Result.Error != "stash is full" {
		t.Errorf("trace[1].Result = %+v, want stash failure", trace[1].Result)
	}
}

func TestChatUnknownToolRecoverable(t *testing.T) {
	client := &fakeClient{script: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("call_1", "teleport", "{}")}},
		{Role: "assistant", Content: "I can't do that."},
	}}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("")
	updated, trace, err := loop.Chat(context.Background(), sess.ID, "teleport me")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(trace) != 1 || trace[0].Result.OK {
		t.Fatalf("trace = %+v, want one failed record", trace)
	}
	if !strings.Contains(trace[0].Result.Error, "unknown tool") {
		t.Errorf("error = %q, want unknown tool", trace[0].Result.Error)
	}

	last := updated.Messages[len(updated.Messages)-1]
	if last.Role != "assistant" || last.Content != "I can't do that." {
		t.Errorf("final message = %+v, want the model's recovery answer", last)
	}
}

func TestChatRoundLimitFallback(t *testing.T) {
	// The model requests tools on every round and never answers.
	client := &fakeClient{script: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{toolCall("call_x", "stash", "{}")}},
	}}
	loop, st := setupLoop(t, client, 2)

	sess, _ := st.CreateSession("")
	updated, trace, err := loop.Chat(context.Background(), sess.ID, "loop forever")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(client.calls) != 2 {
		t.Errorf("model calls = %d, want 2 (the round budget)", len(client.calls))
	}
	if len(trace) != 2 {
		t.Errorf("trace = %d records, want 2", len(trace))
	}

	// Transcript still ends with a visible assistant message.
	last := updated.Messages[len(updated.Messages)-1]
	if last.Role != "assistant" || last.Content == "" {
		t.Errorf("final message = %+v, want fallback assistant text", last)
	}
	if len(last.ToolCalls) != 0 {
		t.Error("fallback message must not request tools")
	}
}

func TestChatModelErrorLeavesUserMessage(t *testing.T) {
	client := &fakeClient{err: errors.New("upstream 500")}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("")
	_, _, err := loop.Chat(context.Background(), sess.ID, "hello?")
	if err == nil {
		t.Fatal("expected error from model failure")
	}

	// The user message persisted before the model call; nothing else did.
	got, _ := st.GetSession(sess.ID)
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want only the user message", got.Messages)
	}
}

func TestChatUnknownSession(t *testing.T) {
	loop, _ := setupLoop(t, &fakeClient{script: []llm.Message{{Role: "assistant", Content: "hi"}}}, 0)

	_, _, err := loop.Chat(context.Background(), "no-such-session", "hi")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChatKeepsCustomTitle(t *testing.T) {
	client := &fakeClient{script: []llm.Message{{Role: "assistant", Content: "ok"}}}
	loop, st := setupLoop(t, client, 0)

	sess, _ := st.CreateSession("Trip planning")
	updated, _, err := loop.Chat(context.Background(), sess.ID, "where should I go")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if updated.Title != "Trip planning" {
		t.Errorf("title = %q, want unchanged", updated.Title)
	}
}

func TestTruncateTitle(t *testing.T) {
	long := strings.Repeat("ab ", 40)
	got := truncateTitle(long)
	if n := len([]rune(got)); n > titleMaxLen {
		t.Errorf("title length = %d, want <= %d", n, titleMaxLen)
	}

	if got := truncateTitle("  short  "); got != "short" {
		t.Errorf("truncateTitle trimming = %q, want short", got)
	}
}

func TestIsDefaultTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"", true},
		{"New chat", true},
		{"NEW CHAT", true},
		{"untitled", true},
		{"  Untitled  ", true},
		{"Trip planning", false},
	}
	for _, tt := range tests {
		if got := isDefaultTitle(tt.title); got != tt.want {
			t.Errorf("isDefaultTitle(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}
