// Package llm provides the model client for chat completions.
package llm

import "context"

// Message represents a chat message on the wire, in the OpenAI chat
// completions shape OpenRouter speaks.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call emitted by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments. Arguments are
// kept as raw JSON text; the tool executor owns parsing (and owns
// turning malformed payloads into a model-visible error).
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is the parsed result of one chat completion call.
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage as reported by the provider.
	InputTokens  int
	OutputTokens int
}

// Client is the interface the orchestration loop talks to. Tools are
// the JSON-schema tool declarations sent verbatim with every request.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
