package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/scribe-agent/internal/httpkit"
)

// DefaultBaseURL is the OpenRouter API endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter is a client for the OpenRouter chat completions API.
type OpenRouter struct {
	baseURL     string
	apiKey      string
	model       string
	httpReferer string
	title       string
	httpClient  *http.Client
	logger      *slog.Logger
}

// OpenRouterOption configures an OpenRouter client.
type OpenRouterOption func(*OpenRouter)

// WithBaseURL overrides the API endpoint (tests, proxies).
func WithBaseURL(u string) OpenRouterOption {
	return func(c *OpenRouter) { c.baseURL = u }
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter
// uses to attribute traffic to an app.
func WithAttribution(referer, title string) OpenRouterOption {
	return func(c *OpenRouter) {
		c.httpReferer = referer
		c.title = title
	}
}

// WithLogger sets a logger for wire-level diagnostics.
func WithLogger(l *slog.Logger) OpenRouterOption {
	return func(c *OpenRouter) { c.logger = l }
}

// NewOpenRouter creates an OpenRouter client for the given model.
func NewOpenRouter(apiKey, model string, opts ...OpenRouterOption) *OpenRouter {
	c := &OpenRouter{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		// Tool-calling rounds against large models need time.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(60 * time.Second)),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured model identifier.
func (c *OpenRouter) Model() string { return c.model }

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model             string           `json:"model"`
	Messages          []Message        `json:"messages"`
	Temperature       float64          `json:"temperature"`
	MaxTokens         int              `json:"max_tokens"`
	Tools             []map[string]any `json:"tools,omitempty"`
	ToolChoice        string           `json:"tool_choice,omitempty"`
	ParallelToolCalls bool             `json:"parallel_tool_calls,omitempty"`
}

// chatCompletion is the response body from the chat completions endpoint.
type chatCompletion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request and parses the assistant message.
// Any transport failure, non-2xx status, or unparseable body is returned
// as an error; the caller treats these as turn-fatal, unlike tool
// failures which stay inside the transcript.
func (c *OpenRouter) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openrouter: api key is not set")
	}

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   2000,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
		req.ParallelToolCalls = true
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.httpReferer != "" {
		httpReq.Header.Set("HTTP-Referer", c.httpReferer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	c.logger.Debug("calling model", "model", c.model, "messages", len(messages), "tools", len(tools))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 2048))
	}

	var completion chatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: response contained no choices")
	}

	msg := completion.Choices[0].Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}

	model := completion.Model
	if model == "" {
		model = c.model
	}

	return &ChatResponse{
		Model:        model,
		Message:      msg,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}
