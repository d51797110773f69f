// Package agent implements the tool-calling orchestration loop.
//
// One call to [Loop.Chat] is one user turn: the loop appends the user
// message, then alternates model calls with tool executions until the
// model answers without requesting tools, or the round budget runs
// out. Every tool invocation is recorded in a trace returned to the
// caller, and the whole turn is appended to the session transcript.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nugget/scribe-agent/internal/llm"
	"github.com/nugget/scribe-agent/internal/prompts"
	"github.com/nugget/scribe-agent/internal/store"
	"github.com/nugget/scribe-agent/internal/tools"
)

// DefaultMaxRounds bounds model calls per turn when no explicit limit
// is configured. The bound is a circuit breaker: a model that keeps
// requesting tools must not be able to loop forever.
const DefaultMaxRounds = 6

// titleMaxLen is the display length a session title is truncated to.
const titleMaxLen = 60

// exhaustedMessage ends the turn when the round budget runs out, so the
// transcript always closes on an assistant message with visible content.
const exhaustedMessage = "I ran out of tool-calling rounds before I could finish. " +
	"The tool results so far are in this conversation; ask me to continue if you'd like."

// emptyResponseMessage stands in when the model returns neither text
// nor tool calls.
const emptyResponseMessage = "I wasn't able to come up with a response. Please try rephrasing."

// ToolCallRecord pairs one model-issued tool call with its outcome.
// Records are returned to the chat caller for display and audit; they
// are not persisted as part of the session.
type ToolCallRecord struct {
	ToolCall llm.ToolCall `json:"tool_call"`
	Result   tools.Result `json:"result"`
}

// Loop drives chat turns for sessions.
type Loop struct {
	logger    *slog.Logger
	store     *store.Store
	client    llm.Client
	registry  *tools.Registry
	maxRounds int

	// Per-session locks serialize concurrent turns against the same
	// session; without them, two interleaved turns could each append a
	// half-transcript. Turns on different sessions run concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLoop creates the orchestration loop. maxRounds <= 0 selects
// [DefaultMaxRounds].
func NewLoop(logger *slog.Logger, st *store.Store, client llm.Client, registry *tools.Registry, maxRounds int) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Loop{
		logger:    logger,
		store:     st,
		client:    client,
		registry:  registry,
		maxRounds: maxRounds,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (l *Loop) sessionLock(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}

// Chat runs one user turn against a session.
//
// The user message is persisted before the first model call, so a
// model failure leaves the transcript in a consistent state (the user
// turn saved, nothing else). Tool failures never abort the turn; they
// are serialized into the transcript for the model to react to. Model
// client failures do abort it and are returned to the caller.
//
// Returns the updated session and the ordered trace of every tool call
// executed this turn. Returns [store.ErrNotFound] for an unknown
// session id.
func (l *Loop) Chat(ctx context.Context, sessionID, message string) (*store.Session, []ToolCallRecord, error) {
	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := l.store.GetSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	userMsg := store.Message{
		Role:      "user",
		Content:   message,
		CreatedAt: time.Now().UTC(),
	}

	// The first user message names the session.
	var newTitle string
	if isDefaultTitle(sess.Title) {
		newTitle = truncateTitle(message)
	}

	if _, err := l.store.AppendMessages(sessionID, []store.Message{userMsg}, newTitle); err != nil {
		return nil, nil, fmt.Errorf("persist user message: %w", err)
	}

	// Working transcript for the model: system prompt plus the full
	// prior conversation. The system prompt is wire-only and never
	// persisted.
	wire := make([]llm.Message, 0, len(sess.Messages)+2)
	wire = append(wire, llm.Message{Role: "system", Content: prompts.System})
	wire = append(wire, sanitize(sess.Messages)...)
	wire = append(wire, llm.Message{Role: "user", Content: message})

	schemas := l.registry.Schemas()
	trace := []ToolCallRecord{}
	var generated []store.Message

	l.logger.Info("chat turn started",
		"session", sessionID,
		"history", len(sess.Messages),
		"tools", len(schemas),
	)

	answered := false
	for round := 1; round <= l.maxRounds; round++ {
		resp, err := l.client.Chat(ctx, wire, schemas)
		if err != nil {
			// Turn-fatal: surface to the caller. The user message is
			// already saved; no partial assistant/tool turn persists.
			return nil, nil, fmt.Errorf("model call failed: %w", err)
		}

		asst := resp.Message
		asst.Role = "assistant"

		if len(asst.ToolCalls) == 0 && asst.Content == "" {
			// The model returned nothing at all. Substitute a visible
			// notice so the transcript never ends on an empty message.
			asst.Content = emptyResponseMessage
		}

		wire = append(wire, asst)
		generated = append(generated, store.Message{
			Role:      "assistant",
			Content:   asst.Content,
			ToolCalls: asst.ToolCalls,
			CreatedAt: time.Now().UTC(),
		})

		if len(asst.ToolCalls) == 0 {
			answered = true
			l.logger.Debug("turn answered", "session", sessionID, "round", round)
			break
		}

		// Execute the requested tools sequentially, in emission order.
		// Results must land in matching order for the model to
		// correlate them, and a later call's arguments may lean on the
		// intent stated earlier in the same turn.
		for _, call := range asst.ToolCalls {
			result := l.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
			trace = append(trace, ToolCallRecord{ToolCall: call, Result: result})

			payload, err := json.Marshal(result)
			if err != nil {
				// Result marshals from plain maps; this is unreachable
				// in practice but must still produce a tool message.
				payload = []byte(`{"ok":false,"error":"failed to encode tool result"}`)
			}

			toolMsg := llm.Message{
				Role:       "tool",
				Content:    string(payload),
				ToolCallID: call.ID,
			}
			wire = append(wire, toolMsg)
			generated = append(generated, store.Message{
				Role:       "tool",
				Content:    toolMsg.Content,
				ToolCallID: call.ID,
				CreatedAt:  time.Now().UTC(),
			})

			l.logger.Info("tool executed",
				"session", sessionID,
				"round", round,
				"tool", call.Function.Name,
				"ok", result.OK,
			)
		}
	}

	if !answered {
		generated = append(generated, store.Message{
			Role:      "assistant",
			Content:   exhaustedMessage,
			CreatedAt: time.Now().UTC(),
		})
		l.logger.Warn("round budget exhausted", "session", sessionID, "max_rounds", l.maxRounds)
	}

	updated, err := l.store.AppendMessages(sessionID, generated, "")
	if err != nil {
		return nil, nil, fmt.Errorf("persist turn: %w", err)
	}

	l.logger.Info("chat turn completed",
		"session", sessionID,
		"messages", len(generated)+1,
		"tool_calls", len(trace),
	)

	return updated, trace, nil
}

// sanitize converts stored messages to wire messages, dropping anything
// a chat completions endpoint would reject. Tool call metadata is kept
// only on the roles it belongs to.
func sanitize(msgs []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			out = append(out, llm.Message{Role: m.Role, Content: m.Content})
		case "assistant":
			out = append(out, llm.Message{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls})
		case "tool":
			out = append(out, llm.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID})
		}
	}
	return out
}

// isDefaultTitle reports whether a session still carries a placeholder
// title that the first user message should replace.
func isDefaultTitle(title string) bool {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "", "new chat", "untitled":
		return true
	}
	return false
}

// truncateTitle shortens a message to a display-friendly title.
func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= titleMaxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:titleMaxLen]))
}
