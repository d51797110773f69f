// Package tools defines the tools the model may call and the executor
// that runs them.
//
// The registry is built once at process start and is immutable
// afterward, so concurrent lookups need no locking. Schema order is the
// registration order: the model sees the same tool list, in the same
// order, on every request.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
	// Handler executes the tool. A returned error is normalized into a
	// failed Result by the executor; it never escapes to the caller.
	Handler func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Result is the normalized outcome of executing one tool call. It is
// what gets serialized into the tool-role message fed back to the model.
type Result struct {
	OK    bool
	Error string
	// Data carries the handler's payload fields. They are flattened
	// into the serialized object alongside "ok".
	Data map[string]any
}

// MarshalJSON renders the result as a flat object: {"ok":true,"note":{...}}
// or {"ok":false,"error":"..."}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+2)
	out["ok"] = r.OK
	if r.Error != "" {
		out["error"] = r.Error
	}
	for k, v := range r.Data {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a result from its flat serialized form.
func (r *Result) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if ok, isBool := raw["ok"].(bool); isBool {
		r.OK = ok
	}
	if msg, isStr := raw["error"].(string); isStr {
		r.Error = msg
	}
	delete(raw, "ok")
	delete(raw, "error")
	if len(raw) > 0 {
		r.Data = raw
	}
	return nil
}

// fail builds a failed result with a formatted error message.
func fail(format string, args ...any) Result {
	return Result{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Registry holds the available tools in registration order.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty tool registry. Call Register for each
// tool before handing the registry to the agent; it must not be
// modified afterward.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registering a duplicate name panics; tool sets
// are assembled once at startup and a collision is a programming error.
func (r *Registry) Register(t *Tool) {
	if _, dup := r.tools[t.Name]; dup {
		panic(fmt.Sprintf("tools: duplicate registration of %q", t.Name))
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Get retrieves a tool by name, or nil if unknown.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Schemas returns the tool declarations for the model, in registration
// order. The same slice contents are sent verbatim with every request
// so the model's view of available tools never changes mid-session.
func (r *Registry) Schemas() []map[string]any {
	schemas := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		schemas = append(schemas, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return schemas
}

// Execute runs one model-issued tool call and normalizes the outcome.
//
// Every failure mode (malformed arguments, unknown tool, handler
// error) produces a Result with OK=false that can be serialized back
// into the conversation. Execute never returns a Go error: tool
// failures are model-visible, not loop-fatal.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) Result {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fail("invalid arguments: %v", err)
		}
	}

	tool := r.tools[name]
	if tool == nil {
		return fail("unknown tool: %s", name)
	}

	data, err := tool.Handler(ctx, args)
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	return Result{OK: true, Data: data}
}
