package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/scribe-agent/internal/store"
)

// RegisterNoteTools adds the note storage tools and the server-time
// tool. These are always available; the web search tool is registered
// separately because it depends on provider configuration.
func RegisterNoteTools(r *Registry, st *store.Store) {
	r.Register(&Tool{
		Name:        "create_note",
		Description: "Create a note for the user. Use when asked to remember or save something.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Short note title",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Note content/body",
				},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional tags",
				},
			},
			"required": []string{"title", "content"},
		},
		Handler: handleCreateNote(st),
	})

	r.Register(&Tool{
		Name:        "search_notes",
		Description: "Search saved notes by title/content. Use when asked to recall something.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (substring match, case-insensitive)",
				},
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": store.MaxNoteListLimit,
					"default": store.DefaultNoteListLimit,
				},
			},
			"required": []string{"query"},
		},
		Handler: handleSearchNotes(st),
	})

	r.Register(&Tool{
		Name:        "list_notes",
		Description: "List the most recent saved notes.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": store.MaxNoteListLimit,
					"default": store.DefaultNoteListLimit,
				},
			},
		},
		Handler: handleListNotes(st),
	})

	r.Register(&Tool{
		Name:        "get_note",
		Description: "Fetch a specific note by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"note_id": map[string]any{"type": "string"},
			},
			"required": []string{"note_id"},
		},
		Handler: handleGetNote(st),
	})

	r.Register(&Tool{
		Name:        "get_server_time",
		Description: "Get current server time (UTC).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"utc": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})
}

func handleCreateNote(st *store.Store) func(context.Context, map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		title := strings.TrimSpace(argString(args, "title"))
		content := strings.TrimSpace(argString(args, "content"))
		if title == "" || content == "" {
			return nil, fmt.Errorf("title and content are required")
		}

		note, err := st.CreateNote(title, content, argStrings(args, "tags"))
		if err != nil {
			return nil, fmt.Errorf("create note: %w", err)
		}

		return map[string]any{"note": note}, nil
	}
}

func handleSearchNotes(st *store.Store) func(context.Context, map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query := strings.TrimSpace(argString(args, "query"))
		if query == "" {
			return nil, fmt.Errorf("query is required")
		}

		notes, err := st.SearchNotes(query, argInt(args, "limit"))
		if err != nil {
			return nil, fmt.Errorf("search notes: %w", err)
		}

		return map[string]any{"notes": notes}, nil
	}
}

func handleListNotes(st *store.Store) func(context.Context, map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		notes, err := st.ListNotes(argInt(args, "limit"))
		if err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}

		return map[string]any{"notes": notes}, nil
	}
}

func handleGetNote(st *store.Store) func(context.Context, map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		id := strings.TrimSpace(argString(args, "note_id"))
		if id == "" {
			return nil, fmt.Errorf("note_id is required")
		}

		note, err := st.GetNote(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("note not found: %s", id)
			}
			return nil, fmt.Errorf("get note: %w", err)
		}

		return map[string]any{"note": note}, nil
	}
}

// argString reads a string argument, returning "" when absent or of the
// wrong type.
func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argInt reads an integer argument. JSON numbers decode as float64.
func argInt(args map[string]any, key string) int {
	if f, ok := args[key].(float64); ok {
		return int(f)
	}
	return 0
}

// argStrings reads a string-array argument, skipping non-string elements.
func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
