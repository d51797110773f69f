// Package api implements the HTTP API for sessions and notes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/nugget/scribe-agent/internal/agent"
	"github.com/nugget/scribe-agent/internal/buildinfo"
	"github.com/nugget/scribe-agent/internal/store"
)

// defaultNoteLimit applies to note list and search endpoints when the
// caller gives no limit. The store clamps the upper bound.
const defaultNoteLimit = 20

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen       string
	loop         *agent.Loop
	store        *store.Store
	logger       *slog.Logger
	allowOrigins []string
	server       *http.Server
}

// NewServer creates a new API server. allowOrigins lists the CORS
// origins permitted to call the API; empty means CORS headers are
// never emitted.
func NewServer(listen string, loop *agent.Loop, st *store.Store, allowOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		listen:       listen,
		loop:         loop,
		store:        st,
		logger:       logger,
		allowOrigins: allowOrigins,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Session endpoints
	mux.HandleFunc("GET /api/sessions", s.handleSessionList)
	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("POST /api/sessions/{id}/chat", s.handleSessionChat)

	// Note endpoints. The search route must be registered explicitly so
	// the mux doesn't swallow it as a note id.
	mux.HandleFunc("GET /api/notes", s.handleNoteList)
	mux.HandleFunc("POST /api/notes", s.handleNoteCreate)
	mux.HandleFunc("GET /api/notes/search", s.handleNoteSearch)
	mux.HandleFunc("GET /api/notes/{id}", s.handleNoteGet)
	mux.HandleFunc("GET /api/notes/{id}/html", s.handleNoteHTML)

	return s.withLogging(s.withCORS(mux))
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // chat turns can run several model rounds
	}

	s.logger.Info("starting API server", "listen", s.listen, "version", buildinfo.Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.allowOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": message}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	}, s.logger)
}

// Session handlers

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, s.logger)
}

type sessionCreateRequest struct {
	Title string `json:"title,omitempty"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := s.store.CreateSession(strings.TrimSpace(req.Title))
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("session get failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, sess, s.logger)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("session delete failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse is the result of one chat turn: the updated session and
// the trace of tool calls the turn executed.
type chatResponse struct {
	Session   *store.Session         `json:"session"`
	ToolTrace []agent.ToolCallRecord `json:"tool_trace"`
}

func (s *Server) handleSessionChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, trace, err := s.loop.Chat(r.Context(), r.PathValue("id"), message)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("chat turn failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "chat failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, chatResponse{Session: sess, ToolTrace: trace}, s.logger)
}

// Note handlers

func (s *Server) handleNoteList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultNoteLimit)

	notes, err := s.store.ListNotes(limit)
	if err != nil {
		s.logger.Error("note list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list notes")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"notes": notes,
		"count": len(notes),
	}, s.logger)
}

func (s *Server) handleNoteSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.errorResponse(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit := parseIntParam(r, "limit", defaultNoteLimit)

	notes, err := s.store.SearchNotes(query, limit)
	if err != nil {
		s.logger.Error("note search failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to search notes")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"notes": notes,
		"count": len(notes),
		"query": query,
	}, s.logger)
}

func (s *Server) handleNoteGet(w http.ResponseWriter, r *http.Request) {
	note, err := s.store.GetNote(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "note not found")
			return
		}
		s.logger.Error("note get failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load note")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, note, s.logger)
}

// handleNoteHTML serves a note's markdown content rendered to HTML,
// for clients that want a readable view without their own renderer.
func (s *Server) handleNoteHTML(w http.ResponseWriter, r *http.Request) {
	note, err := s.store.GetNote(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "note not found")
			return
		}
		s.logger.Error("note get failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load note")
		return
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(note.Content), &body); err != nil {
		s.logger.Error("markdown render failed", "error", err, "note", note.ID)
		s.errorResponse(w, http.StatusInternalServerError, "failed to render note")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<article>\n<h1>%s</h1>\n%s</article>\n", htmlEscape(note.Title), body.String())
}

type noteCreateRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

func (s *Server) handleNoteCreate(w http.ResponseWriter, r *http.Request) {
	var req noteCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" || req.Content == "" {
		s.errorResponse(w, http.StatusBadRequest, "title and content are required")
		return
	}

	note, err := s.store.CreateNote(req.Title, req.Content, req.Tags)
	if err != nil {
		s.logger.Error("note create failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, note, s.logger)
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
