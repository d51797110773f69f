package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Note limits, matching the API validation bounds.
const (
	// MaxNoteListLimit caps how many notes a single list or search
	// call may return.
	MaxNoteListLimit = 50

	// DefaultNoteListLimit applies when the caller gives no limit.
	DefaultNoteListLimit = 10
)

// Note is a stored note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// ClampNoteLimit normalizes a caller-supplied limit into [1, MaxNoteListLimit],
// substituting DefaultNoteListLimit for zero or negative values.
func ClampNoteLimit(limit int) int {
	if limit <= 0 {
		return DefaultNoteListLimit
	}
	if limit > MaxNoteListLimit {
		return MaxNoteListLimit
	}
	return limit
}

// CreateNote stores a new note. Blank tags are dropped.
func (s *Store) CreateNote(title, content string, tags []string) (*Note, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate note id: %w", err)
	}

	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}

	encoded, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO notes (id, title, content, tags, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), title, content, string(encoded), now)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}

	return &Note{
		ID:        id.String(),
		Title:     title,
		Content:   content,
		Tags:      clean,
		CreatedAt: now,
	}, nil
}

// GetNote retrieves a note by id. Returns [ErrNotFound] if missing.
func (s *Store) GetNote(id string) (*Note, error) {
	row := s.db.QueryRow(`
		SELECT id, title, content, tags, created_at FROM notes WHERE id = ?
	`, id)

	n, err := scanNote(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return n, err
}

// ListNotes returns up to limit notes, newest first.
func (s *Store) ListNotes(limit int) ([]Note, error) {
	rows, err := s.db.Query(`
		SELECT id, title, content, tags, created_at
		FROM notes
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, ClampNoteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

// SearchNotes returns up to limit notes whose title, content, or tags
// contain query (case-insensitive substring match), newest first.
func (s *Store) SearchNotes(query string, limit int) ([]Note, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.Query(`
		SELECT id, title, content, tags, created_at
		FROM notes
		WHERE title LIKE ? ESCAPE '\'
		   OR content LIKE ? ESCAPE '\'
		   OR tags LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, pattern, ClampNoteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	notes := []Note{}
	for rows.Next() {
		n, err := scanNote(rows.Scan)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func scanNote(scan func(...any) error) (*Note, error) {
	var n Note
	var tags sql.NullString
	if err := scan(&n.ID, &n.Title, &n.Content, &tags, &n.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	n.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &n.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &n, nil
}

// escapeLike escapes LIKE metacharacters so user queries match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
