// Package ingest imports markdown documents into the note store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/nugget/scribe-agent/internal/store"
)

// Importer reads markdown files and stores each one as a note.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
	md     goldmark.Markdown
}

// NewImporter creates a markdown importer backed by the given store.
func NewImporter(st *store.Store, logger *slog.Logger) *Importer {
	return &Importer{
		store:  st,
		logger: logger,
		md:     goldmark.New(),
	}
}

// ImportFile stores one markdown file as a note. The note title comes
// from the document's first level-1 heading, falling back to the file
// name. The full markdown source becomes the note content.
func (i *Importer) ImportFile(ctx context.Context, path string, tags []string) (*store.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	content := strings.TrimSpace(string(src))
	if content == "" {
		return nil, fmt.Errorf("%s: empty document", path)
	}

	title := i.documentTitle(src)
	if title == "" {
		title = filenameTitle(path)
	}

	note, err := i.store.CreateNote(title, content, tags)
	if err != nil {
		return nil, fmt.Errorf("store note from %s: %w", path, err)
	}

	i.logger.Info("imported note", "path", path, "note", note.ID, "title", note.Title)
	return note, nil
}

// ImportPaths imports each named file, returning the notes created.
// The first failure aborts the batch.
func (i *Importer) ImportPaths(ctx context.Context, paths []string, tags []string) ([]*store.Note, error) {
	notes := make([]*store.Note, 0, len(paths))
	for _, p := range paths {
		note, err := i.ImportFile(ctx, p, tags)
		if err != nil {
			return notes, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// documentTitle extracts the text of the first top-level heading, or
// "" when the document has none.
func (i *Importer) documentTitle(src []byte) string {
	doc := i.md.Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 {
			continue
		}
		var b strings.Builder
		lines := h.Lines()
		for j := 0; j < lines.Len(); j++ {
			seg := lines.At(j)
			b.Write(seg.Value(src))
		}
		return strings.TrimSpace(b.String())
	}
	return ""
}

// filenameTitle derives a readable title from a file path.
func filenameTitle(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.TrimSpace(name)
}
