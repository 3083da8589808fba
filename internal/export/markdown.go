// Package export writes notes out of the store: markdown files with YAML
// frontmatter, and HTML renderings of note content.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goslug "github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/dendrite/internal/atomicfile"
	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
)

// Frontmatter is the YAML header of an exported note.
type Frontmatter struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Tags        []string   `yaml:"tags"`
	LinkedNotes []string   `yaml:"linked_notes"`
	BrokenLinks []string   `yaml:"broken_links,omitempty"`
	CreatedAt   *time.Time `yaml:"created_at,omitempty"`
	UpdatedAt   *time.Time `yaml:"updated_at,omitempty"`
}

// File is one written export.
type File struct {
	NoteID string
	Path   string
}

// FileName returns the file name stem for title.
func FileName(title string) string {
	if s := goslug.Make(title); s != "" {
		return s
	}
	return "untitled"
}

// FrontmatterOf builds the header for n. With a resolver, linked notes and
// broken links are taken from the current content; without one the stored
// linked notes are used.
func FrontmatterOf(n model.Note, resolve linkgraph.ResolveFunc) Frontmatter {
	fm := Frontmatter{
		ID:          n.ID,
		Title:       n.Title,
		Tags:        n.Tags,
		LinkedNotes: n.LinkedNotes,
	}
	if resolve != nil {
		fm.LinkedNotes = linkgraph.OutboundLinks(n.Content, resolve)
		for _, tok := range linkgraph.Classify(n.Content, resolve) {
			if tok.Status == linkgraph.Broken {
				fm.BrokenLinks = append(fm.BrokenLinks, tok.Title)
			}
		}
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}
	if fm.LinkedNotes == nil {
		fm.LinkedNotes = []string{}
	}
	if !n.CreatedAt.IsZero() {
		t := n.CreatedAt.UTC()
		fm.CreatedAt = &t
	}
	if !n.UpdatedAt.IsZero() {
		t := n.UpdatedAt.UTC()
		fm.UpdatedAt = &t
	}
	return fm
}

// Markdown renders n as a markdown document with frontmatter.
func Markdown(n model.Note, resolve linkgraph.ResolveFunc) ([]byte, error) {
	header, err := yaml.Marshal(FrontmatterOf(n, resolve))
	if err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(n.Content)
	if n.Content != "" && !strings.HasSuffix(n.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// WriteMarkdown writes one file per note into dir. Notes whose names
// collide get -2, -3, ... suffixes in the order given.
func WriteMarkdown(dir string, notes []model.Note, resolve linkgraph.ResolveFunc) ([]File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	used := make(map[string]bool, len(notes))
	files := make([]File, 0, len(notes))
	for _, n := range notes {
		stem := FileName(n.Title)
		name := stem
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("%s-%d", stem, i)
		}
		used[name] = true

		data, err := Markdown(n, resolve)
		if err != nil {
			return files, fmt.Errorf("note %s: %w", n.ID, err)
		}
		path := filepath.Join(dir, name+".md")
		if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, File{NoteID: n.ID, Path: path})
	}
	return files, nil
}
