// Package model defines the records Dendrite stores and passes between layers.
package model

import (
	"slices"
	"strings"
)

// Note is the unit of storage and linking.
type Note struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"ownerId"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`

	// LinkedNotes holds the outbound links, derived from Content on every save.
	LinkedNotes []string `json:"linkedNotes"`

	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`

	// Version is bumped by the store on every write. It is not part of the
	// document fields and is only used to detect changes.
	Version int64 `json:"version,omitempty"`
}

// Clone returns a deep copy of n.
func (n Note) Clone() Note {
	n.Tags = slices.Clone(n.Tags)
	n.LinkedNotes = slices.Clone(n.LinkedNotes)
	return n
}

// HasTag reports whether the note carries tag.
func (n Note) HasTag(tag string) bool {
	return slices.Contains(n.Tags, strings.ToLower(tag))
}

// LinksTo reports whether id is among the note's outbound links.
func (n Note) LinksTo(id string) bool {
	return slices.Contains(n.LinkedNotes, id)
}

// Path returns the store document path of the note.
func (n Note) Path() DocPath {
	return DocPath{OwnerID: n.OwnerID, NoteID: n.ID}
}

// NormalizeTags lower-cases and trims tags, dropping empties and duplicates
// while preserving first-seen order. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.TrimPrefix(t, "#")
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
