// Package resolver handles link title resolution.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/singleflight"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/wikilink"
)

// ErrEmptyTitle is returned when a blank title is resolved for creation.
var ErrEmptyTitle = errors.New("link title is empty")

// Catalog provides the visible note set that titles are resolved against.
type Catalog interface {
	Notes() []model.Note
}

// Creator creates a placeholder note for a title that does not resolve.
// The created note must be visible through the Catalog once it returns.
type Creator interface {
	CreatePlaceholder(ctx context.Context, title string) (model.Note, error)
}

// Resolver maps link titles to notes.
type Resolver struct {
	catalog Catalog
	creator Creator
	flights singleflight.Group
}

// New creates a Resolver. creator may be nil, in which case ResolveOrCreate
// only resolves.
func New(catalog Catalog, creator Creator) *Resolver {
	return &Resolver{catalog: catalog, creator: creator}
}

// ResolveIn resolves title against notes: case-insensitive exact match on the
// trimmed title, first match wins when several notes share a title.
func ResolveIn(notes []model.Note, title string) (model.Note, bool) {
	key := wikilink.Key(title)
	if key == "" {
		return model.Note{}, false
	}
	for _, n := range notes {
		if wikilink.Key(n.Title) == key {
			return n, true
		}
	}
	return model.Note{}, false
}

// Resolve resolves title against the current visible set. It never creates.
func (r *Resolver) Resolve(title string) (model.Note, bool) {
	return ResolveIn(r.catalog.Notes(), title)
}

// ResolveOrCreate returns the id of the note titled title, creating an empty
// note with exactly that title when none exists.
//
// Concurrent calls for the same title share a single creation, and the visible
// set is checked again inside that creation, so a title never yields two notes.
func (r *Resolver) ResolveOrCreate(ctx context.Context, title string) (string, error) {
	key := wikilink.Key(title)
	if key == "" {
		return "", ErrEmptyTitle
	}
	if n, ok := r.Resolve(title); ok {
		return n.ID, nil
	}
	if r.creator == nil {
		return "", fmt.Errorf("no note titled %q", title)
	}

	// The creation is shared by every caller in the flight, so it must not
	// fail because the caller that started it gave up.
	createCtx := context.WithoutCancel(ctx)
	ch := r.flights.DoChan(key, func() (any, error) {
		if n, ok := r.Resolve(title); ok {
			return n.ID, nil
		}
		created, err := r.creator.CreatePlaceholder(createCtx, title)
		if err != nil {
			return "", fmt.Errorf("failed to create note %q: %w", title, err)
		}
		return created.ID, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Suggestion is an autocomplete candidate.
type Suggestion struct {
	NoteID         string `json:"noteId"`
	Title          string `json:"title"`
	MatchedIndexes []int  `json:"matchedIndexes,omitempty"`
}

// Suggest ranks visible note titles against a partially typed query.
// An empty query lists titles alphabetically. The result is never nil.
func (r *Resolver) Suggest(query string, limit int) []Suggestion {
	notes := r.catalog.Notes()
	out := []Suggestion{}

	if query == "" {
		sorted := make([]model.Note, len(notes))
		copy(sorted, notes)
		sort.SliceStable(sorted, func(i, j int) bool {
			return wikilink.Key(sorted[i].Title) < wikilink.Key(sorted[j].Title)
		})
		for _, n := range sorted {
			out = append(out, Suggestion{NoteID: n.ID, Title: n.Title})
		}
	} else {
		titles := make([]string, len(notes))
		for i, n := range notes {
			titles[i] = n.Title
		}
		for _, m := range fuzzy.Find(query, titles) {
			n := notes[m.Index]
			out = append(out, Suggestion{NoteID: n.ID, Title: n.Title, MatchedIndexes: m.MatchedIndexes})
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Collision is a title shared by more than one visible note. Links to such a
// title resolve to the first note in visible-set order.
type Collision struct {
	Title   string   `json:"title"`
	NoteIDs []string `json:"noteIds"`
}

// Collisions lists titles that resolve ambiguously.
func (r *Resolver) Collisions() []Collision {
	byKey := make(map[string]*Collision)
	var order []string
	for _, n := range r.catalog.Notes() {
		k := wikilink.Key(n.Title)
		c, ok := byKey[k]
		if !ok {
			c = &Collision{Title: n.Title}
			byKey[k] = c
			order = append(order, k)
		}
		c.NoteIDs = append(c.NoteIDs, n.ID)
	}

	var out []Collision
	for _, k := range order {
		if c := byKey[k]; len(c.NoteIDs) > 1 {
			out = append(out, *c)
		}
	}
	return out
}
