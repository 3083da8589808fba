// Package linkgraph derives the link relation between notes.
//
// Nothing here is cached. Outbound links are recomputed from content, and
// backlinks, render classification and the graph view are recomputed from
// whatever note snapshot is passed in, so the two directions of a link can
// never disagree when evaluated over the same snapshot.
package linkgraph

import (
	"fmt"
	"sort"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/wikilink"
)

// ResolveFunc resolves a link title to a visible note without side effects.
type ResolveFunc func(title string) (model.Note, bool)

// OutboundLinks returns the ids of the notes content links to, in order of
// first occurrence and without duplicates. Titles that do not resolve are
// skipped. The result is never nil.
func OutboundLinks(content string, resolve ResolveFunc) []string {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for m := range wikilink.All(content) {
		n, ok := resolve(m.Title)
		if !ok {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}
	return ids
}

// Backlinks returns every note in notes whose outbound links contain id, in
// the order they appear in notes. The result is empty, never nil, when there
// are none or when no note in notes has that id.
func Backlinks(notes []model.Note, id string) []model.Note {
	out := make([]model.Note, 0)
	if !contains(notes, id) {
		return out
	}
	for _, n := range notes {
		if n.LinksTo(id) {
			out = append(out, n)
		}
	}
	return out
}

func contains(notes []model.Note, id string) bool {
	if id == "" {
		return false
	}
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Status classifies a link token for rendering.
type Status int

const (
	Broken Status = iota
	Resolved
)

func (s Status) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "broken"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "resolved":
		*s = Resolved
	case "broken":
		*s = Broken
	default:
		return fmt.Errorf("unknown link status %q", text)
	}
	return nil
}

// Token is a link occurrence classified against the visible set.
// TargetID is empty for broken links.
type Token struct {
	wikilink.Match
	Status   Status
	TargetID string
}

// Classify classifies every link token in content. Broken links stay in the
// text; callers render them as inert.
func Classify(content string, resolve ResolveFunc) []Token {
	var out []Token
	for m := range wikilink.All(content) {
		tok := Token{Match: m, Status: Broken}
		if n, ok := resolve(m.Title); ok {
			tok.Status = Resolved
			tok.TargetID = n.ID
		}
		out = append(out, tok)
	}
	return out
}

// Node is a graph-view vertex.
type Node struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Backlinks int    `json:"backlinks"`
}

// Edge is a graph-view edge from a note to a note it links to.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the data behind the force-directed graph view.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build derives the graph of notes. Edges whose target is not in notes
// (deleted or no longer visible) are dropped.
func Build(notes []model.Note) Graph {
	g := Graph{Nodes: make([]Node, 0, len(notes)), Edges: make([]Edge, 0)}
	index := make(map[string]int, len(notes))
	for _, n := range notes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		title := n.Title
		if title == "" {
			title = "Untitled"
		}
		index[n.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{ID: n.ID, Title: title})
	}
	for _, n := range notes {
		for _, target := range n.LinkedNotes {
			i, ok := index[target]
			if !ok {
				continue
			}
			g.Edges = append(g.Edges, Edge{Source: n.ID, Target: target})
			g.Nodes[i].Backlinks++
		}
	}
	return g
}

// AllTags returns the distinct tags across notes, sorted.
func AllTags(notes []model.Note) []string {
	set := make(map[string]struct{})
	for _, n := range notes {
		for _, t := range n.Tags {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
