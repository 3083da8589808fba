package linkgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/resolver"
)

func resolveIn(notes []model.Note) ResolveFunc {
	return func(title string) (model.Note, bool) {
		return resolver.ResolveIn(notes, title)
	}
}

func TestOutboundLinks(t *testing.T) {
	notes := []model.Note{
		{ID: "a", Title: "Alpha"},
		{ID: "b", Title: "Beta"},
	}
	resolve := resolveIn(notes)

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "no links", content: "no links here", want: []string{}},
		{name: "first occurrence order", content: "[[Beta]] then [[Alpha]]", want: []string{"b", "a"}},
		{name: "case-insensitive dedupe", content: "[[alpha]] [[ALPHA]] [[ Alpha ]]", want: []string{"a"}},
		{name: "unresolved skipped", content: "[[Gamma]] [[Beta]]", want: []string{"b"}},
		{name: "unterminated", content: "[[Alpha", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutboundLinks(tt.content, resolve)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBacklinksDuality(t *testing.T) {
	notes := []model.Note{
		{ID: "a", Title: "A", Content: "See [[B]] and [[C]]"},
		{ID: "b", Title: "B", Content: "Back to [[A]]"},
		{ID: "c", Title: "C", Content: "[[B]] [[b]]"},
		{ID: "d", Title: "D", Content: "[[Missing]]"},
	}
	resolve := resolveIn(notes)
	for i := range notes {
		notes[i].LinkedNotes = OutboundLinks(notes[i].Content, resolve)
	}

	for _, a := range notes {
		for _, b := range notes {
			inBacklinks := false
			for _, bl := range Backlinks(notes, b.ID) {
				if bl.ID == a.ID {
					inBacklinks = true
				}
			}
			assert.Equal(t, a.LinksTo(b.ID), inBacklinks, "%s -> %s", a.ID, b.ID)
		}
	}

	got := Backlinks(notes, "b")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestBacklinksEmpty(t *testing.T) {
	notes := []model.Note{{ID: "a", Title: "A"}}
	for _, id := range []string{"a", "missing", ""} {
		got := Backlinks(notes, id)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestOutboundLinkToExistingNote(t *testing.T) {
	notes := []model.Note{
		{ID: "a", Title: "A", Content: "See [[B]]"},
		{ID: "b", Title: "B"},
	}
	notes[0].LinkedNotes = OutboundLinks(notes[0].Content, resolveIn(notes))

	assert.Equal(t, []string{"b"}, notes[0].LinkedNotes)
	bl := Backlinks(notes, "b")
	require.Len(t, bl, 1)
	assert.Equal(t, "a", bl[0].ID)
}

func TestUnknownTitleIsBroken(t *testing.T) {
	notes := []model.Note{{ID: "a", Title: "A", Content: "See [[Nonexistent]]"}}
	resolve := resolveIn(notes)

	assert.Empty(t, OutboundLinks(notes[0].Content, resolve))

	toks := Classify(notes[0].Content, resolve)
	require.Len(t, toks, 1)
	assert.Equal(t, Broken, toks[0].Status)
	assert.Equal(t, "Nonexistent", toks[0].Title)
	assert.Empty(t, toks[0].TargetID)
}

func TestDeletedTargetBecomesBroken(t *testing.T) {
	notes := []model.Note{
		{ID: "a", Title: "A", Content: "[[B]]"},
		{ID: "b", Title: "B"},
	}
	notes[0].LinkedNotes = OutboundLinks(notes[0].Content, resolveIn(notes))
	require.Equal(t, []string{"b"}, notes[0].LinkedNotes)

	remaining := notes[:1]

	// Stored links keep the stale id until the next save.
	assert.Equal(t, []string{"b"}, remaining[0].LinkedNotes)

	toks := Classify(remaining[0].Content, resolveIn(remaining))
	require.Len(t, toks, 1)
	assert.Equal(t, Broken, toks[0].Status)

	assert.Empty(t, OutboundLinks(remaining[0].Content, resolveIn(remaining)))
	assert.Empty(t, Backlinks(remaining, "b"))

	g := Build(remaining)
	assert.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Edges)
}

func TestClassify(t *testing.T) {
	notes := []model.Note{{ID: "x", Title: "Foo"}}
	toks := Classify("[[foo]] and [[bar]]", resolveIn(notes))
	require.Len(t, toks, 2)

	assert.Equal(t, Resolved, toks[0].Status)
	assert.Equal(t, "x", toks[0].TargetID)
	assert.Equal(t, 0, toks[0].Start)
	assert.Equal(t, "[[foo]]", toks[0].Literal)

	assert.Equal(t, Broken, toks[1].Status)
	assert.Equal(t, "broken", toks[1].Status.String())
}

func TestBuild(t *testing.T) {
	notes := []model.Note{
		{ID: "a", Title: "A", LinkedNotes: []string{"b", "gone"}},
		{ID: "b", Title: "", LinkedNotes: []string{"a"}},
		{ID: "c", Title: "C", LinkedNotes: []string{"b"}},
	}
	g := Build(notes)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "Untitled", g.Nodes[1].Title)
	assert.Equal(t, []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
		{Source: "c", Target: "b"},
	}, g.Edges)
	assert.Equal(t, 1, g.Nodes[0].Backlinks)
	assert.Equal(t, 2, g.Nodes[1].Backlinks)
	assert.Equal(t, 0, g.Nodes[2].Backlinks)
}

func TestAllTags(t *testing.T) {
	notes := []model.Note{
		{Tags: []string{"go", "ideas"}},
		{Tags: []string{"ideas", "art"}},
		{},
	}
	assert.Equal(t, []string{"art", "go", "ideas"}, AllTags(notes))
	assert.Equal(t, []string{}, AllTags(nil))
}
