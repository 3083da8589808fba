package editor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/dendrite/internal/workspace"
)

func TestComposeParse(t *testing.T) {
	tests := []struct {
		name  string
		draft workspace.Draft
	}{
		{"full", workspace.Draft{Title: "Plan: next", Content: "See [[B]]\n\n---\nrule", Tags: []string{"a", "b"}}},
		{"empty content", workspace.Draft{Title: "Empty", Tags: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Compose(tt.draft)
			require.NoError(t, err)
			got, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, tt.draft.Title, got.Title)
			assert.Equal(t, tt.draft.Content, got.Content)
			assert.ElementsMatch(t, tt.draft.Tags, got.Tags)
		})
	}
}

func TestParseWithoutHeader(t *testing.T) {
	got, err := Parse([]byte("just text"))
	require.NoError(t, err)
	assert.Equal(t, workspace.Draft{Content: "just text"}, got)

	_, err = Parse([]byte("---\ntitle: x\n"))
	assert.Error(t, err)
}

func TestEditExternal(t *testing.T) {
	ctx := context.Background()
	d := workspace.Draft{Title: "T", Content: "v1", Tags: []string{"x"}}

	got, err := EditExternal(ctx, "true", d)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Content)

	got, err = EditExternal(ctx, "sed -i s/v1/v2/", d)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, "T", got.Title)

	_, err = EditExternal(ctx, "", d)
	assert.Error(t, err)
}
