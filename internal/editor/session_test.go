package editor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/syncer"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

const wait = 2 * time.Second

type countingStore struct {
	store.Store
	updates atomic.Int32
}

func (c *countingStore) UpdateNote(ctx context.Context, path model.DocPath, f store.Fields) error {
	c.updates.Add(1)
	return c.Store.UpdateNote(ctx, path, f)
}

// blockingStore holds the first note update until release is closed.
type blockingStore struct {
	store.Store
	updates atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) UpdateNote(ctx context.Context, path model.DocPath, f store.Fields) error {
	if b.updates.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return b.Store.UpdateNote(ctx, path, f)
}

type fixture struct {
	db   *store.SQLite
	st   *countingStore
	user model.User
	ws   *workspace.Workspace
	note model.Note
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user, err := db.CreateUser(ctx, "me@example.com", "")
	require.NoError(t, err)
	st := &countingStore{Store: db}
	ws := workspace.New(st, user)
	require.NoError(t, ws.Load(ctx))
	n, err := ws.Create(ctx, workspace.Draft{Title: "Draft", Content: "v1", Tags: []string{"x"}})
	require.NoError(t, err)
	return &fixture{db: db, st: st, user: user, ws: ws, note: n}
}

func TestDraftAndDirty(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.ws, f.note.ID)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Dirty())
	s.SetTags([]string{"X", "x"})
	assert.False(t, s.Dirty(), "tags compare normalized")

	s.SetContent("v2")
	assert.True(t, s.Dirty())
	s.SetContent("v1")
	assert.False(t, s.Dirty())

	s.SetTitle("Renamed")
	d := s.Draft()
	assert.Equal(t, "Renamed", d.Title)
	assert.True(t, s.Dirty())

	_, err = Open(f.ws, "missing")
	assert.ErrorIs(t, err, workspace.ErrNoteNotFound)
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s, err := Open(f.ws, f.note.ID)
	require.NoError(t, err)
	defer s.Close()

	s.SetContent("")
	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, workspace.ErrValidation)
	assert.True(t, s.Dirty())

	s.SetContent("now with [[Draft]]")
	n, err := s.Save(ctx)
	require.NoError(t, err)
	assert.False(t, s.Dirty())
	assert.Equal(t, []string{f.note.ID}, n.LinkedNotes)
	assert.False(t, s.LastSaved().IsZero())

	stored, err := f.db.GetNote(ctx, n.Path())
	require.NoError(t, err)
	assert.Equal(t, "now with [[Draft]]", stored.Content)
}

func TestSuggestionsAndAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ws.Create(ctx, workspace.Draft{Title: "Gardening", Content: "g"})
	require.NoError(t, err)

	s, err := Open(f.ws, f.note.ID)
	require.NoError(t, err)
	defer s.Close()

	s.SetContent("plan [[gar")
	assert.Nil(t, s.Suggestions(4, 5), "cursor outside a link query")
	sugg := s.Suggestions(len("plan [[gar"), 5)
	require.NotEmpty(t, sugg)
	assert.Equal(t, "Gardening", sugg[0].Title)

	ins, err := s.AcceptSuggestion(ctx, len("plan [[gar"), "Gardening")
	require.NoError(t, err)
	assert.Equal(t, "plan [[Gardening]]", s.Draft().Content)
	assert.Equal(t, sugg[0].NoteID, ins.TargetID)
	assert.Len(t, f.ws.Notes(), 2)

	_, err = s.AcceptSuggestion(ctx, len(s.Draft().Content), "Compost")
	require.NoError(t, err)
	assert.Equal(t, "plan [[Gardening]][[Compost]]", s.Draft().Content)
	assert.Len(t, f.ws.Notes(), 3)
}

func TestAutosave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s, err := Open(f.ws, f.note.ID, WithAutosaveInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	s.StartAutosave(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.st.updates.Load(), "clean drafts are not saved")

	s.SetContent("typed")
	require.Eventually(t, func() bool { return !s.Dirty() }, wait, 5*time.Millisecond)
	got, _ := f.ws.Get(f.note.ID)
	assert.Equal(t, "typed", got.Content)

	s.SetContent("")
	time.Sleep(50 * time.Millisecond)
	assert.True(t, s.Dirty(), "failed auto-save keeps the draft dirty")

	s.Close()
	before := f.st.updates.Load()
	s.SetContent("after close")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, f.st.updates.Load())
}

func TestAutosaveSkipsWhileSaveInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bs := &blockingStore{Store: f.db, entered: make(chan struct{}), release: make(chan struct{})}
	ws := workspace.New(bs, f.user)
	require.NoError(t, ws.Load(ctx))

	s, err := Open(ws, f.note.ID, WithAutosaveInterval(5*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	s.SetContent("explicit")
	saved := make(chan error, 1)
	go func() {
		_, err := s.Save(ctx)
		saved <- err
	}()
	select {
	case <-bs.entered:
	case <-time.After(wait):
		t.Fatal("explicit save never reached the store")
	}

	s.SetContent("typed during save")
	s.StartAutosave(ctx)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), bs.updates.Load(), "auto-save ticks must not write while a save is in flight")

	close(bs.release)
	require.NoError(t, <-saved)
	require.Eventually(t, func() bool { return !s.Dirty() }, wait, 5*time.Millisecond)
	assert.Equal(t, int32(2), bs.updates.Load())

	stored, err := f.db.GetNote(ctx, f.note.Path())
	require.NoError(t, err)
	assert.Equal(t, "typed during save", stored.Content)
}

func TestAutosaveDisabled(t *testing.T) {
	f := newFixture(t)
	s, err := Open(f.ws, f.note.ID, WithAutosaveInterval(0))
	require.NoError(t, err)
	s.StartAutosave(context.Background())
	s.SetContent("changed")
	time.Sleep(30 * time.Millisecond)
	assert.True(t, s.Dirty())
	s.Close()
	s.Close()
}

func TestSyncAdoptsRemoteWhenClean(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var deleted atomic.Bool
	var lastStatus atomic.Value
	s, err := Open(f.ws, f.note.ID,
		WithSync(f.db, syncer.OnStatus(func(st syncer.Status) { lastStatus.Store(st) })),
		OnRemote(func(_ model.Note, gone bool) {
			if gone {
				deleted.Store(true)
			}
		}),
	)
	require.NoError(t, err)
	defer s.Close()
	require.Eventually(t, func() bool { return s.SyncStatus() == syncer.Synced }, wait, 5*time.Millisecond)
	require.Eventually(t, func() bool { return lastStatus.Load() == syncer.Synced }, wait, 5*time.Millisecond)

	require.NoError(t, f.db.UpdateNote(ctx, f.note.Path(), store.Fields{Title: "Draft", Content: "remote"}))
	require.Eventually(t, func() bool { return s.Draft().Content == "remote" }, wait, 5*time.Millisecond)
	assert.False(t, s.Dirty())

	s.SetContent("local")
	require.NoError(t, f.db.UpdateNote(ctx, f.note.Path(), store.Fields{Title: "Draft", Content: "remote 2"}))
	require.Eventually(t, func() bool {
		got, _ := f.ws.Get(f.note.ID)
		return got.Content == "remote 2"
	}, wait, 5*time.Millisecond)
	assert.Equal(t, "local", s.Draft().Content, "local edits survive a push")
	assert.True(t, s.Dirty())

	require.NoError(t, f.db.DeleteNote(ctx, f.note.Path()))
	require.Eventually(t, deleted.Load, wait, 5*time.Millisecond)
	assert.True(t, s.Deleted())

	s.Close()
	assert.Equal(t, syncer.Idle, s.SyncStatus())
}
