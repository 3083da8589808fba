package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/dendrite/internal/model"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *SQLite, email string) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), email, "hash")
	require.NoError(t, err)
	return u
}

type recorder struct {
	snaps chan Snapshot
	errs  chan error
}

func newRecorder() *recorder {
	return &recorder{snaps: make(chan Snapshot, 32), errs: make(chan error, 4)}
}

func (r *recorder) onUpdate(s Snapshot) { r.snaps <- s }
func (r *recorder) onError(err error)   { r.errs <- err }

func (r *recorder) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-r.snaps:
		return s
	case err := <-r.errs:
		t.Fatalf("unexpected subscription error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case s := <-r.snaps:
		t.Fatalf("unexpected snapshot: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	owner := mustUser(t, s, "owner@example.com")

	id, err := s.CreateNote(ctx, owner.ID, Fields{Title: "First", Content: "hello", Tags: []string{"go"}})
	require.NoError(t, err)
	second, err := s.CreateNote(ctx, owner.ID, Fields{Title: "Second"})
	require.NoError(t, err)

	path := model.DocPath{OwnerID: owner.ID, NoteID: id}

	t.Run("get", func(t *testing.T) {
		n, err := s.GetNote(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "First", n.Title)
		assert.Equal(t, []string{"go"}, n.Tags)
		assert.Equal(t, []string{}, n.LinkedNotes)
		assert.False(t, n.CreatedAt.IsZero())
		assert.Equal(t, int64(1), n.Version)
	})

	t.Run("list in creation order", func(t *testing.T) {
		notes, err := s.ListNotes(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, id, notes[0].ID)
		assert.Equal(t, second, notes[1].ID)

		none, err := s.ListNotes(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("update replaces fields and keeps createdAt", func(t *testing.T) {
		before, err := s.GetNote(ctx, path)
		require.NoError(t, err)

		err = s.UpdateNote(ctx, path, Fields{Title: "First!", Content: "[[Second]]", LinkedNotes: []string{second}})
		require.NoError(t, err)

		after, err := s.GetNote(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "First!", after.Title)
		assert.Equal(t, []string{}, after.Tags)
		assert.Equal(t, []string{second}, after.LinkedNotes)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt.Time))
		assert.False(t, after.UpdatedAt.Before(before.UpdatedAt.Time))
		assert.Equal(t, before.Version+1, after.Version)
	})

	t.Run("wrong owner is not found", func(t *testing.T) {
		_, err := s.GetNote(ctx, model.DocPath{OwnerID: "other", NoteID: id})
		assert.ErrorIs(t, err, ErrNotFound)
		err = s.UpdateNote(ctx, model.DocPath{OwnerID: "other", NoteID: id}, Fields{Title: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		p2 := model.DocPath{OwnerID: owner.ID, NoteID: second}
		require.NoError(t, s.DeleteNote(ctx, p2))
		_, err := s.GetNote(ctx, p2)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteNote(ctx, p2), ErrNotFound)
	})
}

func TestShares(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	owner := mustUser(t, s, "owner@example.com")
	grantee := mustUser(t, s, "friend@example.com")

	id, err := s.CreateNote(ctx, owner.ID, Fields{Title: "Shared"})
	require.NoError(t, err)

	share := model.Share{
		OwnerID: owner.ID, NoteID: id, GranteeID: grantee.ID,
		Email: "Friend@Example.com", Permission: model.PermissionEdit, SharedAt: model.Now(),
	}

	t.Run("upgrade is an upsert on both sides", func(t *testing.T) {
		require.NoError(t, s.ApplyShare(ctx, share))
		share.Permission = model.PermissionAdmin
		require.NoError(t, s.ApplyShare(ctx, share))

		shares, err := s.ListShares(ctx, owner.ID, id)
		require.NoError(t, err)
		require.Len(t, shares, 1)
		assert.Equal(t, model.PermissionAdmin, shares[0].Permission)
		assert.Equal(t, "friend@example.com", shares[0].Email)

		doc, err := s.GetUserDoc(ctx, grantee.ID)
		require.NoError(t, err)
		require.Len(t, doc.SharedWithMe, 1)
		assert.Equal(t, model.PermissionAdmin, doc.SharedWithMe[0].Permission)
		assert.Equal(t, id, doc.SharedWithMe[0].NoteID)
	})

	t.Run("grantee must exist", func(t *testing.T) {
		bad := share
		bad.GranteeID = "ghost"
		assert.ErrorIs(t, s.ApplyShare(ctx, bad), ErrUserNotFound)
	})

	t.Run("note must exist", func(t *testing.T) {
		bad := share
		bad.NoteID = "missing"
		assert.ErrorIs(t, s.PutShare(ctx, bad), ErrNotFound)
	})

	t.Run("remove clears both sides", func(t *testing.T) {
		require.NoError(t, s.RemoveShare(ctx, owner.ID, id, grantee.ID))

		shares, err := s.ListShares(ctx, owner.ID, id)
		require.NoError(t, err)
		assert.Empty(t, shares)

		doc, err := s.GetUserDoc(ctx, grantee.ID)
		require.NoError(t, err)
		assert.Empty(t, doc.SharedWithMe)

		assert.ErrorIs(t, s.RemoveShare(ctx, owner.ID, id, grantee.ID), ErrNotFound)
	})

	t.Run("delete note drops its shares", func(t *testing.T) {
		require.NoError(t, s.ApplyShare(ctx, share))
		require.NoError(t, s.DeleteNote(ctx, model.DocPath{OwnerID: owner.ID, NoteID: id}))

		doc, err := s.GetUserDoc(ctx, grantee.ID)
		require.NoError(t, err)
		assert.Empty(t, doc.SharedWithMe)
	})
}

func TestUserDocs(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	u := mustUser(t, s, "me@example.com")

	ref := model.SharedRef{OwnerID: "o", NoteID: "n", Permission: model.PermissionView, SharedAt: model.Now()}
	err := s.UpdateUserDoc(ctx, u.ID, func(doc *model.UserDoc) error {
		doc.SharedWithMe = append(doc.SharedWithMe, ref)
		return nil
	})
	require.NoError(t, err)

	doc, err := s.GetUserDoc(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", doc.Email)
	require.Len(t, doc.SharedWithMe, 1)
	assert.Equal(t, "n", doc.SharedWithMe[0].NoteID)

	boom := errors.New("boom")
	err = s.UpdateUserDoc(ctx, u.ID, func(doc *model.UserDoc) error {
		doc.SharedWithMe = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)
	doc, err = s.GetUserDoc(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, doc.SharedWithMe, 1, "failed update must roll back")

	doc.SharedWithMe = nil
	require.NoError(t, s.SetUserDoc(ctx, doc))
	doc, err = s.GetUserDoc(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, doc.SharedWithMe)

	_, err = s.GetUserDoc(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	u := mustUser(t, s, " Me@Example.com ")
	assert.Equal(t, "me@example.com", u.Email)

	_, err := s.CreateUser(ctx, "ME@example.com", "other")
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := s.FindUserByEmail(ctx, "ME@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, hash, err := s.Credentials(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", hash)

	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	owner := mustUser(t, s, "owner@example.com")

	id, err := s.CreateNote(ctx, owner.ID, Fields{Title: "Live"})
	require.NoError(t, err)
	path := model.DocPath{OwnerID: owner.ID, NoteID: id}

	rec := newRecorder()
	unsubscribe := s.Subscribe(path, rec.onUpdate, rec.onError)

	initial := rec.next(t)
	require.True(t, initial.Exists)
	assert.Equal(t, "Live", initial.Note.Title)

	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, s.UpdateNote(ctx, path, Fields{Title: title}))
	}
	for _, want := range []string{"one", "two", "three"} {
		got := rec.next(t)
		assert.Equal(t, want, got.Note.Title)
	}

	require.NoError(t, s.DeleteNote(ctx, path))
	gone := rec.next(t)
	assert.False(t, gone.Exists)
	assert.Equal(t, path, gone.Path)

	unsubscribe()
	unsubscribe()
	_, err = s.CreateNote(ctx, owner.ID, Fields{Title: "Other"})
	require.NoError(t, err)
	rec.quiet(t)
}

func TestSubscribeMissingNote(t *testing.T) {
	s := openTest(t)
	rec := newRecorder()
	unsubscribe := s.Subscribe(model.DocPath{OwnerID: "o", NoteID: "missing"}, rec.onUpdate, rec.onError)
	defer unsubscribe()

	snap := rec.next(t)
	assert.False(t, snap.Exists)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	owner := mustUser(t, s, "owner@example.com")
	id, err := s.CreateNote(ctx, owner.ID, Fields{Title: "A"})
	require.NoError(t, err)
	path := model.DocPath{OwnerID: owner.ID, NoteID: id}

	rec := newRecorder()
	unsubscribe := s.Subscribe(path, rec.onUpdate, rec.onError)
	rec.next(t)
	unsubscribe()

	require.NoError(t, s.UpdateNote(ctx, path, Fields{Title: "B"}))
	rec.quiet(t)
}

func TestRefreshPicksUpOtherProcesses(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "dendrite.db")

	reader, err := Open(dbPath)
	require.NoError(t, err)
	defer reader.Close()
	writer, err := Open(dbPath)
	require.NoError(t, err)
	defer writer.Close()

	owner, err := writer.CreateUser(ctx, "owner@example.com", "")
	require.NoError(t, err)
	id, err := writer.CreateNote(ctx, owner.ID, Fields{Title: "Before"})
	require.NoError(t, err)
	path := model.DocPath{OwnerID: owner.ID, NoteID: id}

	rec := newRecorder()
	unsubscribe := reader.Subscribe(path, rec.onUpdate, rec.onError)
	defer unsubscribe()
	assert.Equal(t, "Before", rec.next(t).Note.Title)

	require.NoError(t, reader.Refresh(ctx))
	rec.quiet(t)

	require.NoError(t, writer.UpdateNote(ctx, path, Fields{Title: "After"}))
	require.NoError(t, reader.Refresh(ctx))
	assert.Equal(t, "After", rec.next(t).Note.Title)

	require.NoError(t, writer.DeleteNote(ctx, path))
	require.NoError(t, reader.Refresh(ctx))
	assert.False(t, rec.next(t).Exists)
}
