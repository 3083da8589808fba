package workspace

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/permission"
	"github.com/aidanlsb/dendrite/internal/projection"
	"github.com/aidanlsb/dendrite/internal/store"
)

// countingStore counts note writes and can fail creation.
type countingStore struct {
	store.Store
	writes     atomic.Int32
	failCreate error
}

func (c *countingStore) CreateNote(ctx context.Context, ownerID string, f store.Fields) (string, error) {
	c.writes.Add(1)
	if c.failCreate != nil {
		return "", c.failCreate
	}
	return c.Store.CreateNote(ctx, ownerID, f)
}

func (c *countingStore) UpdateNote(ctx context.Context, path model.DocPath, f store.Fields) error {
	c.writes.Add(1)
	return c.Store.UpdateNote(ctx, path, f)
}

func (c *countingStore) DeleteNote(ctx context.Context, path model.DocPath) error {
	c.writes.Add(1)
	return c.Store.DeleteNote(ctx, path)
}

type env struct {
	db     *store.SQLite
	owner  model.User
	friend model.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{db: db}
	e.owner, err = db.CreateUser(ctx, "owner@example.com", "")
	require.NoError(t, err)
	e.friend, err = db.CreateUser(ctx, "friend@example.com", "")
	require.NoError(t, err)
	return e
}

func (e *env) workspace(t *testing.T, st store.Store, user model.User) *Workspace {
	t.Helper()
	if st == nil {
		st = e.db
	}
	w := New(st, user)
	require.NoError(t, w.Load(context.Background()))
	return w
}

func mustCreate(t *testing.T, w *Workspace, title, content string, tags ...string) model.Note {
	t.Helper()
	n, err := w.Create(context.Background(), Draft{Title: title, Content: content, Tags: tags})
	require.NoError(t, err)
	return n
}

func TestLinkAndBacklink(t *testing.T) {
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)

	b := mustCreate(t, w, "B", "target")
	a := mustCreate(t, w, "A", "See [[B]]")

	assert.Equal(t, []string{b.ID}, a.LinkedNotes)
	backlinks := w.Backlinks(b.ID)
	require.Len(t, backlinks, 1)
	assert.Equal(t, a.ID, backlinks[0].ID)
}

func TestDirectSaveLeavesUnknownTitleBroken(t *testing.T) {
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)

	a := mustCreate(t, w, "A", "placeholder")
	a, err := w.Save(context.Background(), a.ID, Draft{Title: "A", Content: "See [[Nonexistent]]"})
	require.NoError(t, err)

	assert.Empty(t, a.LinkedNotes)
	assert.Len(t, w.Notes(), 1, "direct save must not create link targets")

	toks := w.Tokens(a.Content)
	require.Len(t, toks, 1)
	assert.Equal(t, linkgraph.Broken, toks[0].Status)
}

func TestViewerCannotSave(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.workspace(t, nil, e.owner)
	n := mustCreate(t, owner, "Shared", "original")
	_, err := owner.Share(ctx, n.ID, e.friend.Email, model.PermissionView)
	require.NoError(t, err)

	counting := &countingStore{Store: e.db}
	friend := e.workspace(t, counting, e.friend)
	require.Equal(t, model.PermissionView, friend.Permission(n.ID))
	assert.False(t, friend.IsOwner(n.ID))

	_, err = friend.Save(ctx, n.ID, Draft{Title: "Shared", Content: "edited"})
	assert.ErrorIs(t, err, permission.ErrDenied)
	assert.Zero(t, counting.writes.Load(), "no store write on permission error")

	stored, err := e.db.GetNote(ctx, n.Path())
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Content)
}

func TestSaveUsesCurrentShareLevel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.workspace(t, nil, e.owner)
	n := mustCreate(t, owner, "Shared", "original")
	_, err := owner.Share(ctx, n.ID, e.friend.Email, model.PermissionEdit)
	require.NoError(t, err)

	counting := &countingStore{Store: e.db}
	friend := e.workspace(t, counting, e.friend)
	_, err = friend.Save(ctx, n.ID, Draft{Title: "Shared", Content: "edit allowed"})
	require.NoError(t, err)
	require.Equal(t, int32(1), counting.writes.Load())

	_, err = owner.Share(ctx, n.ID, e.friend.Email, model.PermissionView)
	require.NoError(t, err)
	_, err = friend.Save(ctx, n.ID, Draft{Title: "Shared", Content: "after downgrade"})
	assert.ErrorIs(t, err, permission.ErrDenied)
	assert.Equal(t, int32(1), counting.writes.Load(), "no store write after downgrade")
	assert.Equal(t, model.PermissionView, friend.Permission(n.ID))

	require.NoError(t, owner.Unshare(ctx, n.ID, e.friend.ID))
	_, err = friend.Save(ctx, n.ID, Draft{Title: "Shared", Content: "after revoke"})
	assert.ErrorIs(t, err, permission.ErrDenied)
	assert.Equal(t, int32(1), counting.writes.Load(), "no store write after revoke")
	_, ok := friend.Get(n.ID)
	assert.False(t, ok, "revoked note leaves the visible set")

	stored, err := e.db.GetNote(ctx, n.Path())
	require.NoError(t, err)
	assert.Equal(t, "edit allowed", stored.Content)
}

func TestDeleteLeavesBrokenLinks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)

	b := mustCreate(t, w, "B", "target")
	a := mustCreate(t, w, "A", "[[B]]")
	require.NoError(t, w.Delete(ctx, b.ID))

	_, ok := w.Get(b.ID)
	assert.False(t, ok)

	a, ok = w.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, []string{b.ID}, a.LinkedNotes, "stale until next save")
	assert.Equal(t, linkgraph.Broken, w.Tokens(a.Content)[0].Status)
	assert.Empty(t, w.Backlinks(b.ID))

	a, err := w.Save(ctx, a.ID, DraftOf(a))
	require.NoError(t, err)
	assert.Empty(t, a.LinkedNotes)
}

func TestShareUpgradeKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)
	n := mustCreate(t, w, "N", "body")

	_, err := w.Share(ctx, n.ID, "friend@example.com", model.PermissionEdit)
	require.NoError(t, err)
	_, err = w.Share(ctx, n.ID, "friend@example.com", model.PermissionAdmin)
	require.NoError(t, err)

	shares, err := w.Shares(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, model.PermissionAdmin, shares[0].Permission)

	doc, err := e.db.GetUserDoc(ctx, e.friend.ID)
	require.NoError(t, err)
	require.Len(t, doc.SharedWithMe, 1)
	assert.Equal(t, model.PermissionAdmin, doc.SharedWithMe[0].Permission)

	friend := e.workspace(t, nil, e.friend)
	assert.Equal(t, model.PermissionAdmin, friend.Permission(n.ID))
	assert.ErrorIs(t, friend.Delete(ctx, n.ID), permission.ErrDenied, "admin share cannot delete")

	require.NoError(t, w.Unshare(ctx, n.ID, e.friend.ID))
	require.NoError(t, friend.Load(ctx))
	_, ok := friend.Get(n.ID)
	assert.False(t, ok)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)
	mustCreate(t, w, "B", "b")
	mustCreate(t, w, "C", "c")
	a := mustCreate(t, w, "A", "x")

	d := Draft{Title: "A", Content: "[[C]] [[B]] [[c]]", Tags: []string{"Go", "go"}}
	first, err := w.Save(ctx, a.ID, d)
	require.NoError(t, err)
	second, err := w.Save(ctx, a.ID, d)
	require.NoError(t, err)

	assert.Equal(t, first.LinkedNotes, second.LinkedNotes)
	assert.Len(t, first.LinkedNotes, 2)
	assert.Equal(t, []string{"go"}, second.Tags)
	assert.True(t, a.CreatedAt.Equal(second.CreatedAt.Time))
}

func TestInsertLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)
	foo := mustCreate(t, w, "Foo", "foo")
	a := mustCreate(t, w, "A", "a")

	text := "See [[Fo"
	ins, err := w.InsertLink(ctx, text, len(text), "Foo")
	require.NoError(t, err)
	assert.Equal(t, "See [[Foo]]", ins.Text)
	assert.Equal(t, len(ins.Text), ins.Cursor)
	assert.Equal(t, foo.ID, ins.TargetID)
	assert.Len(t, w.Notes(), 2, "no duplicate note")

	a, err = w.Save(ctx, a.ID, Draft{Title: "A", Content: ins.Text})
	require.NoError(t, err)
	assert.Equal(t, []string{foo.ID}, a.LinkedNotes)
}

func TestInsertLinkCreatesMissingTitleOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)

	ins, err := w.InsertLink(ctx, "Idea: ", 6, "New Idea")
	require.NoError(t, err)
	assert.Equal(t, "Idea: [[New Idea]]", ins.Text)

	created, ok := w.Get(ins.TargetID)
	require.True(t, ok)
	assert.Equal(t, "New Idea", created.Title)
	assert.Empty(t, created.Content)
	assert.Empty(t, created.Tags)
	assert.True(t, w.IsOwner(created.ID))

	again, err := w.InsertLink(ctx, "", 0, "new idea")
	require.NoError(t, err)
	assert.Equal(t, ins.TargetID, again.TargetID)
	assert.Len(t, w.Notes(), 1)
}

func TestInsertLinkCreationFailureKeepsText(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	boom := errors.New("store offline")
	w := e.workspace(t, &countingStore{Store: e.db, failCreate: boom}, e.owner)

	ins, err := w.InsertLink(ctx, "x ", 2, "Ghost")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "x [[Ghost]]", ins.Text)
	assert.Empty(t, ins.TargetID)
	assert.Equal(t, linkgraph.Broken, w.Tokens(ins.Text)[0].Status)
	assert.Empty(t, w.Notes())
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	counting := &countingStore{Store: e.db}
	w := e.workspace(t, counting, e.owner)

	_, err := w.Create(ctx, Draft{Title: "  ", Content: "x"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = w.Create(ctx, Draft{Title: "T", Content: ""})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)
	assert.Zero(t, counting.writes.Load())

	_, err = w.Save(ctx, "missing", Draft{Title: "T", Content: "c"})
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)
	mustCreate(t, w, "B", "b")
	src := mustCreate(t, w, "A", "see [[B]]", "x")

	dup, err := w.Duplicate(ctx, src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "A (copy)", dup.Title)
	assert.Equal(t, src.Content, dup.Content)
	assert.Equal(t, src.Tags, dup.Tags)
	assert.Equal(t, src.LinkedNotes, dup.LinkedNotes)
}

func TestVisibleSetIncludesShared(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.workspace(t, nil, e.owner)
	shared := mustCreate(t, owner, "Shared Topic", "body", "team")
	_, err := owner.Share(ctx, shared.ID, e.friend.Email, model.PermissionEdit)
	require.NoError(t, err)

	friend := e.workspace(t, nil, e.friend)
	mine := mustCreate(t, friend, "Mine", "links to [[shared topic]]", "personal")

	assert.Equal(t, []string{shared.ID}, mine.LinkedNotes)
	assert.Equal(t, []string{"personal", "team"}, friend.AllTags())
	bl := friend.Backlinks(shared.ID)
	require.Len(t, bl, 1)
	assert.Equal(t, mine.ID, bl[0].ID)

	path, ok := friend.Path(shared.ID)
	require.True(t, ok)
	assert.Equal(t, e.owner.ID, path.OwnerID)

	saved, err := friend.Save(ctx, shared.ID, Draft{Title: "Shared Topic", Content: "edited by friend"})
	require.NoError(t, err)
	assert.Equal(t, e.owner.ID, saved.OwnerID)

	g := friend.Graph()
	assert.Len(t, g.Nodes, 2)
	assert.Equal(t, []linkgraph.Edge{{Source: mine.ID, Target: shared.ID}}, g.Edges)

	got := friend.Project(projection.Options{Sort: projection.SortTitleAsc})
	require.Len(t, got, 2)
	assert.Equal(t, "Mine", got[0].Title)
}

func TestLoadSkipsMissingShared(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	err := e.db.UpdateUserDoc(ctx, e.friend.ID, func(doc *model.UserDoc) error {
		doc.SharedWithMe = append(doc.SharedWithMe, model.SharedRef{
			OwnerID: e.owner.ID, NoteID: "gone", Permission: model.PermissionView, SharedAt: model.Now(),
		})
		return nil
	})
	require.NoError(t, err)

	w := e.workspace(t, nil, e.friend)
	assert.Empty(t, w.Notes())
	missing := w.MissingShared()
	require.Len(t, missing, 1)
	assert.Equal(t, "gone", missing[0].NoteID)
}

func TestRemoteApplication(t *testing.T) {
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)
	n := mustCreate(t, w, "A", "a", "t")

	remote := n
	remote.Title = "A from elsewhere"
	remote.Tags = nil
	assert.True(t, w.ApplyRemote(remote))
	got, _ := w.Get(n.ID)
	assert.Equal(t, "A from elsewhere", got.Title)
	assert.Empty(t, got.Tags, "whole document replacement")

	assert.False(t, w.ApplyRemote(model.Note{ID: "x", OwnerID: "stranger"}))
	assert.True(t, w.RemoveRemote(n.ID))
	assert.False(t, w.RemoveRemote(n.ID))
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	w := e.workspace(t, nil, e.owner)
	n := mustCreate(t, w, "A", "a")

	require.NoError(t, e.db.UpdateNote(ctx, n.Path(), store.Fields{Title: "A2", Content: "changed"}))
	got, err := w.Reload(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Title)

	require.NoError(t, e.db.DeleteNote(ctx, n.Path()))
	_, err = w.Reload(ctx, n.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)
	_, ok := w.Get(n.ID)
	assert.False(t, ok)
}
