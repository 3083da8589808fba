// Package workspace owns the in-memory visible note set of one user: their
// own notes plus the notes shared with them.
//
// The Workspace is the only writer of that set. Every derived view
// (backlinks, tags, projections, the graph) is recomputed from a snapshot of
// it on each call. Mutations are validated and permission-checked before any
// store call, and the set is only changed after the store accepted the write.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/aidanlsb/dendrite/internal/linkgraph"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/permission"
	"github.com/aidanlsb/dendrite/internal/projection"
	"github.com/aidanlsb/dendrite/internal/resolver"
	"github.com/aidanlsb/dendrite/internal/sharing"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/wikilink"
)

// ErrValidation is wrapped by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ErrNoteNotFound is returned for ids outside the visible set.
var ErrNoteNotFound = errors.New("note not found")

// ValidationError rejects a draft before it reaches the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Draft is the user-editable part of a note.
type Draft struct {
	Title   string
	Content string
	Tags    []string
}

// DraftOf returns the editable fields of n.
func DraftOf(n model.Note) Draft {
	return Draft{Title: n.Title, Content: n.Content, Tags: slices.Clone(n.Tags)}
}

// Validate checks that title and content are filled in.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(d.Content) == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	return nil
}

// Workspace is the visible note set of one user.
type Workspace struct {
	store    store.Store
	user     model.User
	logger   *slog.Logger
	sharing  *sharing.Service
	resolver *resolver.Resolver

	mu      sync.RWMutex
	notes   []model.Note
	owned   map[string]bool
	shared  map[string]model.SharedRef
	missing []model.SharedRef
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the workspace logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates an empty Workspace for user. Call Load to fill it.
func New(st store.Store, user model.User, opts ...Option) *Workspace {
	w := &Workspace{
		store:  st,
		user:   user,
		logger: slog.Default(),
		owned:  make(map[string]bool),
		shared: make(map[string]model.SharedRef),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sharing = sharing.New(st, w.logger)
	w.resolver = resolver.New(w, w)
	return w
}

// User returns the user the workspace belongs to.
func (w *Workspace) User() model.User {
	return w.user
}

// Store returns the backing store.
func (w *Workspace) Store() store.Store {
	return w.store
}

// Load replaces the visible set with the user's notes followed by the notes
// shared with them. Shared entries whose note no longer exists are skipped
// and reported by MissingShared. On error the current set is kept.
func (w *Workspace) Load(ctx context.Context) error {
	owned, err := w.store.ListNotes(ctx, w.user.ID)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}

	doc, err := w.store.GetUserDoc(ctx, w.user.ID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		w.logger.Warn("user document missing, no shared notes", "user", w.user.ID)
		doc = model.UserDoc{ID: w.user.ID}
	case err != nil:
		return fmt.Errorf("failed to load shared notes: %w", err)
	}

	notes := make([]model.Note, 0, len(owned)+len(doc.SharedWithMe))
	ownedSet := make(map[string]bool, len(owned))
	for _, n := range owned {
		notes = append(notes, n)
		ownedSet[n.ID] = true
	}

	sharedSet := make(map[string]model.SharedRef, len(doc.SharedWithMe))
	var missing []model.SharedRef
	for _, ref := range doc.SharedWithMe {
		if ownedSet[ref.NoteID] {
			continue
		}
		n, err := w.store.GetNote(ctx, ref.Path())
		if errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("shared note no longer exists", "owner", ref.OwnerID, "note", ref.NoteID)
			missing = append(missing, ref)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load shared note %s: %w", ref.Path(), err)
		}
		notes = append(notes, n)
		sharedSet[n.ID] = ref
	}

	w.mu.Lock()
	w.notes = notes
	w.owned = ownedSet
	w.shared = sharedSet
	w.missing = missing
	w.mu.Unlock()

	w.logger.Debug("workspace loaded", "owned", len(ownedSet), "shared", len(sharedSet))
	return nil
}

// MissingShared lists "shared with me" entries skipped by the last Load
// because the note is gone.
func (w *Workspace) MissingShared() []model.SharedRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.missing)
}

// --- queries ---

// Notes returns a snapshot of the visible set in visible-set order.
func (w *Workspace) Notes() []model.Note {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.Note, len(w.notes))
	for i, n := range w.notes {
		out[i] = n.Clone()
	}
	return out
}

// Get returns the visible note with id.
func (w *Workspace) Get(id string) (model.Note, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i := w.indexOf(id); i >= 0 {
		return w.notes[i].Clone(), true
	}
	return model.Note{}, false
}

func (w *Workspace) indexOf(id string) int {
	for i, n := range w.notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// GetNoteByTitle resolves title against the visible set without side effects.
func (w *Workspace) GetNoteByTitle(title string) (model.Note, bool) {
	return w.resolver.Resolve(title)
}

// Resolver returns the title resolver bound to this workspace.
func (w *Workspace) Resolver() *resolver.Resolver {
	return w.resolver
}

func resolveFunc(notes []model.Note) linkgraph.ResolveFunc {
	return func(title string) (model.Note, bool) {
		return resolver.ResolveIn(notes, title)
	}
}

// ResolveFunc returns a resolver over the current snapshot.
func (w *Workspace) ResolveFunc() linkgraph.ResolveFunc {
	return resolveFunc(w.Notes())
}

// Backlinks returns the visible notes linking to id.
func (w *Workspace) Backlinks(id string) []model.Note {
	return linkgraph.Backlinks(w.Notes(), id)
}

// OutboundLinks returns the ids content links to within the visible set.
func (w *Workspace) OutboundLinks(content string) []string {
	return linkgraph.OutboundLinks(content, w.ResolveFunc())
}

// Tokens classifies the links of content as resolved or broken.
func (w *Workspace) Tokens(content string) []linkgraph.Token {
	return linkgraph.Classify(content, w.ResolveFunc())
}

// AllTags returns the sorted distinct tags of the visible set.
func (w *Workspace) AllTags() []string {
	return linkgraph.AllTags(w.Notes())
}

// Project returns the visible set sorted and filtered by opts.
func (w *Workspace) Project(opts projection.Options) []model.Note {
	return projection.Apply(w.Notes(), opts)
}

// Graph returns the graph view of the visible set.
func (w *Workspace) Graph() linkgraph.Graph {
	return linkgraph.Build(w.Notes())
}

// IsOwner reports whether the user owns the visible note id.
func (w *Workspace) IsOwner(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.owned[id]
}

// Path returns the store path of the visible note id.
func (w *Workspace) Path(id string) (model.DocPath, bool) {
	n, ok := w.Get(id)
	if !ok {
		return model.DocPath{}, false
	}
	return n.Path(), true
}

// Permission returns the user's effective permission on id.
func (w *Workspace) Permission(id string) model.Permission {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i := w.indexOf(id)
	if i < 0 {
		return model.PermissionNone
	}
	var shares []model.Share
	if ref, ok := w.shared[id]; ok {
		shares = []model.Share{{
			OwnerID:    ref.OwnerID,
			NoteID:     ref.NoteID,
			GranteeID:  w.user.ID,
			Permission: ref.Permission,
		}}
	}
	return permission.Effective(w.notes[i], w.user.ID, shares)
}

// --- mutations ---

// livePermission reads the user's permission on n from the note's current
// shares rather than the level seen at Load, and caches it. A note whose
// share was revoked leaves the visible set.
func (w *Workspace) livePermission(ctx context.Context, n model.Note) (model.Permission, error) {
	if n.OwnerID == w.user.ID {
		return model.PermissionAdmin, nil
	}
	level, err := w.sharing.Effective(ctx, w.user, n)
	if err != nil {
		return model.PermissionNone, fmt.Errorf("failed to read shares: %w", err)
	}
	if level == model.PermissionNone {
		w.logger.Info("share revoked, dropping note", "note", n.ID, "owner", n.OwnerID)
		w.RemoveRemote(n.ID)
		return level, nil
	}
	w.mu.Lock()
	if ref, ok := w.shared[n.ID]; ok && ref.Permission != level {
		ref.Permission = level
		w.shared[n.ID] = ref
	}
	w.mu.Unlock()
	return level, nil
}

func (w *Workspace) lookup(id string) (model.Note, error) {
	n, ok := w.Get(id)
	if !ok {
		return model.Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	return n, nil
}

// Create creates an owned note from d.
func (w *Workspace) Create(ctx context.Context, d Draft) (model.Note, error) {
	if err := d.Validate(); err != nil {
		return model.Note{}, err
	}
	return w.create(ctx, d)
}

// CreatePlaceholder creates an empty note titled exactly title. It is the
// resolver's creation path for links to titles that do not exist yet.
func (w *Workspace) CreatePlaceholder(ctx context.Context, title string) (model.Note, error) {
	if strings.TrimSpace(title) == "" {
		return model.Note{}, &ValidationError{Field: "title", Message: "title is required"}
	}
	return w.create(ctx, Draft{Title: title})
}

func (w *Workspace) create(ctx context.Context, d Draft) (model.Note, error) {
	fields := store.Fields{
		Title:       d.Title,
		Content:     d.Content,
		Tags:        model.NormalizeTags(d.Tags),
		LinkedNotes: w.OutboundLinks(d.Content),
	}
	id, err := w.store.CreateNote(ctx, w.user.ID, fields)
	if err != nil {
		return model.Note{}, fmt.Errorf("failed to create note: %w", err)
	}

	path := model.DocPath{OwnerID: w.user.ID, NoteID: id}
	n, err := w.store.GetNote(ctx, path)
	if err != nil {
		// The write succeeded; keep a local copy until the next reload.
		w.logger.Warn("reload after create failed", "note", id, "error", err)
		now := model.Now()
		n = model.Note{
			ID: id, OwnerID: w.user.ID,
			Title: fields.Title, Content: fields.Content,
			Tags: fields.Tags, LinkedNotes: fields.LinkedNotes,
			CreatedAt: now, UpdatedAt: now,
		}
	}

	w.mu.Lock()
	w.notes = append(w.notes, n)
	w.owned[n.ID] = true
	w.mu.Unlock()
	return n.Clone(), nil
}

// Save writes d over the note id. Outbound links are recomputed from the
// content; whatever the note held before is discarded.
func (w *Workspace) Save(ctx context.Context, id string, d Draft) (model.Note, error) {
	if err := d.Validate(); err != nil {
		return model.Note{}, err
	}
	current, err := w.lookup(id)
	if err != nil {
		return model.Note{}, err
	}
	level, err := w.livePermission(ctx, current)
	if err != nil {
		return model.Note{}, err
	}
	if err := permission.CheckEdit(level); err != nil {
		return model.Note{}, err
	}

	fields := store.Fields{
		Title:       d.Title,
		Content:     d.Content,
		Tags:        model.NormalizeTags(d.Tags),
		LinkedNotes: w.OutboundLinks(d.Content),
	}
	path := current.Path()
	if err := w.store.UpdateNote(ctx, path, fields); err != nil {
		return model.Note{}, fmt.Errorf("failed to save note: %w", err)
	}

	n, err := w.store.GetNote(ctx, path)
	if err != nil {
		w.logger.Warn("reload after save failed", "note", id, "error", err)
		n = current
		n.Title, n.Content, n.Tags, n.LinkedNotes = fields.Title, fields.Content, fields.Tags, fields.LinkedNotes
		n.UpdatedAt = model.Now()
	}
	w.ApplyRemote(n)
	return n.Clone(), nil
}

// Delete removes the note. Only the owner may delete. Links to it in other
// notes are left in place and render as broken.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	n, err := w.lookup(id)
	if err != nil {
		return err
	}
	if err := permission.CheckDelete(n, w.user.ID); err != nil {
		return err
	}
	if err := w.store.DeleteNote(ctx, n.Path()); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	w.RemoveRemote(id)
	return nil
}

// Duplicate creates an owned copy of a visible note titled "<title> (copy)".
func (w *Workspace) Duplicate(ctx context.Context, id string) (model.Note, error) {
	src, err := w.lookup(id)
	if err != nil {
		return model.Note{}, err
	}
	return w.create(ctx, Draft{
		Title:   src.Title + " (copy)",
		Content: src.Content,
		Tags:    src.Tags,
	})
}

// LinkInsertion is the result of accepting an autocomplete suggestion.
type LinkInsertion struct {
	Text     string
	Cursor   int
	TargetID string
}

// InsertLink writes [[title]] into text at cursor, completing a partially
// typed [[query if there is one, and resolves title, creating the note when
// it does not exist. The link text is inserted even when creation fails; the
// error is returned with it and the link stays broken.
func (w *Workspace) InsertLink(ctx context.Context, text string, cursor int, title string) (LinkInsertion, error) {
	cursor = max(0, min(cursor, len(text)))
	var out LinkInsertion
	if q, ok := wikilink.ActiveQuery(text, cursor); ok {
		out.Text, out.Cursor = wikilink.Complete(text, q, cursor, title)
	} else {
		link := wikilink.Format(title)
		out.Text = text[:cursor] + link + text[cursor:]
		out.Cursor = cursor + len(link)
	}

	id, err := w.resolver.ResolveOrCreate(ctx, title)
	if err != nil {
		return out, err
	}
	out.TargetID = id
	return out, nil
}

// Share grants access to the note id to the user registered under email.
func (w *Workspace) Share(ctx context.Context, id, email string, level model.Permission) (model.Share, error) {
	n, err := w.lookup(id)
	if err != nil {
		return model.Share{}, err
	}
	own, err := w.livePermission(ctx, n)
	if err != nil {
		return model.Share{}, err
	}
	if err := permission.CheckShare(own); err != nil {
		return model.Share{}, err
	}
	return w.sharing.Grant(ctx, w.user, n, email, level)
}

// Unshare revokes granteeID's access to the note id.
func (w *Workspace) Unshare(ctx context.Context, id, granteeID string) error {
	n, err := w.lookup(id)
	if err != nil {
		return err
	}
	return w.sharing.Revoke(ctx, w.user, n, granteeID)
}

// Shares lists who the note id is shared with.
func (w *Workspace) Shares(ctx context.Context, id string) ([]model.Share, error) {
	n, err := w.lookup(id)
	if err != nil {
		return nil, err
	}
	return w.sharing.List(ctx, n)
}

// Reload re-reads the note id from the store.
func (w *Workspace) Reload(ctx context.Context, id string) (model.Note, error) {
	path, ok := w.Path(id)
	if !ok {
		return model.Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	n, err := w.store.GetNote(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		w.RemoveRemote(id)
		return model.Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("failed to reload note: %w", err)
	}
	w.ApplyRemote(n)
	return n, nil
}

// --- remote application ---

// ApplyRemote replaces the visible entry for n.ID with n as a whole. Notes
// that are neither owned nor shared with the user are ignored. It reports
// whether the set changed.
func (w *Workspace) ApplyRemote(n model.Note) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.indexOf(n.ID); i >= 0 {
		w.notes[i] = n.Clone()
		return true
	}
	if n.OwnerID == w.user.ID {
		w.notes = append(w.notes, n.Clone())
		w.owned[n.ID] = true
		return true
	}
	if _, ok := w.shared[n.ID]; ok {
		w.notes = append(w.notes, n.Clone())
		return true
	}
	return false
}

// RemoveRemote drops id from the visible set.
func (w *Workspace) RemoveRemote(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(id)
	if i < 0 {
		return false
	}
	w.notes = slices.Delete(w.notes, i, i+1)
	delete(w.owned, id)
	delete(w.shared, id)
	return true
}
