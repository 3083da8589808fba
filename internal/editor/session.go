// Package editor is the editing session for one open note: the local draft,
// link autocomplete, explicit save and periodic auto-save.
package editor

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/resolver"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/syncer"
	"github.com/aidanlsb/dendrite/internal/wikilink"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

// Session edits one note of a workspace.
type Session struct {
	ws       *workspace.Workspace
	noteID   string
	logger   *slog.Logger
	interval time.Duration

	syncStore    store.Store
	syncOpts     []syncer.Option
	onRemote     func(model.Note, bool)
	reconciler   *syncer.Reconciler
	autosaveOnce sync.Once

	mu        sync.Mutex
	draft     workspace.Draft
	saved     workspace.Draft
	lastSaved time.Time
	deleted   bool

	// saveMu serializes saves; auto-save ticks skip while it is held.
	saveMu sync.Mutex

	stop      chan struct{}
	stopOnce  sync.Once
	autosaveW sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAutosaveInterval sets the auto-save period. Zero disables auto-save.
func WithAutosaveInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithSync subscribes to the note while the session is open. opts are passed
// to the reconciler; an OnUpdate among them is replaced by the session's own.
func WithSync(st store.Store, opts ...syncer.Option) Option {
	return func(s *Session) {
		s.syncStore = st
		s.syncOpts = opts
	}
}

// OnRemote is called after a pushed update reached the session. deleted is
// true when the note was removed remotely.
func OnRemote(fn func(n model.Note, deleted bool)) Option {
	return func(s *Session) { s.onRemote = fn }
}

// Open starts a session on the visible note id.
func Open(ws *workspace.Workspace, id string, opts ...Option) (*Session, error) {
	n, ok := ws.Get(id)
	if !ok {
		return nil, workspace.ErrNoteNotFound
	}
	s := &Session{
		ws:        ws,
		noteID:    id,
		logger:    slog.Default(),
		draft:     workspace.DraftOf(n),
		saved:     workspace.DraftOf(n),
		lastSaved: n.UpdatedAt.Time,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.syncStore != nil {
		ropts := append(slices.Clone(s.syncOpts), syncer.WithLogger(s.logger), syncer.OnUpdate(s.remoteUpdate))
		s.reconciler = syncer.New(s.syncStore, ws, ropts...)
		if err := s.reconciler.Open(id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NoteID returns the id of the edited note.
func (s *Session) NoteID() string {
	return s.noteID
}

// Draft returns the current local draft.
func (s *Session) Draft() workspace.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Tags = slices.Clone(d.Tags)
	return d
}

// SetTitle replaces the draft title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.draft.Title = title
	s.mu.Unlock()
}

// SetContent replaces the draft content.
func (s *Session) SetContent(content string) {
	s.mu.Lock()
	s.draft.Content = content
	s.mu.Unlock()
}

// SetTags replaces the draft tags.
func (s *Session) SetTags(tags []string) {
	s.mu.Lock()
	s.draft.Tags = slices.Clone(tags)
	s.mu.Unlock()
}

// Dirty reports whether the draft differs from what was last saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !sameDraft(s.draft, s.saved)
}

func sameDraft(a, b workspace.Draft) bool {
	return a.Title == b.Title && a.Content == b.Content &&
		slices.Equal(model.NormalizeTags(a.Tags), model.NormalizeTags(b.Tags))
}

// Deleted reports whether the note was deleted while the session was open.
func (s *Session) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// LastSaved returns when the note was last written.
func (s *Session) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// SyncStatus returns the reconciler status, or Idle without sync.
func (s *Session) SyncStatus() syncer.Status {
	if s.reconciler == nil {
		return syncer.Idle
	}
	return s.reconciler.Status()
}

// Suggestions returns autocomplete candidates for the [[ query the cursor is
// in, or nil when the cursor is not inside one.
func (s *Session) Suggestions(cursor, limit int) []resolver.Suggestion {
	content := s.Draft().Content
	q, ok := wikilink.ActiveQuery(content, cursor)
	if !ok {
		return nil
	}
	return s.ws.Resolver().Suggest(q.Text, limit)
}

// AcceptSuggestion inserts a link to title at cursor and resolves it,
// creating the note when needed. The draft holds the inserted link even if
// creation failed.
func (s *Session) AcceptSuggestion(ctx context.Context, cursor int, title string) (workspace.LinkInsertion, error) {
	ins, err := s.ws.InsertLink(ctx, s.Draft().Content, cursor, title)
	s.SetContent(ins.Text)
	return ins, err
}

// Save writes the draft. Errors are returned to the caller.
func (s *Session) Save(ctx context.Context) (model.Note, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.save(ctx)
}

// save must be called with saveMu held.
func (s *Session) save(ctx context.Context) (model.Note, error) {
	d := s.Draft()
	n, err := s.ws.Save(ctx, s.noteID, d)
	if err != nil {
		return model.Note{}, err
	}
	s.mu.Lock()
	s.saved = d
	s.lastSaved = time.Now()
	if !n.UpdatedAt.IsZero() {
		s.lastSaved = n.UpdatedAt.Time
	}
	s.mu.Unlock()
	return n, nil
}

// StartAutosave saves the draft every interval while it is dirty. A tick
// that finds a save in flight is skipped. Failures are logged and the next
// tick tries again. It returns immediately; Close or ctx stops it.
func (s *Session) StartAutosave(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.autosaveOnce.Do(func() {
		s.autosaveW.Add(1)
		go s.autosave(ctx)
	})
}

func (s *Session) autosave(ctx context.Context) {
	defer s.autosaveW.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.Dirty() || s.Deleted() {
				continue
			}
			if !s.saveMu.TryLock() {
				s.logger.Debug("auto-save skipped, save in flight", "note", s.noteID)
				continue
			}
			if _, err := s.save(ctx); err != nil {
				s.logger.Error("auto-save failed", "note", s.noteID, "error", err)
			} else {
				s.logger.Debug("auto-saved", "note", s.noteID)
			}
			s.saveMu.Unlock()
		}
	}
}

// remoteUpdate adopts pushed state when there are no local edits. With
// local edits the draft is kept and the next save overwrites the remote
// change as a whole.
func (s *Session) remoteUpdate(snap store.Snapshot) {
	s.mu.Lock()
	if !snap.Exists {
		s.deleted = true
	} else {
		clean := sameDraft(s.draft, s.saved)
		s.saved = workspace.DraftOf(snap.Note)
		if clean {
			s.draft = workspace.DraftOf(snap.Note)
		}
		if !snap.Note.UpdatedAt.IsZero() {
			s.lastSaved = snap.Note.UpdatedAt.Time
		}
	}
	s.mu.Unlock()

	if s.onRemote != nil {
		s.onRemote(snap.Note, !snap.Exists)
	}
}

// Close stops auto-save and the subscription. It waits for an auto-save in
// progress to finish.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.autosaveW.Wait()
		if s.reconciler != nil {
			s.reconciler.Close()
		}
	})
}
