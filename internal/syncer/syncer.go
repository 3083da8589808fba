// Package syncer keeps the open note in step with pushed store updates.
//
// A Reconciler holds at most one subscription. Opening a note tears the
// previous subscription down first, and every delivery carries the
// generation it was subscribed under so a late delivery from a torn-down
// subscription is dropped instead of applied.
package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/store"
)

// Status is the sync state of the open note.
type Status int

const (
	Idle Status = iota
	Syncing
	Synced
	Error
)

func (s Status) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrNotVisible is returned by Open for notes outside the visible set.
var ErrNotVisible = errors.New("note is not visible")

// Target is the visible set the reconciler writes pushed state into.
type Target interface {
	User() model.User
	IsOwner(id string) bool
	Path(id string) (model.DocPath, bool)
	ApplyRemote(n model.Note) bool
	RemoveRemote(id string) bool
}

// Reconciler subscribes to the open note and applies what the store pushes.
type Reconciler struct {
	store  store.Store
	target Target
	logger *slog.Logger

	onStatus func(Status)
	onError  func(error)
	onUpdate func(store.Snapshot)

	mu     sync.Mutex
	gen    uint64
	noteID string
	status Status
	err    error
	unsub  store.Unsubscribe
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// OnStatus registers a callback for status transitions.
func OnStatus(fn func(Status)) Option {
	return func(r *Reconciler) { r.onStatus = fn }
}

// OnError registers a callback for subscription failures.
func OnError(fn func(error)) Option {
	return func(r *Reconciler) { r.onError = fn }
}

// OnUpdate registers a callback invoked after each applied snapshot.
func OnUpdate(fn func(store.Snapshot)) Option {
	return func(r *Reconciler) { r.onUpdate = fn }
}

// New creates an idle Reconciler.
func New(st store.Store, target Target, opts ...Option) *Reconciler {
	r := &Reconciler{store: st, target: target, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open subscribes to the note id, replacing any current subscription.
func (r *Reconciler) Open(id string) error {
	r.mu.Lock()
	r.teardown()

	path, ok := r.pathFor(id)
	if !ok {
		changed := r.setStatus(Idle)
		r.mu.Unlock()
		r.notifyStatus(changed, Idle)
		return fmt.Errorf("%w: %s", ErrNotVisible, id)
	}

	r.gen++
	gen := r.gen
	r.noteID = id
	r.err = nil
	changed := r.setStatus(Syncing)
	r.unsub = r.store.Subscribe(path,
		func(snap store.Snapshot) { r.deliver(gen, snap) },
		func(err error) { r.fail(gen, err) },
	)
	r.mu.Unlock()

	r.notifyStatus(changed, Syncing)
	r.logger.Debug("subscribed", "note", id, "path", path.String())
	return nil
}

// pathFor picks the owner's path for owned notes and the sharer's path for
// notes shared with the user.
func (r *Reconciler) pathFor(id string) (model.DocPath, bool) {
	if r.target.IsOwner(id) {
		return model.DocPath{OwnerID: r.target.User().ID, NoteID: id}, true
	}
	return r.target.Path(id)
}

// Close tears down the subscription and returns to idle.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.teardown()
	r.noteID = ""
	r.err = nil
	changed := r.setStatus(Idle)
	r.mu.Unlock()
	r.notifyStatus(changed, Idle)
}

// teardown must be called with mu held.
func (r *Reconciler) teardown() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
	r.gen++
}

// Status returns the current sync status.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the failure that put the reconciler in the Error state.
func (r *Reconciler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// NoteID returns the open note, or "" when idle.
func (r *Reconciler) NoteID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.noteID
}

func (r *Reconciler) setStatus(s Status) bool {
	if r.status == s {
		return false
	}
	r.status = s
	return true
}

func (r *Reconciler) notifyStatus(changed bool, s Status) {
	if changed && r.onStatus != nil {
		r.onStatus(s)
	}
}

func (r *Reconciler) deliver(gen uint64, snap store.Snapshot) {
	r.mu.Lock()
	if gen != r.gen || r.status == Error {
		r.mu.Unlock()
		r.logger.Debug("dropped stale delivery", "path", snap.Path.String())
		return
	}
	if snap.Exists {
		r.target.ApplyRemote(snap.Note)
	} else {
		r.target.RemoveRemote(snap.Path.NoteID)
	}
	changed := r.setStatus(Synced)
	r.mu.Unlock()

	r.notifyStatus(changed, Synced)
	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
}

func (r *Reconciler) fail(gen uint64, err error) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.err = err
	changed := r.setStatus(Error)
	id := r.noteID
	r.mu.Unlock()

	r.logger.Error("sync failed", "note", id, "error", err)
	r.notifyStatus(changed, Error)
	if r.onError != nil {
		r.onError(err)
	}
}
