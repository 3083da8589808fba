// Package store is the remote document store the note engine talks to.
//
// Notes live under their owner (users/{owner}/notes/{id}). The owner side of
// a share lives with the note; the grantee side lives in the grantee's user
// document as the "shared with me" index. Subscribers of a note path receive
// a fresh snapshot after every successful write to it.
package store

import (
	"context"
	"errors"

	"github.com/aidanlsb/dendrite/internal/model"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicate indicates a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Fields are the note fields written by create and update. An update
// replaces all of them, together with updatedAt, in one write.
type Fields struct {
	Title       string
	Content     string
	Tags        []string
	LinkedNotes []string
}

// FieldsOf returns the writable fields of n.
func FieldsOf(n model.Note) Fields {
	return Fields{Title: n.Title, Content: n.Content, Tags: n.Tags, LinkedNotes: n.LinkedNotes}
}

// Snapshot is a pushed document state. Exists is false once the note has
// been deleted.
type Snapshot struct {
	Path   model.DocPath
	Note   model.Note
	Exists bool
}

// Unsubscribe tears a subscription down. It returns without waiting for a
// callback that is already running, and no callback starts after it returns.
// Calling it more than once is a no-op.
type Unsubscribe func()

// Store is the CRUD + watch contract over notes, shares and user documents.
type Store interface {
	ListNotes(ctx context.Context, ownerID string) ([]model.Note, error)
	CreateNote(ctx context.Context, ownerID string, f Fields) (string, error)
	UpdateNote(ctx context.Context, path model.DocPath, f Fields) error
	DeleteNote(ctx context.Context, path model.DocPath) error
	GetNote(ctx context.Context, path model.DocPath) (model.Note, error)

	// Subscribe delivers the current state of path, then every later change,
	// in order. onError is called at most once, after which the
	// subscription delivers nothing more.
	Subscribe(path model.DocPath, onUpdate func(Snapshot), onError func(error)) Unsubscribe

	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserDoc(ctx context.Context, userID string) (model.UserDoc, error)
	SetUserDoc(ctx context.Context, doc model.UserDoc) error
	UpdateUserDoc(ctx context.Context, userID string, fn func(*model.UserDoc) error) error

	PutShare(ctx context.Context, share model.Share) error
	DeleteShare(ctx context.Context, ownerID, noteID, granteeID string) error
	ListShares(ctx context.Context, ownerID, noteID string) ([]model.Share, error)
}

// ShareTx is implemented by stores that can write both sides of a share in
// one transaction.
type ShareTx interface {
	// ApplyShare upserts the owner-side share and the grantee's index entry.
	ApplyShare(ctx context.Context, share model.Share) error
	// RemoveShare deletes the owner-side share and the grantee's index entry.
	RemoveShare(ctx context.Context, ownerID, noteID, granteeID string) error
}

// Users is the account storage used by identity.
type Users interface {
	CreateUser(ctx context.Context, email, passwordHash string) (model.User, error)
	Credentials(ctx context.Context, email string) (model.User, string, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
}
