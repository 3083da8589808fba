// Package sharing grants and revokes access to notes.
//
// A share is written twice: the owner-side record next to the note, and the
// grantee's "shared with me" index entry. When the store can write both in
// one transaction it does; otherwise the owner side is written first and a
// failure of the grantee side is reported as a *PartialWriteError.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aidanlsb/dendrite/internal/identity"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/permission"
	"github.com/aidanlsb/dendrite/internal/store"
)

var (
	ErrSelfShare    = errors.New("you cannot share a note with yourself")
	ErrOwnerShare   = errors.New("the owner already has full access")
	ErrInvalidLevel = errors.New("permission must be view, edit or admin")
)

// PartialWriteError reports that the owner side of a share change was
// written but the grantee's index was not. The two sides disagree until the
// operation is retried.
type PartialWriteError struct {
	Op    string
	Share model.Share
	Err   error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s share of note %s with %s: owner side written, grantee index failed: %v",
		e.Op, e.Share.NoteID, e.Share.GranteeID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Service applies share changes to a store.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Service.
func New(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// Effective returns actor's permission on note, reading the note's shares.
func (s *Service) Effective(ctx context.Context, actor model.User, note model.Note) (model.Permission, error) {
	if actor.ID == note.OwnerID {
		return model.PermissionAdmin, nil
	}
	shares, err := s.store.ListShares(ctx, note.OwnerID, note.ID)
	if err != nil {
		return model.PermissionNone, err
	}
	return permission.Effective(note, actor.ID, shares), nil
}

// Grant shares note with the user registered under email at level. Granting
// again with a different level updates the existing share.
func (s *Service) Grant(ctx context.Context, actor model.User, note model.Note, email string, level model.Permission) (model.Share, error) {
	if level < model.PermissionView || level > model.PermissionAdmin {
		return model.Share{}, ErrInvalidLevel
	}
	email, err := identity.ValidateEmail(email)
	if err != nil {
		return model.Share{}, err
	}
	if email == actor.Email {
		return model.Share{}, ErrSelfShare
	}

	perm, err := s.Effective(ctx, actor, note)
	if err != nil {
		return model.Share{}, fmt.Errorf("failed to read shares: %w", err)
	}
	if err := permission.CheckShare(perm); err != nil {
		return model.Share{}, err
	}

	grantee, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return model.Share{}, err
	}
	if grantee.ID == note.OwnerID {
		return model.Share{}, ErrOwnerShare
	}

	share := model.Share{
		OwnerID:    note.OwnerID,
		NoteID:     note.ID,
		GranteeID:  grantee.ID,
		Email:      grantee.Email,
		Permission: level,
		SharedAt:   model.Now(),
	}

	if tx, ok := s.store.(store.ShareTx); ok {
		if err := tx.ApplyShare(ctx, share); err != nil {
			return model.Share{}, fmt.Errorf("failed to share: %w", err)
		}
		return share, nil
	}

	if err := s.store.PutShare(ctx, share); err != nil {
		return model.Share{}, fmt.Errorf("failed to share: %w", err)
	}
	err = s.store.UpdateUserDoc(ctx, grantee.ID, func(doc *model.UserDoc) error {
		ref := share.Ref()
		for i := range doc.SharedWithMe {
			if doc.SharedWithMe[i].OwnerID == ref.OwnerID && doc.SharedWithMe[i].NoteID == ref.NoteID {
				doc.SharedWithMe[i] = ref
				return nil
			}
		}
		doc.SharedWithMe = append(doc.SharedWithMe, ref)
		return nil
	})
	if err != nil {
		perr := &PartialWriteError{Op: "grant", Share: share, Err: err}
		s.logger.Error("share partially written", "note", note.ID, "grantee", grantee.ID, "error", err)
		return share, perr
	}
	return share, nil
}

// Revoke removes granteeID's access to note. Only the owner may revoke.
func (s *Service) Revoke(ctx context.Context, actor model.User, note model.Note, granteeID string) error {
	if err := permission.CheckRevoke(note, actor.ID); err != nil {
		return err
	}

	if tx, ok := s.store.(store.ShareTx); ok {
		if err := tx.RemoveShare(ctx, note.OwnerID, note.ID, granteeID); err != nil {
			return fmt.Errorf("failed to revoke: %w", err)
		}
		return nil
	}

	if err := s.store.DeleteShare(ctx, note.OwnerID, note.ID, granteeID); err != nil {
		return fmt.Errorf("failed to revoke: %w", err)
	}
	err := s.store.UpdateUserDoc(ctx, granteeID, func(doc *model.UserDoc) error {
		kept := doc.SharedWithMe[:0]
		for _, ref := range doc.SharedWithMe {
			if ref.OwnerID == note.OwnerID && ref.NoteID == note.ID {
				continue
			}
			kept = append(kept, ref)
		}
		doc.SharedWithMe = kept
		return nil
	})
	if err != nil {
		share := model.Share{OwnerID: note.OwnerID, NoteID: note.ID, GranteeID: granteeID}
		s.logger.Error("revoke partially written", "note", note.ID, "grantee", granteeID, "error", err)
		return &PartialWriteError{Op: "revoke", Share: share, Err: err}
	}
	return nil
}

// List returns the shares of note.
func (s *Service) List(ctx context.Context, note model.Note) ([]model.Share, error) {
	shares, err := s.store.ListShares(ctx, note.OwnerID, note.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}
