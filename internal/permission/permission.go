// Package permission computes effective access to notes and gates mutations.
package permission

import (
	"errors"
	"fmt"

	"github.com/aidanlsb/dendrite/internal/model"
)

// ErrDenied is wrapped by every rejection from the Check functions.
var ErrDenied = errors.New("permission denied")

// Effective returns userID's access level on note. Owners are admin; other
// users get the level of their share, or none.
func Effective(note model.Note, userID string, shares []model.Share) model.Permission {
	if userID == "" {
		return model.PermissionNone
	}
	if note.OwnerID == userID {
		return model.PermissionAdmin
	}
	for _, s := range shares {
		if s.NoteID == note.ID && s.GranteeID == userID {
			return s.Permission
		}
	}
	return model.PermissionNone
}

// CheckEdit allows title, content and tag changes at edit level or above.
func CheckEdit(p model.Permission) error {
	if p.AtLeast(model.PermissionEdit) {
		return nil
	}
	return deny("edit", p)
}

// CheckDelete allows deletion by the owner only. Admin shares are not enough.
func CheckDelete(note model.Note, userID string) error {
	if userID != "" && note.OwnerID == userID {
		return nil
	}
	return fmt.Errorf("%w: only the owner can delete %q", ErrDenied, note.Title)
}

// CheckShare allows granting or changing shares at admin level.
func CheckShare(p model.Permission) error {
	if p.AtLeast(model.PermissionAdmin) {
		return nil
	}
	return deny("share", p)
}

// CheckRevoke allows revoking shares by the owner only.
func CheckRevoke(note model.Note, userID string) error {
	if userID != "" && note.OwnerID == userID {
		return nil
	}
	return fmt.Errorf("%w: only the owner can revoke access to %q", ErrDenied, note.Title)
}

func deny(action string, p model.Permission) error {
	return fmt.Errorf("%w: cannot %s with %s access", ErrDenied, action, p)
}
