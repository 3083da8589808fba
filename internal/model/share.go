package model

import (
	"fmt"
	"strings"
)

// Permission is an access level on a note. Levels are ordered:
// PermissionNone < PermissionView < PermissionEdit < PermissionAdmin.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionView
	PermissionEdit
	PermissionAdmin
)

// ParsePermission parses "view", "edit" or "admin" (case-insensitive).
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "view":
		return PermissionView, nil
	case "edit":
		return PermissionEdit, nil
	case "admin":
		return PermissionAdmin, nil
	case "none", "":
		return PermissionNone, nil
	}
	return PermissionNone, fmt.Errorf("unknown permission %q (expected view, edit or admin)", s)
}

func (p Permission) String() string {
	switch p {
	case PermissionView:
		return "view"
	case PermissionEdit:
		return "edit"
	case PermissionAdmin:
		return "admin"
	default:
		return "none"
	}
}

// AtLeast reports whether p grants at least min.
func (p Permission) AtLeast(min Permission) bool {
	return p >= min
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Share records that OwnerID's note NoteID is visible to GranteeID.
// Owners never appear as a Share on their own notes.
type Share struct {
	OwnerID    string     `json:"ownerId"`
	NoteID     string     `json:"noteId"`
	GranteeID  string     `json:"uid"`
	Email      string     `json:"email"`
	Permission Permission `json:"permission"`
	SharedAt   Timestamp  `json:"sharedAt"`
}

// SharedRef is the grantee-side index entry for a Share.
type SharedRef struct {
	OwnerID    string     `json:"ownerId"`
	NoteID     string     `json:"noteId"`
	Permission Permission `json:"permission"`
	SharedAt   Timestamp  `json:"sharedAt"`
}

// Path returns the document path of the shared note.
func (r SharedRef) Path() DocPath {
	return DocPath{OwnerID: r.OwnerID, NoteID: r.NoteID}
}

// Ref returns the grantee-side index entry matching s.
func (s Share) Ref() SharedRef {
	return SharedRef{
		OwnerID:    s.OwnerID,
		NoteID:     s.NoteID,
		Permission: s.Permission,
		SharedAt:   s.SharedAt,
	}
}

// User is an authenticated identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserDoc is the per-user document holding the "shared with me" index.
type UserDoc struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	SharedWithMe []SharedRef `json:"sharedWithMe"`
}

// Find returns the index entry for noteID, if present.
func (d UserDoc) Find(noteID string) (SharedRef, bool) {
	for _, ref := range d.SharedWithMe {
		if ref.NoteID == noteID {
			return ref, true
		}
	}
	return SharedRef{}, false
}

// DocPath addresses a note document in the store: notes live under their owner.
type DocPath struct {
	OwnerID string
	NoteID  string
}

func (p DocPath) String() string {
	return "users/" + p.OwnerID + "/notes/" + p.NoteID
}
