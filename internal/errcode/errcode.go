// Package errcode maps errors onto the stable codes reported by the CLI's
// JSON output and the HTTP API.
package errcode

import (
	"errors"
	"net/http"

	"github.com/aidanlsb/dendrite/internal/identity"
	"github.com/aidanlsb/dendrite/internal/permission"
	"github.com/aidanlsb/dendrite/internal/projection"
	"github.com/aidanlsb/dendrite/internal/resolver"
	"github.com/aidanlsb/dendrite/internal/sharing"
	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/syncer"
	"github.com/aidanlsb/dendrite/internal/workspace"
)

// Codes are stable and safe to match on.
const (
	NoteNotFound         = "NOTE_NOT_FOUND"
	UserNotFound         = "USER_NOT_FOUND"
	PermissionDenied     = "PERMISSION_DENIED"
	ValidationFailed     = "VALIDATION_FAILED"
	InvalidInput         = "INVALID_INPUT"
	MissingArgument      = "MISSING_ARGUMENT"
	NotLoggedIn          = "NOT_LOGGED_IN"
	InvalidCredentials   = "INVALID_CREDENTIALS"
	EmailTaken           = "EMAIL_TAKEN"
	PartialWrite         = "PARTIAL_WRITE"
	ConfirmationRequired = "CONFIRMATION_REQUIRED"
	ConfigInvalid        = "CONFIG_INVALID"
	FileWriteError       = "FILE_WRITE_ERROR"
	DatabaseError        = "DATABASE_ERROR"
	Internal             = "INTERNAL_ERROR"
)

// Of returns the code for err. Unrecognized errors are DATABASE_ERROR, since
// everything else that can fail below the CLI is a store call.
func Of(err error) string {
	var partial *sharing.PartialWriteError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &partial):
		return PartialWrite
	case errors.Is(err, workspace.ErrValidation):
		return ValidationFailed
	case errors.Is(err, permission.ErrDenied):
		return PermissionDenied
	case errors.Is(err, workspace.ErrNoteNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, syncer.ErrNotVisible):
		return NoteNotFound
	case errors.Is(err, store.ErrUserNotFound):
		return UserNotFound
	case errors.Is(err, identity.ErrNotLoggedIn):
		return NotLoggedIn
	case errors.Is(err, identity.ErrInvalidCredentials):
		return InvalidCredentials
	case errors.Is(err, identity.ErrEmailTaken):
		return EmailTaken
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, sharing.ErrSelfShare),
		errors.Is(err, sharing.ErrOwnerShare),
		errors.Is(err, sharing.ErrInvalidLevel),
		errors.Is(err, resolver.ErrEmptyTitle),
		errors.Is(err, projection.ErrUnknownSort):
		return InvalidInput
	}
	return DatabaseError
}

// HTTPStatus returns the response status for code.
func HTTPStatus(code string) int {
	switch code {
	case ValidationFailed, InvalidInput, MissingArgument:
		return http.StatusBadRequest
	case NotLoggedIn, InvalidCredentials:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NoteNotFound, UserNotFound:
		return http.StatusNotFound
	case EmailTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
