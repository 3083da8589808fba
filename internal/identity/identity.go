// Package identity manages accounts and the local login session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidanlsb/dendrite/internal/config"
	"github.com/aidanlsb/dendrite/internal/model"
	"github.com/aidanlsb/dendrite/internal/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var (
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Service signs users up and in, keeping the session in state.toml.
type Service struct {
	users     store.Users
	statePath string
	logger    *slog.Logger
}

// New creates a Service. statePath is where the session is persisted.
func New(users store.Users, statePath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, statePath: statePath, logger: logger}
}

// ValidateEmail lower-cases email and checks that it looks like an address.
func ValidateEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(e, "@")
	if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " \t\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return e, nil
}

// Signup creates an account and logs it in.
func (s *Service) Signup(ctx context.Context, email, password string) (model.User, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return model.User{}, err
	}
	if len(password) < MinPasswordLength {
		return model.User{}, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.users.CreateUser(ctx, email, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return model.User{}, fmt.Errorf("%w: %s", ErrEmailTaken, email)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created", "user", u.ID)
	return u, s.persist(u)
}

// Login checks credentials and stores the session.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, error) {
	u, hash, err := s.users.Credentials(ctx, email)
	if errors.Is(err, store.ErrUserNotFound) {
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to look up account: %w", err)
	}

	ok, err := VerifyPassword(hash, password)
	if err != nil {
		s.logger.Warn("stored password hash is unreadable", "user", u.ID, "error", err)
		return model.User{}, ErrInvalidCredentials
	}
	if !ok {
		return model.User{}, ErrInvalidCredentials
	}
	return u, s.persist(u)
}

// Logout clears the session.
func (s *Service) Logout() error {
	return config.SaveState(s.statePath, &config.State{})
}

// Current returns the logged-in user. The session is checked against the
// store so a stale session for a removed account is rejected.
func (s *Service) Current(ctx context.Context) (model.User, error) {
	state, err := config.LoadState(s.statePath)
	if err != nil {
		return model.User{}, err
	}
	if !state.LoggedIn() {
		return model.User{}, ErrNotLoggedIn
	}
	u, err := s.users.GetUser(ctx, state.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return model.User{}, ErrNotLoggedIn
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Service) persist(u model.User) error {
	if err := config.SaveState(s.statePath, &config.State{UserID: u.ID, Email: u.Email}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
