package identity

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/dendrite/internal/store"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := VerifyPassword(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")

	_, err = VerifyPassword("$bcrypt$nope", "x")
	assert.Error(t, err)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" Me@Example.COM ", "me@example.com", true},
		{"", "", false},
		{"no-at-sign", "", false},
		{"@example.com", "", false},
		{"me@", "", false},
		{"me @example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateEmail(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidEmail)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, filepath.Join(t.TempDir(), "state.toml"), nil)
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	u, err := svc.Signup(ctx, "Me@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", u.Email)

	cur, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, u, cur)

	require.NoError(t, svc.Logout())
	_, err = svc.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = svc.Login(ctx, "me@example.com", "wrong!!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	again, err := svc.Login(ctx, "ME@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	cur, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, cur.ID)
}

func TestSignupRules(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.Signup(ctx, "bad", "secret1")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Signup(ctx, "a@example.com", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Signup(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = svc.Signup(ctx, "A@example.com", "secret2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}
