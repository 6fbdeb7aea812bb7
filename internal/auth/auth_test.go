package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/redis"
	"github.com/notes-bin/promptgallery/internal/repository"
)

type testEnv struct {
	auth  *Auth
	repos repository.Repositories
	mr    *miniredis.Miniredis
}

func newTestAuth(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redis.NewClient(mr.Addr(), "", 0, 2)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	repos := repository.NewMemory()
	a := NewAuth("test-secret", repos.Users, rc, time.Hour)
	a.cost = bcrypt.MinCost
	return &testEnv{auth: a, repos: repos, mr: mr}
}

func registration(username string) form.Registration {
	return form.Registration{Username: username, Email: username + "@example.com", Password: "s3cret-pass"}
}

func TestRegister_CreatesUserAndProfile(t *testing.T) {
	env := newTestAuth(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, registration("alice"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	found, err := env.repos.Users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	profile, err := env.repos.Profiles.GetOrCreate(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "", profile.Bio)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestAuth(t)
	ctx := context.Background()

	first, err := env.auth.Register(ctx, registration("alice"))
	require.NoError(t, err)

	_, err = env.auth.Register(ctx, form.Registration{Username: "alice", Email: "other@example.com", Password: "another-pass"})
	var vErr *form.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.NotEmpty(t, vErr.Get("username"))

	// the first account is untouched
	found, err := env.repos.Users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "alice@example.com", found.Email)
}

func TestLogin_SameErrorForUnknownUserAndWrongPassword(t *testing.T) {
	env := newTestAuth(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, registration("alice"))
	require.NoError(t, err)

	_, errWrong := env.auth.Login(ctx, "alice", "wrong-password")
	_, errUnknown := env.auth.Login(ctx, "bob", "s3cret-pass")

	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_AuthenticateLogout(t *testing.T) {
	env := newTestAuth(t)
	ctx := context.Background()
	user, err := env.auth.Register(ctx, registration("alice"))
	require.NoError(t, err)

	s, err := env.auth.Login(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, s.UserID)
	assert.True(t, env.mr.Exists("session:"+s.ID))

	got, err := env.auth.Authenticate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "alice", got.Username)

	current, err := env.auth.CurrentUser(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)

	require.NoError(t, env.auth.Logout(ctx, s.Token))
	assert.False(t, env.mr.Exists("session:"+s.ID))

	// the cookie value alone no longer authenticates
	_, err = env.auth.Authenticate(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAuthenticate_RejectsBadTokens(t *testing.T) {
	env := newTestAuth(t)
	ctx := context.Background()
	user, err := env.auth.Register(ctx, registration("alice"))
	require.NoError(t, err)
	s, err := env.auth.StartSession(ctx, user)
	require.NoError(t, err)

	other := NewAuth("other-secret", env.repos.Users, nil, time.Hour)
	forged, err := other.GenerateToken(s)
	require.NoError(t, err)

	expired, err := env.auth.GenerateToken(&Session{ID: s.ID, UserID: user.ID, ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)

	mismatched, err := env.auth.GenerateToken(&Session{ID: s.ID, UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": user.ID.String(), "sid": s.ID})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.jwt",
		"forged":     forged,
		"expired":    expired,
		"mismatched": mismatched,
		"unsigned":   unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.auth.Authenticate(ctx, token)
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestLogout_IgnoresGarbage(t *testing.T) {
	env := newTestAuth(t)
	assert.NoError(t, env.auth.Logout(context.Background(), ""))
	assert.NoError(t, env.auth.Logout(context.Background(), "garbage"))
}
