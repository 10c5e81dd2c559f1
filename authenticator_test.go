package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/wordnest/go-auth"
)

type authFixture struct {
	repo   *memoryRepoManager
	tokens *auth.TokenServiceImpl
	mailer *recordingMailer
	auther *auth.Auther
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	repo := newMemoryRepoManager()
	tokens, err := auth.NewTokenService(testSigningKey, "1h", nil)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	auther := auth.NewAuthenticator(repo, tokens).
		WithMailer(mailer)

	return &authFixture{
		repo:   repo,
		tokens: tokens,
		mailer: mailer,
		auther: auther,
	}
}

func validRegistration() auth.RegisterUserMessage {
	return auth.RegisterUserMessage{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "password123",
		Gender:   auth.GenderFemale,
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.RegisterUserMessage)
	}{
		{"short username", func(m *auth.RegisterUserMessage) { m.Username = "al" }},
		{"long username", func(m *auth.RegisterUserMessage) {
			m.Username = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		}},
		{"empty username", func(m *auth.RegisterUserMessage) { m.Username = "   " }},
		{"bad email", func(m *auth.RegisterUserMessage) { m.Email = "not-an-email" }},
		{"short password", func(m *auth.RegisterUserMessage) { m.Password = "12345" }},
		{"bad gender", func(m *auth.RegisterUserMessage) { m.Gender = "robot" }},
		{"bad phone", func(m *auth.RegisterUserMessage) { m.Phone = "not-a-phone" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)

			msg := validRegistration()
			tt.mutate(&msg)

			_, err := f.auther.Register(context.Background(), msg)
			require.Error(t, err)
			assert.True(t, auth.IsValidation(err), "want validation error, got %v", err)
		})
	}
}

func TestRegisterSuccess(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.auther.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "alice@example.com", res.User.Email, "email is stored lowercased")
	assert.Equal(t, string(auth.RoleUser), res.User.Role)

	claims, err := f.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.String(), claims.UserID())
	assert.Equal(t, "alice", claims.GetUsername())

	// verification code delivery is asynchronous
	require.Eventually(t, func() bool {
		return len(f.mailer.sent()) == 1
	}, time.Second, 10*time.Millisecond)

	send := f.mailer.sent()[0]
	assert.Equal(t, "alice@example.com", send.address)
	assert.Len(t, send.code, 6)
	assert.Equal(t, auth.PurposeEmailVerification, send.purpose)
}

func TestRegisterDuplicates(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("duplicate username", func(t *testing.T) {
		msg := validRegistration()
		msg.Email = "other@example.com"

		_, err := f.auther.Register(ctx, msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	})

	t.Run("duplicate email different case", func(t *testing.T) {
		msg := validRegistration()
		msg.Username = "alice2"
		msg.Email = "ALICE@example.com"

		_, err := f.auther.Register(ctx, msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})
}

// Concurrent registrations of the same username must produce exactly one
// account. The losers get a conflict, never a second account and never an
// internal error.
func TestRegisterConcurrentDuplicate(t *testing.T) {
	f := newAuthFixture(t)

	const attempts = 16

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auther.Register(context.Background(), validRegistration())
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, auth.IsConflict(err), "loser should see a conflict, got %v", err)
	}
	assert.Equal(t, 1, successes)
}

// An insert that fails for reasons other than a duplicate is an internal
// failure, not a conflict.
func TestRegisterStoreOutage(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.users.registerErr = errors.New("connection reset by peer")

	_, err := f.auther.Register(context.Background(), validRegistration())
	require.Error(t, err)
	assert.False(t, auth.IsConflict(err), "a store outage must not report as a duplicate, got %v", err)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		res, err := f.auther.Login(ctx, "alice", "password123", "127.0.0.1")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "alice", res.User.Username)
	})

	t.Run("by email", func(t *testing.T) {
		res, err := f.auther.Login(ctx, "alice@example.com", "password123", "127.0.0.1")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.auther.Login(ctx, "alice", "wrong-password", "127.0.0.1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown identifier gets the same rejection", func(t *testing.T) {
		_, err := f.auther.Login(ctx, "nobody", "password123", "127.0.0.1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("empty credentials", func(t *testing.T) {
		_, err := f.auther.Login(ctx, "", "", "127.0.0.1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	for _, status := range []auth.UserStatus{
		auth.UserStatusInactive,
		auth.UserStatusSuspended,
		auth.UserStatusDeleted,
	} {
		t.Run(status, func(t *testing.T) {
			f.repo.users.setStatus(res.User.ID, status)

			_, err := f.auther.Login(ctx, "alice", "password123", "127.0.0.1")
			require.Error(t, err)
			assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
			assert.True(t, auth.IsAccountDisabled(err), "want the disabled-account rejection, got %v", err)
		})
	}
}

func TestLoginTracksSuccess(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = f.auther.Login(ctx, "alice", "password123", "10.0.0.7")
	require.NoError(t, err)

	user, err := f.repo.users.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.LoginCount)
	assert.Equal(t, "10.0.0.7", user.LastLoginHost)
	require.NotNil(t, user.LastLoginAt)
}

func TestVerifyToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("valid token and live account", func(t *testing.T) {
		claims, err := f.auther.VerifyToken(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID.String(), claims.UserID())
	})

	t.Run("suspended account revokes the token", func(t *testing.T) {
		f.repo.users.setStatus(res.User.ID, auth.UserStatusSuspended)
		defer f.repo.users.setStatus(res.User.ID, auth.UserStatusActive)

		_, err := f.auther.VerifyToken(ctx, res.Token)
		assert.ErrorIs(t, err, auth.ErrIdentityRevoked)
	})

	t.Run("deleted account revokes the token", func(t *testing.T) {
		f.repo.users.delete(res.User.ID)

		_, err := f.auther.VerifyToken(ctx, res.Token)
		assert.ErrorIs(t, err, auth.ErrIdentityRevoked)
	})
}

func TestRefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("valid refresh", func(t *testing.T) {
		refreshed, err := f.auther.RefreshToken(ctx, res.Token)
		require.NoError(t, err)
		require.NotEmpty(t, refreshed)

		claims, err := f.tokens.Validate(refreshed)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID.String(), claims.UserID())
	})

	t.Run("refresh picks up the current role", func(t *testing.T) {
		f.repo.users.mu.Lock()
		f.repo.users.byID[res.User.ID].Role = auth.RoleModerator
		f.repo.users.mu.Unlock()

		refreshed, err := f.auther.RefreshToken(ctx, res.Token)
		require.NoError(t, err)

		claims, err := f.tokens.Validate(refreshed)
		require.NoError(t, err)
		assert.Equal(t, string(auth.RoleModerator), claims.Role())
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.auther.RefreshToken(ctx, "garbage")
		require.Error(t, err)
		assert.True(t, auth.IsTokenMalformed(err))
	})

	t.Run("refresh reads the account exactly once", func(t *testing.T) {
		before := f.repo.users.lookupCount()

		_, err := f.auther.RefreshToken(ctx, res.Token)
		require.NoError(t, err)

		assert.Equal(t, 1, f.repo.users.lookupCount()-before)
	})

	t.Run("disabled account cannot refresh", func(t *testing.T) {
		f.repo.users.setStatus(res.User.ID, auth.UserStatusSuspended)

		_, err := f.auther.RefreshToken(ctx, res.Token)
		assert.ErrorIs(t, err, auth.ErrIdentityRevoked)
	})
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("wrong old password", func(t *testing.T) {
		err := f.auther.ChangePassword(ctx, res.User.ID, "nope", "newpassword123")
		assert.ErrorIs(t, err, auth.ErrPasswordMismatch)
	})

	t.Run("new password too short", func(t *testing.T) {
		err := f.auther.ChangePassword(ctx, res.User.ID, "password123", "12345")
		require.Error(t, err)
		assert.True(t, auth.IsValidation(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		err := f.auther.ChangePassword(ctx, uuid.New(), "password123", "newpassword123")
		assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
	})

	t.Run("success rotates the credential", func(t *testing.T) {
		err := f.auther.ChangePassword(ctx, res.User.ID, "password123", "newpassword123")
		require.NoError(t, err)

		_, err = f.auther.Login(ctx, "alice", "password123", "127.0.0.1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

		login, err := f.auther.Login(ctx, "alice", "newpassword123", "127.0.0.1")
		require.NoError(t, err)
		assert.NotEmpty(t, login.Token)
	})
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auther.Register(ctx, validRegistration())
	require.NoError(t, err)

	identity, err := f.auther.Me(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)

	_, err = f.auther.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
}

// Full lifecycle: register, login, verify, refresh, change password, then
// confirm the old password is dead and the new one works.
func TestAccountLifecycle(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.auther.Register(ctx, auth.RegisterUserMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "first-password",
		Gender:   auth.GenderFemale,
	})
	require.NoError(t, err)

	login, err := f.auther.Login(ctx, "alice", "first-password", "127.0.0.1")
	require.NoError(t, err)

	claims, err := f.auther.VerifyToken(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID.String(), claims.UserID())

	refreshed, err := f.auther.RefreshToken(ctx, login.Token)
	require.NoError(t, err)

	_, err = f.auther.VerifyToken(ctx, refreshed)
	require.NoError(t, err)

	require.NoError(t, f.auther.ChangePassword(ctx, registered.User.ID, "first-password", "second-password"))

	_, err = f.auther.Login(ctx, "alice", "first-password", "127.0.0.1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	relogin, err := f.auther.Login(ctx, "alice", "second-password", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, relogin.Token)
}
