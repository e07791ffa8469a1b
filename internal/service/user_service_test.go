package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/domain"
	"authgate/internal/metrics"
	"authgate/internal/password"
	"authgate/internal/service"
)

func TestUserService_RegisterLoginLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, domain.DefaultRole, user.Role)
	assert.Empty(t, user.PasswordHash)

	stored, err := f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))

	authed, token, err := f.auth.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.Empty(t, authed.PasswordHash)
	assert.NotEmpty(t, token)

	current, err := f.auth.CurrentUser(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "alice", current.Username)

	require.NoError(t, f.auth.Logout(ctx, token))
	current, err = f.auth.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, current)

	// logging out twice is harmless
	assert.NoError(t, f.auth.Logout(ctx, token))
	assert.NoError(t, f.auth.Logout(ctx, ""))
}

func TestUserService_RegisterKeepsRole(t *testing.T) {
	f := newFixture(t)

	user, err := f.auth.Register(context.Background(), "  bob  ", "pw", "manager")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, "manager", user.Role)
}

func TestUserService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "", password: "pw"},
		{name: "blank username", username: "   ", password: "pw"},
		{name: "empty password", username: "carol", password: ""},
		{name: "password too long", username: "carol", password: strings.Repeat("x", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			_, err := f.auth.Register(ctx, tt.username, tt.password, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))

			_, err = f.users.GetByID(ctx, 1)
			assert.True(t, errors.Is(err, domain.ErrNotFound), "storage must stay untouched")
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistrationsTotal.WithLabelValues(metrics.ResultValidation)))
		})
	}
}

func TestUserService_RegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, "alice", "other", "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateUsername))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistrationsTotal.WithLabelValues(metrics.ResultDuplicate)))

	// the first account still authenticates with its own password
	_, _, err = f.auth.Authenticate(ctx, "alice", "secret123")
	assert.NoError(t, err)
	_, _, err = f.auth.Authenticate(ctx, "alice", "other")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestUserService_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const attempts = 6
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Register(ctx, "racer", "pw", "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, domain.ErrDuplicateUsername) {
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)
}

func TestUserService_AuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		user, token, err := f.auth.Authenticate(ctx, "alice", "wrong")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
		assert.Nil(t, user)
		assert.Empty(t, token)
	})

	t.Run("unknown user gets the same error", func(t *testing.T) {
		_, _, unknownErr := f.auth.Authenticate(ctx, "mallory", "secret123")
		_, _, wrongErr := f.auth.Authenticate(ctx, "alice", "wrong")
		require.Error(t, unknownErr)
		assert.True(t, errors.Is(unknownErr, domain.ErrInvalidCredentials))
		assert.Equal(t, wrongErr.Error(), unknownErr.Error())
	})

	t.Run("usernames are case sensitive", func(t *testing.T) {
		_, _, err := f.auth.Authenticate(ctx, "Alice", "secret123")
		assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	})

	t.Run("longer password than the stored 72 bytes", func(t *testing.T) {
		long := strings.Repeat("k", 72)
		_, err := f.auth.Register(ctx, "longpass", long, "")
		require.NoError(t, err)

		_, _, err = f.auth.Authenticate(ctx, "longpass", long+"k")
		assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
		_, _, err = f.auth.Authenticate(ctx, "longpass", long)
		assert.NoError(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		_, _, err := f.auth.Authenticate(ctx, "", "secret123")
		assert.True(t, errors.Is(err, domain.ErrValidation))
		_, _, err = f.auth.Authenticate(ctx, "alice", "")
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.LoginsTotal.WithLabelValues(metrics.ResultInvalidCredentials)))
}

func TestUserService_HasherChangeKeepsAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)

	argon, err := password.New(password.AlgorithmArgon2id, 4)
	require.NoError(t, err)
	auth, err := service.NewUserService(f.users, f.session, argon, nil, nil)
	require.NoError(t, err)

	_, token, err := auth.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, _, err = auth.Authenticate(ctx, "alice", "secret124")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))

	// new accounts get the new algorithm
	_, err = auth.Register(ctx, "bob", "pw", "")
	require.NoError(t, err)
	bob, err := f.users.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(bob.PasswordHash, "$argon2id$"))
}

func TestUserService_NeverLogsSecrets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.auth.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)
	_, token, err := f.auth.Authenticate(ctx, "alice", "secret123")
	require.NoError(t, err)
	_, _, _ = f.auth.Authenticate(ctx, "alice", "wrong-secret")
	require.NoError(t, f.auth.Logout(ctx, token))

	require.NotEmpty(t, f.hook.AllEntries())
	for _, entry := range f.hook.AllEntries() {
		line, err := entry.String()
		require.NoError(t, err)
		assert.NotContains(t, line, "secret123")
		assert.NotContains(t, line, "wrong-secret")
		assert.NotContains(t, line, token)
		assert.NotContains(t, line, "$2a$")
	}
}

func TestUserService_StorageFaults(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")

	t.Run("create failure is not a duplicate", func(t *testing.T) {
		f := newFixtureWith(t, &stubUserRepo{createErr: boom}, &stubSessionRepo{})
		_, err := f.auth.Register(ctx, "alice", "pw", "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, errors.Is(err, domain.ErrDuplicateUsername))
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistrationsTotal.WithLabelValues(metrics.ResultError)))
	})

	t.Run("lookup failure is not invalid credentials", func(t *testing.T) {
		f := newFixtureWith(t, &stubUserRepo{getErr: boom}, &stubSessionRepo{})
		_, _, err := f.auth.Authenticate(ctx, "alice", "pw")
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, errors.Is(err, domain.ErrInvalidCredentials))
	})

	t.Run("session store failure aborts login", func(t *testing.T) {
		users := &stubUserRepo{}
		f := newFixtureWith(t, users, &stubSessionRepo{err: boom})
		_, err := f.auth.Register(ctx, "alice", "pw", "")
		require.NoError(t, err)

		user, token, err := f.auth.Authenticate(ctx, "alice", "pw")
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Nil(t, user)
		assert.Empty(t, token)
	})

	t.Run("logout surfaces storage faults", func(t *testing.T) {
		f := newFixtureWith(t, &stubUserRepo{}, &stubSessionRepo{err: boom})
		assert.True(t, errors.Is(f.auth.Logout(ctx, "token"), boom))
	})
}
