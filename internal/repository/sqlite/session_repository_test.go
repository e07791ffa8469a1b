package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/domain"
	"authgate/internal/repository"
	"authgate/internal/repository/sqlite"
)

func newSessionRepo(t *testing.T) repository.SessionRepository {
	t.Helper()
	repo := sqlite.NewSessionRepository(openTestDB(t))
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newSessionRepo(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := &domain.Session{
		ID:        "s-1",
		UserID:    7,
		TokenHash: "hash-1",
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.GetByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.ID)
	assert.Equal(t, int64(7), got.UserID)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.ExpiresAt.Equal(created.Add(time.Hour)))
}

func TestSessionRepository_GetUnknown(t *testing.T) {
	repo := newSessionRepo(t)

	_, err := repo.GetByTokenHash(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSessionRepository_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newSessionRepo(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &domain.Session{
		ID: "s-1", UserID: 1, TokenHash: "hash-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, repo.DeleteByTokenHash(ctx, "hash-1"))
	require.NoError(t, repo.DeleteByTokenHash(ctx, "hash-1"))

	_, err := repo.GetByTokenHash(ctx, "hash-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := newSessionRepo(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := []*domain.Session{
		{ID: "old", UserID: 1, TokenHash: "h-old", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{ID: "edge", UserID: 1, TokenHash: "h-edge", CreatedAt: now.Add(-time.Hour), ExpiresAt: now},
		{ID: "live", UserID: 2, TokenHash: "h-live", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for _, s := range sessions {
		require.NoError(t, repo.Create(ctx, s))
	}

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = repo.GetByTokenHash(ctx, "h-live")
	assert.NoError(t, err)
	_, err = repo.GetByTokenHash(ctx, "h-old")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	removed, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSessionRepository_Ping(t *testing.T) {
	assert.NoError(t, newSessionRepo(t).Ping(context.Background()))
}
