package repository

import (
	"context"
	"time"

	"authgate/internal/domain"
)

// SessionRepository persists login sessions keyed by token hash.
type SessionRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, session *domain.Session) error
	// GetByTokenHash returns domain.ErrNotFound for unknown sessions. Expiry is checked by the caller.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// DeleteByTokenHash removes the session. Deleting a missing session is not an error.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	// DeleteExpired removes sessions that expired before now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}
