package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"authgate/internal/domain"
	"authgate/internal/repository"
)

const sessionKeyPrefix = "authgate:session:"

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRepository keeps each session as a JSON value whose Redis TTL
// matches the session's remaining lifetime.
type SessionRepository struct {
	rdb *redis.Client
	now func() time.Time
}

func NewSessionRepository(rdb *redis.Client) repository.SessionRepository {
	return &SessionRepository{rdb: rdb, now: time.Now}
}

// Init is a no-op: Redis needs no schema.
func (r *SessionRepository) Init(ctx context.Context) error {
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		// already expired, nothing to keep
		return nil
	}

	payload, err := json.Marshal(sessionRecord{
		ID:        session.ID,
		UserID:    session.UserID,
		TokenHash: session.TokenHash,
		CreatedAt: session.CreatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "encode session").
			Wrap(err)
	}

	if err := r.rdb.Set(ctx, sessionKey(session.TokenHash), payload, ttl).Err(); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session").
			With("user_id", session.UserID).
			Wrap(err)
	}
	return nil
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(domain.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session").
			Wrap(err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "decode session").
			Wrap(err)
	}
	return &domain.Session{
		ID:        record.ID,
		UserID:    record.UserID,
		TokenHash: record.TokenHash,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if err := r.rdb.Del(ctx, sessionKey(tokenHash)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DeleteExpired always reports zero; Redis evicts expired keys itself.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func sessionKey(tokenHash string) string {
	return sessionKeyPrefix + tokenHash
}
