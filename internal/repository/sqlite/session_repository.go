package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"authgate/internal/domain"
	"authgate/internal/repository"
)

// Sessions carry no foreign key to users: a dangling user_id resolves to anonymous.
const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSessionsTable); err != nil {
		return oops.Code("SESSION_INIT_FAILED").
			With("operation", "create sessions table").
			Wrap(err)
	}
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.CreatedAt.UTC(),
		session.ExpiresAt.UTC(),
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID).
			Wrap(err)
	}
	return nil
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.QueryRowContext(ctx, `
SELECT id, user_id, token_hash, created_at, expires_at
FROM sessions
WHERE token_hash = ?`,
		tokenHash,
	).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(domain.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return &session, nil
}

func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}
	return n, nil
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
