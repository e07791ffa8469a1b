package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
	"authgate/internal/metrics"
	"authgate/internal/repository"
)

const tokenBytes = 32

// SessionService binds opaque client tokens to users.
type SessionService interface {
	// Login opens a new session for user and returns the token to hand to the client.
	Login(ctx context.Context, user *domain.User) (string, *domain.Session, error)
	// Resolve returns the user behind token, or nil when the caller is anonymous.
	Resolve(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionOption customises a SessionService.
type SessionOption func(*sessionService)

// WithClock replaces time.Now as the source of session timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *sessionService) {
		if now != nil {
			s.now = now
		}
	}
}

type sessionService struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	ttl      time.Duration
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSessionService(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	ttl time.Duration,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
	opts ...SessionOption,
) SessionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &sessionService{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sessionService) Login(ctx context.Context, user *domain.User) (string, *domain.Session, error) {
	if user == nil || user.ID <= 0 {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			Wrapf(domain.ErrValidation, "session requires a stored user")
	}

	token, err := newToken()
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	now := s.now().UTC()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"session_id": session.ID,
	}).Debug("session created")
	return token, session, nil
}

func (s *sessionService) Resolve(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}

	tokenHash := hashToken(token)
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if !session.Authenticated(s.now()) {
		if err := s.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
			s.logger.WithError(err).WithField("session_id", session.ID).Warn("failed to drop expired session")
		}
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.WithFields(logrus.Fields{
			"user_id":    session.UserID,
			"session_id": session.ID,
		}).Info("session refers to a missing user")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

func (s *sessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByTokenHash(ctx, hashToken(token)); err != nil {
		return err
	}
	s.metrics.ObserveLogout()
	return nil
}

func (s *sessionService) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.metrics.ObservePurged(removed)
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("purged expired sessions")
	}
	return removed, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
