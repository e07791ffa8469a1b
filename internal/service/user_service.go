package service

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
	"authgate/internal/metrics"
	"authgate/internal/password"
	"authgate/internal/repository"
)

// dummyPassword is hashed once so unknown usernames still pay for a verify.
const dummyPassword = "authgate-timing-equalizer"

// UserService describes account lifecycle operations.
type UserService interface {
	Register(ctx context.Context, username, password, role string) (*domain.User, error)
	// Authenticate checks the credentials and opens a session, returning its token.
	Authenticate(ctx context.Context, username, password string) (*domain.User, string, error)
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
}

type userService struct {
	users     repository.UserRepository
	sessions  SessionService
	hasher    password.Hasher
	dummyHash string
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
}

func NewUserService(
	users repository.UserRepository,
	sessions SessionService,
	hasher password.Hasher,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) (UserService, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_SETUP_FAILED").
			With("operation", "hash dummy password").
			Wrap(err)
	}
	return &userService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		dummyHash: dummyHash,
		logger:    logger,
		metrics:   m,
	}, nil
}

func (s *userService) Register(ctx context.Context, username, password, role string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	role = strings.TrimSpace(role)

	if username == "" || password == "" {
		s.metrics.ObserveRegistration(metrics.ResultValidation)
		return nil, oops.Code("AUTH_VALIDATION").
			Wrapf(domain.ErrValidation, "username and password are required")
	}
	if role == "" {
		role = domain.DefaultRole
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.metrics.ObserveRegistration(metrics.ResultValidation)
			return nil, oops.Code("AUTH_VALIDATION").
				With("username", username).
				Wrap(err)
		}
		s.metrics.ObserveRegistration(metrics.ResultError)
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateUsername) {
			s.metrics.ObserveRegistration(metrics.ResultDuplicate)
			s.logger.WithField("username", username).Info("registration rejected: username taken")
		} else {
			s.metrics.ObserveRegistration(metrics.ResultError)
		}
		return nil, err
	}

	s.metrics.ObserveRegistration(metrics.ResultSuccess)
	s.logger.WithFields(logrus.Fields{
		"username": user.Username,
		"user_id":  user.ID,
		"role":     user.Role,
	}).Info("user registered")
	return user.Sanitized(), nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.metrics.ObserveLogin(metrics.ResultValidation)
		return nil, "", oops.Code("AUTH_VALIDATION").
			Wrapf(domain.ErrValidation, "username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		return nil, "", s.rejectLogin(username)
	}
	if err != nil {
		s.metrics.ObserveLogin(metrics.ResultError)
		return nil, "", err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, "", s.rejectLogin(username)
	}

	token, session, err := s.sessions.Login(ctx, user)
	if err != nil {
		s.metrics.ObserveLogin(metrics.ResultError)
		return nil, "", err
	}

	s.metrics.ObserveLogin(metrics.ResultSuccess)
	s.logger.WithFields(logrus.Fields{
		"username":   user.Username,
		"user_id":    user.ID,
		"session_id": session.ID,
	}).Info("user logged in")
	return user.Sanitized(), token, nil
}

func (s *userService) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	return s.sessions.Resolve(ctx, token)
}

func (s *userService) Logout(ctx context.Context, token string) error {
	return s.sessions.Logout(ctx, token)
}

// rejectLogin gives unknown users and wrong passwords the same error.
func (s *userService) rejectLogin(username string) error {
	s.metrics.ObserveLogin(metrics.ResultInvalidCredentials)
	s.logger.WithField("username", username).Info("login rejected")
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(domain.ErrInvalidCredentials)
}
