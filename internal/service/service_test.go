package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authgate/internal/domain"
	"authgate/internal/metrics"
	"authgate/internal/password"
	"authgate/internal/repository"
	"authgate/internal/repository/sqlite"
	"authgate/internal/service"
)

// clock is a settable time source shared by a test and the services under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	session  service.SessionService
	auth     service.UserService
	metrics  *metrics.Metrics
	hook     *logtest.Hook
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(ctx))
	sessions := sqlite.NewSessionRepository(db)
	require.NoError(t, sessions.Init(ctx))

	return newFixtureWith(t, users, sessions)
}

func newFixtureWith(t *testing.T, users repository.UserRepository, sessions repository.SessionRepository) *fixture {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m := metrics.New(prometheus.NewRegistry())
	clk := newClock()

	hasher, err := password.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	sessionSvc := service.NewSessionService(sessions, users, time.Hour, logger, m, service.WithClock(clk.Now))
	authSvc, err := service.NewUserService(users, sessionSvc, hasher, logger, m)
	require.NoError(t, err)

	return &fixture{
		users:    users,
		sessions: sessions,
		session:  sessionSvc,
		auth:     authSvc,
		metrics:  m,
		hook:     hook,
		clock:    clk,
	}
}

// stubUserRepo lets tests inject storage faults.
type stubUserRepo struct {
	createErr error
	getErr    error
	user      *domain.User
}

func (s *stubUserRepo) Init(context.Context) error { return nil }

func (s *stubUserRepo) Create(_ context.Context, user *domain.User) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	user.ID = 1
	s.user = user
	return 1, nil
}

func (s *stubUserRepo) GetByUsername(context.Context, string) (*domain.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.user == nil {
		return nil, domain.ErrNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) GetByID(context.Context, int64) (*domain.User, error) {
	return s.GetByUsername(context.Background(), "")
}

// stubSessionRepo fails every call with err.
type stubSessionRepo struct {
	err error
}

func (s *stubSessionRepo) Init(context.Context) error { return nil }
func (s *stubSessionRepo) Create(context.Context, *domain.Session) error { return s.err }
func (s *stubSessionRepo) DeleteByTokenHash(context.Context, string) error { return s.err }
func (s *stubSessionRepo) Ping(context.Context) error { return s.err }

func (s *stubSessionRepo) GetByTokenHash(context.Context, string) (*domain.Session, error) {
	return nil, s.err
}

func (s *stubSessionRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, s.err
}
