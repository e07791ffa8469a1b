package main

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"authgate/internal/config"
	"authgate/internal/metrics"
	"authgate/internal/password"
	"authgate/internal/repository"
	redisrepo "authgate/internal/repository/redis"
	"authgate/internal/repository/sqlite"
	"authgate/internal/service"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg      config.Config
	logger   *logrus.Logger
	db       *sql.DB
	rdb      *goredis.Client
	registry *prometheus.Registry

	users    repository.UserRepository
	sessions repository.SessionRepository
	session  service.SessionService
	auth     service.UserService
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// newApp opens storage and builds the services. When useRedis is set and the
// configured backend is redis, sessions live in Redis instead of SQLite.
func newApp(ctx context.Context, cfg config.Config, logger *logrus.Logger, useRedis bool) (*app, error) {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, oops.Code("STORAGE_OPEN_FAILED").With("path", cfg.Database.Path).Wrap(err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
		users:    sqlite.NewUserRepository(db),
		sessions: sqlite.NewSessionRepository(db),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.users.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.sessions.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if useRedis && cfg.Session.Backend == config.BackendRedis {
		rdb, err := redisrepo.Connect(ctx, redisrepo.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, oops.Code("STORAGE_OPEN_FAILED").With("redis_addr", cfg.Redis.Addr).Wrap(err)
		}
		a.rdb = rdb
		a.sessions = redisrepo.NewSessionRepository(rdb)
		logger.Infof("using redis session store at %s", cfg.Redis.Addr)
	}

	hasher, err := password.New(cfg.Auth.Hasher, cfg.Auth.BcryptCost)
	if err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New(a.registry)
	a.session = service.NewSessionService(a.sessions, a.users, cfg.Session.TTL, logger, m)
	a.auth, err = service.NewUserService(a.users, a.session, hasher, logger, m)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warnf("close redis: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warnf("close database: %v", err)
	}
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg), nil
}
