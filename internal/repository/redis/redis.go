package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const (
	connectTimeout = 5 * time.Second
	opTimeout      = 2 * time.Second
)

// Config holds the session store connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds the initial ping. Zero means connectTimeout.
	Timeout time.Duration
}

// Connect returns a client for the session store once it answers a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = connectTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", cfg.Addr).
			With("db", cfg.DB).
			Wrap(err)
	}
	return client, nil
}
