package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const envPrefix = "AUTHGATE"

// Session store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
		Mode string
	}
	Database struct {
		Path string
	}
	Auth struct {
		Hasher     string
		BcryptCost int
	}
	Session struct {
		Backend       string
		TTL           time.Duration
		CookieName    string
		CookieSecure  bool
		PurgeInterval time.Duration
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	CORS struct {
		AllowOrigins []string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables, an optional .env file
// and an optional config file. When path is empty a config.{yaml,json,toml}
// in the working directory is used if present.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // optional file, existing env wins

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/users.db")
	v.SetDefault("auth.hasher", "bcrypt")
	v.SetDefault("auth.bcryptcost", bcrypt.DefaultCost)
	v.SetDefault("session.backend", BackendSQLite)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cookiename", "authgate_session")
	v.SetDefault("session.cookiesecure", false)
	v.SetDefault("session.purgeinterval", "10m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cors.alloworigins", []string{"http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, oops.Code("CONFIG_READ_FAILED").
				With("path", path).
				Wrap(err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // optional file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid.With("server.mode", c.Server.Mode).Errorf("unknown server mode %q", c.Server.Mode)
	}

	switch strings.ToLower(c.Auth.Hasher) {
	case "bcrypt", "argon2id":
	default:
		return invalid.With("auth.hasher", c.Auth.Hasher).Errorf("unknown password hasher %q", c.Auth.Hasher)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return invalid.With("auth.bcryptcost", c.Auth.BcryptCost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch c.Session.Backend {
	case BackendSQLite, BackendRedis:
	default:
		return invalid.With("session.backend", c.Session.Backend).Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return invalid.With("session.ttl", c.Session.TTL).Errorf("session ttl must be positive")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return invalid.Errorf("session cookie name is required")
	}
	if c.Database.Path == "" {
		return invalid.Errorf("database path is required")
	}
	return nil
}
