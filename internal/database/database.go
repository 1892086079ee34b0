// Package database opens the PostgreSQL pool behind the postgres tour store.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes how to reach Postgres. DATABASE_URL, when set, replaces
// the discrete fields.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// ConnectAttempts bounds how often Connect pings before giving up, so the
	// API can start alongside a database container that is still booting.
	ConnectAttempts uint64
}

// ConfigFromEnv reads the DB_* variables. Unparseable numbers fall back to
// their defaults.
func ConfigFromEnv() Config {
	return Config{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            env("DB_HOST", "localhost"),
		Port:            envInt("DB_PORT", 5432),
		User:            env("DB_USER", "fieldtour"),
		Password:        env("DB_PASSWORD", "localdev"),
		Name:            env("DB_NAME", "fieldtour"),
		SSLMode:         env("DB_SSL_MODE", "disable"),
		MaxConns:        int32(envInt("DB_MAX_CONNS", 10)), //nolint:gosec // small config value
		MinConns:        int32(envInt("DB_MIN_CONNS", 2)),  //nolint:gosec // small config value
		MaxConnLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectAttempts: uint64(envInt("DB_CONNECT_ATTEMPTS", 5)), //nolint:gosec // small config value
	}
}

// DSN returns the connection URL. Credentials are escaped.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connect opens a pool and pings it, retrying with exponential backoff up to
// ConnectAttempts times.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	attempts := cfg.ConnectAttempts
	if attempts > 0 {
		attempts--
	}
	ping := func() error { return pool.Ping(ctx) }
	if err := backoff.Retry(ping, backoff.WithContext(backoff.WithMaxRetries(bo, attempts), ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}
