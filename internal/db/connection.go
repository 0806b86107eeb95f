// Package db opens the PostgreSQL connection pool backing the database status store.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
)

const (
	// DefaultConnectTimeout bounds how long startup waits for the database
	DefaultConnectTimeout = time.Minute

	defaultMaxConns = 4
)

// Pinger is anything that can check database liveness
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures pool creation
type Option func(*options)

type options struct {
	connectTimeout time.Duration
	backOff        backoff.BackOff
}

// WithConnectTimeout sets how long to keep retrying the initial ping
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

// WithBackOff overrides the retry policy for the initial ping
func WithBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		o.backOff = b
	}
}

// NewPool creates a connection pool and waits until the database answers
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	o := &options{connectTimeout: DefaultConnectTimeout}
	for _, opt := range opts {
		opt(o)
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = min(cfg.MaxIdleConns, poolConfig.MaxConns)
	}
	if lifetime := cfg.GetConnMaxLifetime(); lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	if err := PingWithRetry(ctx, pool, o.connectTimeout, o.backOff); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("Database connection established",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"user", cfg.User,
	)
	return pool, nil
}

// PingWithRetry pings until the database answers or timeout elapses.
// A nil policy uses exponential backoff.
func PingWithRetry(ctx context.Context, p Pinger, timeout time.Duration, policy backoff.BackOff) error {
	if policy == nil {
		policy = backoff.NewExponentialBackOff()
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := p.Ping(ctx); err != nil {
			slog.Warn("Database not ready", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
	}
	return nil
}
