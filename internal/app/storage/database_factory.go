package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-sync-scheduler/database"
	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
	"github.com/stacklok/toolhive-sync-scheduler/internal/db"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
)

// DatabaseFactory creates a status store backed by PostgreSQL.
type DatabaseFactory struct {
	pool *pgxpool.Pool
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*databaseFactoryConfig)

type databaseFactoryConfig struct {
	poolOpts []db.Option
	migrate  func(connString string) error
}

// WithPoolOptions forwards options to the connection pool constructor
func WithPoolOptions(opts ...db.Option) DatabaseFactoryOption {
	return func(c *databaseFactoryConfig) {
		c.poolOpts = append(c.poolOpts, opts...)
	}
}

// WithMigrator replaces the function applying schema migrations on start
func WithMigrator(fn func(connString string) error) DatabaseFactoryOption {
	return func(c *databaseFactoryConfig) {
		c.migrate = fn
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// When database.migrateOnStart is set, pending migrations are applied
// before the pool is opened.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database status type")
	}

	fc := &databaseFactoryConfig{migrate: MigrateUp}
	for _, opt := range opts {
		opt(fc)
	}

	slog.Info("Creating database-backed status storage",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database,
	)

	if cfg.Database.MigrateOnStart {
		connStr, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build connection string: %w", err)
		}
		if err := fc.migrate(connStr); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database, fc.poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return &DatabaseFactory{pool: pool}, nil
}

// CreateStatusStore returns a store reading and writing the sync_status table
func (d *DatabaseFactory) CreateStatusStore(_ context.Context) (status.Store, error) {
	slog.Debug("Creating database-backed status store")
	return status.NewDBStore(d.pool), nil
}

// Cleanup closes the database connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// MigrateUp applies every pending migration to the database at connString
func MigrateUp(connString string) error {
	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return err
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("Failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	slog.Info("Database migrations applied")
	return nil
}
