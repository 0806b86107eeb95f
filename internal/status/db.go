package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	getStatusQuery = `SELECT status, next_sync_time FROM sync_status WHERE id = 1`

	upsertStatusQuery = `
INSERT INTO sync_status (id, status, next_sync_time, updated_at)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    next_sync_time = EXCLUDED.next_sync_time,
    updated_at = EXCLUDED.updated_at`
)

// DBTX is the subset of pgxpool.Pool used by the database store
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type dbStore struct {
	db DBTX
}

// NewDBStore creates a new database-backed status store.
// The pool is usually a *pgxpool.Pool.
func NewDBStore(db DBTX) Store {
	return &dbStore{db: db}
}

func (d *dbStore) GetStatus(ctx context.Context) (*SyncStatus, error) {
	var (
		state string
		next  *time.Time
	)
	err := d.db.QueryRow(ctx, getStatusQuery).Scan(&state, &next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotRunningStatus(), nil
		}
		return nil, fmt.Errorf("failed to query sync status: %w", err)
	}

	return &SyncStatus{
		Status:       SyncState(state),
		NextSyncTime: next,
	}, nil
}

func (d *dbStore) UpsertStatus(ctx context.Context, status *SyncStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	if _, err := d.db.Exec(ctx, upsertStatusQuery, string(status.Status), status.NextSyncTime, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert sync status: %w", err)
	}
	return nil
}
