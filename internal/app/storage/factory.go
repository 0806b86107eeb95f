// Package storage builds the sync status store selected by configuration.
// Each factory owns the resources behind its store (a connection pool, a
// data directory) and releases them on Cleanup.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
)

// Factory creates the status store backing the scheduler and the status API.
type Factory interface {
	// CreateStatusStore returns the store for the sync status record.
	// Repeated calls return stores sharing the same backend.
	CreateStatusStore(ctx context.Context) (status.Store, error)

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured status type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStatusType() {
	case config.StatusTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StatusTypeFile:
		return NewFileFactory(cfg)
	case config.StatusTypeMemory:
		return NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown status type: %s", cfg.GetStatusType())
	}
}

// MemoryFactory keeps the status record in process memory.
type MemoryFactory struct {
	store status.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a factory whose store lives as long as the process
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{store: status.NewMemoryStore()}
}

// CreateStatusStore returns the shared in-memory store
func (m *MemoryFactory) CreateStatusStore(_ context.Context) (status.Store, error) {
	return m.store, nil
}

// Cleanup is a no-op
func (*MemoryFactory) Cleanup() {}
