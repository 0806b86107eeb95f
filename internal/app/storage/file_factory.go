package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
)

// FileFactory creates a status store persisted as a JSON file.
type FileFactory struct {
	path  string
	store status.Store
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory, ensuring the
// directory holding the status file exists.
func NewFileFactory(cfg *config.Config) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	path := cfg.GetStatusPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	slog.Info("Creating file-based status storage", "path", path)

	return &FileFactory{
		path:  path,
		store: status.NewFileStore(path),
	}, nil
}

// CreateStatusStore returns the file-backed store
func (f *FileFactory) CreateStatusStore(_ context.Context) (status.Store, error) {
	slog.Debug("Creating file-based status store", "path", f.path)
	return f.store, nil
}

// Cleanup is a no-op for file storage
func (*FileFactory) Cleanup() {
	slog.Debug("Cleaning up file storage factory (no-op)")
}
