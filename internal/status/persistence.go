// Package status provides the sync status record and its persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=persistence.go Store

const (
	// StatusFileName is the default name of the status file
	StatusFileName = "status.json"
)

// Store defines the persistence contract for the sync status record.
// Writes are last-write-wins.
type Store interface {
	// GetStatus loads the current status record.
	// Returns a NotRunning status if nothing has been persisted yet.
	GetStatus(ctx context.Context) (*SyncStatus, error)

	// UpsertStatus replaces the persisted status record
	UpsertStatus(ctx context.Context, status *SyncStatus) error
}

// fileStore implements Store using a JSON file on the local filesystem
type fileStore struct {
	path string
}

// NewFileStore creates a new file-based status store writing to path
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

// UpsertStatus writes the status to a JSON file, replacing it atomically
func (f *fileStore) UpsertStatus(_ context.Context, status *SyncStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// GetStatus loads the status from the JSON file
func (f *fileStore) GetStatus(_ context.Context) (*SyncStatus, error) {
	// #nosec G304 -- path comes from validated configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NotRunningStatus(), nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}

	return &status, nil
}

// memoryStore keeps the status in process memory
type memoryStore struct {
	mu     sync.RWMutex
	status *SyncStatus
}

// NewMemoryStore creates a store that does not outlive the process
func NewMemoryStore() Store {
	return &memoryStore{status: NotRunningStatus()}
}

func (m *memoryStore) GetStatus(_ context.Context) (*SyncStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to prevent external modification
	return m.status.Copy(), nil
}

func (m *memoryStore) UpsertStatus(_ context.Context, status *SyncStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status.Copy()
	return nil
}
