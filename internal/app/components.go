package app

import (
	"context"

	"github.com/stacklok/toolhive-sync-scheduler/internal/health"
	"github.com/stacklok/toolhive-sync-scheduler/internal/scheduler"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
)

// settingsWatcher invalidates cached settings until ctx is cancelled
type settingsWatcher interface {
	Watch(ctx context.Context) error
}

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Scheduler runs the background sync loop
	Scheduler scheduler.Scheduler

	// Health is the signal shared by the orchestrator and the readiness probe
	Health *health.Signal

	// StatusStore holds the persisted sync status record
	StatusStore status.Store

	// SettingsWatcher is set when the settings file is watched for changes
	SettingsWatcher settingsWatcher
}
