package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/toolhive-sync-scheduler/internal/settings"
)

var errNilSnapshot = errors.New("settings source returned no snapshot")

// StateTracker holds the scheduler state derived from the latest settings.
// It is owned by the loop goroutine and is not safe for concurrent use.
type StateTracker struct {
	source settings.Source

	snapshot settings.Snapshot
	fetched  bool

	// nil until the first transition has been observed
	previousEnabled *bool
}

// NewStateTracker creates a tracker reading from source.
// Until the first successful Refresh the tracker reports polling disabled.
func NewStateTracker(source settings.Source) *StateTracker {
	return &StateTracker{source: source}
}

// Refresh fetches the settings and overwrites the tracked state.
// On failure the previous state is kept and the error is returned.
func (t *StateTracker) Refresh(ctx context.Context) error {
	snap, err := t.source.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch settings: %w", err)
	}
	if snap == nil {
		return errNilSnapshot
	}
	t.snapshot = *snap
	t.fetched = true
	return nil
}

// Ready reports whether at least one Refresh has succeeded
func (t *StateTracker) Ready() bool {
	return t.fetched
}

// Enabled reports whether polling is on
func (t *StateTracker) Enabled() bool {
	return t.snapshot.PollingEnabled
}

// Interval returns the polling interval
func (t *StateTracker) Interval() time.Duration {
	return t.snapshot.Interval()
}

// Snapshot returns a copy of the latest settings
func (t *StateTracker) Snapshot() settings.Snapshot {
	return t.snapshot
}

// HasChanged reports whether Enabled differs from the last observed value.
// It is true before anything has been observed.
func (t *StateTracker) HasChanged() bool {
	return t.previousEnabled == nil || *t.previousEnabled != t.Enabled()
}

// MarkObserved records the current Enabled value as seen
func (t *StateTracker) MarkObserved() {
	enabled := t.Enabled()
	t.previousEnabled = &enabled
}
