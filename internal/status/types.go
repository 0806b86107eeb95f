package status

import (
	"errors"
	"fmt"
	"time"
)

// SyncState represents the externally visible state of the sync subsystem
type SyncState string

const (
	// SyncStateNotRunning means polling is disabled and no sync is scheduled
	SyncStateNotRunning SyncState = "NotRunning"

	// SyncStateRunning means polling is enabled and the last attempt did not fail
	SyncStateRunning SyncState = "Running"

	// SyncStateUnHealthy means polling is enabled but the last attempt failed
	SyncStateUnHealthy SyncState = "UnHealthy"
)

// ErrInvalidStatus is returned when a status record violates its invariants
var ErrInvalidStatus = errors.New("invalid sync status")

// SyncStatus is the persisted record describing the last known state of syncing
// and the time of the next scheduled attempt.
type SyncStatus struct {
	// Status is the current sync state
	Status SyncState `json:"syncStatus" yaml:"syncStatus"`

	// NextSyncTime is when the next attempt is expected.
	// It is nil exactly when Status is NotRunning.
	NextSyncTime *time.Time `json:"nextSyncTime" yaml:"nextSyncTime"`
}

// NotRunningStatus returns the record written when polling gets disabled
func NotRunningStatus() *SyncStatus {
	return &SyncStatus{Status: SyncStateNotRunning}
}

// RunningStatus returns the record written when polling gets enabled
func RunningStatus(next time.Time) *SyncStatus {
	return &SyncStatus{Status: SyncStateRunning, NextSyncTime: &next}
}

// Validate checks that NextSyncTime is nil exactly when Status is NotRunning
func (s *SyncStatus) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: status is nil", ErrInvalidStatus)
	}
	switch s.Status {
	case SyncStateNotRunning:
		if s.NextSyncTime != nil {
			return fmt.Errorf("%w: %s status must not carry a next sync time", ErrInvalidStatus, s.Status)
		}
	case SyncStateRunning, SyncStateUnHealthy:
		if s.NextSyncTime == nil {
			return fmt.Errorf("%w: %s status requires a next sync time", ErrInvalidStatus, s.Status)
		}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidStatus, s.Status)
	}
	return nil
}

// Copy returns a deep copy of the status
func (s *SyncStatus) Copy() *SyncStatus {
	if s == nil {
		return nil
	}
	out := &SyncStatus{Status: s.Status}
	if s.NextSyncTime != nil {
		next := *s.NextSyncTime
		out.NextSyncTime = &next
	}
	return out
}
