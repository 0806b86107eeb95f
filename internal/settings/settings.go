// Package settings provides the application settings the scheduler polls on
// every iteration.
package settings

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=settings.go Source

const (
	// DefaultPollingInterval is used when the settings carry no positive interval
	DefaultPollingInterval = 300 * time.Second
)

// ErrSettingsNotFound is returned when the settings document does not exist
var ErrSettingsNotFound = errors.New("settings not found")

// Snapshot is an immutable view of the settings fetched in one scheduler iteration
type Snapshot struct {
	// PollingEnabled turns periodic syncing on or off
	PollingEnabled bool `yaml:"pollingEnabled" json:"pollingEnabled"`

	// PollingIntervalSeconds is the wait between the end of one attempt and the next evaluation
	PollingIntervalSeconds int `yaml:"pollingIntervalSeconds" json:"pollingIntervalSeconds"`

	// NumItemsToSync is passed through to the sync engine
	NumItemsToSync int `yaml:"numItemsToSync" json:"numItemsToSync"`

	// TwoFactorAuthEnabled gates syncing on a valid credential
	TwoFactorAuthEnabled bool `yaml:"twoStepVerificationEnabled" json:"twoStepVerificationEnabled"`
}

// Interval returns the polling interval as a duration
func (s Snapshot) Interval() time.Duration {
	if s.PollingIntervalSeconds <= 0 {
		return DefaultPollingInterval
	}
	return time.Duration(s.PollingIntervalSeconds) * time.Second
}

// Source fetches the current settings
type Source interface {
	// GetSettings returns the current settings snapshot.
	// It may be slow and may fail.
	GetSettings(ctx context.Context) (*Snapshot, error)
}

type staticSource struct {
	snapshot Snapshot
}

// NewStaticSource returns a Source that always yields the same snapshot
func NewStaticSource(snapshot Snapshot) Source {
	return &staticSource{snapshot: snapshot}
}

func (s *staticSource) GetSettings(_ context.Context) (*Snapshot, error) {
	out := s.snapshot
	return &out, nil
}
