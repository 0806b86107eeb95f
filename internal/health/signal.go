// Package health holds the process-wide health signal derived from sync outcomes.
package health

import "sync/atomic"

// State is the binary health of the sync subsystem
type State int32

const (
	// Healthy means the most recent sync attempt succeeded (or none has run yet)
	Healthy State = iota
	// Unhealthy means the most recent sync attempt failed or faulted
	Unhealthy
)

// String returns the human readable name of the state
func (s State) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Unhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}

// Signal is a gauge-like health value that can be read at any time.
// The zero value reports Healthy.
type Signal struct {
	state atomic.Int32
}

// NewSignal creates a signal initialised to Healthy
func NewSignal() *Signal {
	s := &Signal{}
	s.Set(Healthy)
	return s
}

// Set stores the new state
func (s *Signal) Set(state State) {
	s.state.Store(int32(state))
}

// Get returns the current state
func (s *Signal) Get() State {
	return State(s.state.Load())
}

// IsHealthy reports whether the current state is Healthy
func (s *Signal) IsHealthy() bool {
	return s.Get() == Healthy
}
