package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
)

// ErrAlreadyStarted is returned when Start is called on a running scheduler
var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler runs the sync control loop
type Scheduler interface {
	// Start runs the loop until ctx is cancelled or Stop is called.
	// It blocks and returns nil on a normal stop.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for the current step to finish
	Stop() error
}

// defaultScheduler is the default implementation of Scheduler
type defaultScheduler struct {
	tracker      *StateTracker
	gate         *ReadinessGate
	orchestrator *Orchestrator
	store        status.Store

	stepSize time.Duration
	now      func() time.Time

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option configures the scheduler
type Option func(*defaultScheduler)

// WithStepSize sets the sleep granularity of the loop
func WithStepSize(step time.Duration) Option {
	return func(s *defaultScheduler) {
		s.stepSize = step
	}
}

// WithClock overrides the clock used for transition timestamps
func WithClock(now func() time.Time) Option {
	return func(s *defaultScheduler) {
		s.now = now
	}
}

// New creates a scheduler from its components
func New(
	tracker *StateTracker,
	gate *ReadinessGate,
	orchestrator *Orchestrator,
	store status.Store,
	opts ...Option,
) (Scheduler, error) {
	if tracker == nil || gate == nil || orchestrator == nil || store == nil {
		return nil, fmt.Errorf("tracker, gate, orchestrator and store are required")
	}

	s := &defaultScheduler{
		tracker:      tracker,
		gate:         gate,
		orchestrator: orchestrator,
		store:        store,
		stepSize:     DefaultStepSize,
		now:          time.Now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.stepSize <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %s", s.stepSize)
	}
	return s, nil
}

// Start runs the control loop
func (s *defaultScheduler) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancelFunc != nil {
		s.mu.Unlock()
		cancel()
		return ErrAlreadyStarted
	}
	s.cancelFunc = cancel
	s.mu.Unlock()

	slog.InfoContext(loopCtx, "Starting sync scheduler", "step_size", s.stepSize)
	defer func() {
		cancel()
		close(s.done)
		slog.Info("Sync scheduler stopped")
	}()

	for loopCtx.Err() == nil {
		s.iterate(loopCtx)
	}
	return nil
}

// Stop cancels the loop and blocks until Start has returned
func (s *defaultScheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancelFunc
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	slog.Info("Stopping sync scheduler")
	cancel()
	<-s.done
	return nil
}

// iterate runs one pass of the loop. ctx is only used to observe
// cancellation; collaborators get a detached context.
func (s *defaultScheduler) iterate(ctx context.Context) {
	work := context.WithoutCancel(ctx)

	s.refresh(work)
	if !s.tracker.Ready() {
		s.sleepStep(ctx)
		return
	}

	if s.tracker.HasChanged() {
		s.persistTransition(work)
	}
	s.tracker.MarkObserved()

	if !s.tracker.Enabled() {
		s.sleepStep(ctx)
		return
	}

	// readiness is evaluated against fresh settings
	s.refresh(work)
	if !s.tracker.Enabled() {
		return
	}
	snap := s.tracker.Snapshot()
	if s.gate.IsBlocked(work, snap) {
		slog.InfoContext(work, "Two-step verification is enabled and no valid credential is available, waiting")
		s.sleepStep(ctx)
		return
	}

	if ctx.Err() != nil {
		return
	}
	s.orchestrator.RunOnce(work, snap)

	Wait(ctx, s.tracker.Interval(), s.stepSize, func(context.Context) bool {
		s.refresh(work)
		return s.tracker.HasChanged()
	})
}

func (s *defaultScheduler) refresh(ctx context.Context) {
	if err := s.tracker.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Keeping previous polling settings", "error", err)
	}
}

func (s *defaultScheduler) sleepStep(ctx context.Context) {
	Wait(ctx, s.stepSize, s.stepSize, nil)
}

// persistTransition writes the status record for an enabled/disabled flip
func (s *defaultScheduler) persistTransition(ctx context.Context) {
	record := loadStatus(ctx, s.store)
	if s.tracker.Enabled() {
		now := s.now()
		record.Status = status.SyncStateRunning
		record.NextSyncTime = &now
		slog.InfoContext(ctx, "Sync polling enabled", "interval", s.tracker.Interval())
	} else {
		record.Status = status.SyncStateNotRunning
		record.NextSyncTime = nil
		slog.InfoContext(ctx, "Sync polling disabled")
	}

	if err := s.store.UpsertStatus(ctx, record); err != nil {
		slog.ErrorContext(ctx, "Failed to persist sync status transition", "status", record.Status, "error", err)
	}
}
