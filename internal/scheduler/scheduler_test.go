package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-sync-scheduler/internal/auth"
	"github.com/stacklok/toolhive-sync-scheduler/internal/health"
	"github.com/stacklok/toolhive-sync-scheduler/internal/settings"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
	"github.com/stacklok/toolhive-sync-scheduler/internal/syncexec"
)

const (
	testStep    = 2 * time.Millisecond
	testTimeout = 5 * time.Second
	testTick    = 5 * time.Millisecond
)

// scriptedSource serves whatever snapshot the test last set
type scriptedSource struct {
	mu   sync.Mutex
	snap settings.Snapshot
	err  error
}

func (s *scriptedSource) GetSettings(context.Context) (*settings.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := s.snap
	return &out, nil
}

func (s *scriptedSource) set(snap settings.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.err = nil
}

func (s *scriptedSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// recordingStore keeps every upserted record
type recordingStore struct {
	mu      sync.Mutex
	current *status.SyncStatus
	history []*status.SyncStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{current: status.NotRunningStatus()}
}

func (r *recordingStore) GetStatus(context.Context) (*status.SyncStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Copy(), nil
}

func (r *recordingStore) UpsertStatus(_ context.Context, s *status.SyncStatus) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s.Copy()
	r.history = append(r.history, s.Copy())
	return nil
}

func (r *recordingStore) upserts() []*status.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*status.SyncStatus(nil), r.history...)
}

func (r *recordingStore) latest() *status.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Copy()
}

// countingExecutor counts calls and delegates to fn
type countingExecutor struct {
	calls atomic.Int32
	fn    func() (*syncexec.Result, error)
}

func (c *countingExecutor) Sync(context.Context, int, bool) (*syncexec.Result, error) {
	c.calls.Add(1)
	if c.fn == nil {
		return &syncexec.Result{Success: true}, nil
	}
	return c.fn()
}

type fixture struct {
	source   *scriptedSource
	store    *recordingStore
	executor *countingExecutor
	signal   *health.Signal
	valid    atomic.Bool
	checks   atomic.Int32
}

func newFixture(snap settings.Snapshot) *fixture {
	f := &fixture{
		source:   &scriptedSource{snap: snap},
		store:    newRecordingStore(),
		executor: &countingExecutor{},
		signal:   health.NewSignal(),
	}
	return f
}

func (f *fixture) checker() auth.CredentialChecker {
	return auth.CredentialCheckerFunc(func(context.Context) (bool, error) {
		f.checks.Add(1)
		return f.valid.Load(), nil
	})
}

func (f *fixture) newScheduler(t *testing.T) Scheduler {
	t.Helper()

	s, err := New(
		NewStateTracker(f.source),
		NewReadinessGate(f.checker()),
		NewOrchestrator(f.executor, f.store, f.signal, WithOrchestratorClock(fixedClock)),
		f.store,
		WithStepSize(testStep),
		WithClock(fixedClock),
	)
	require.NoError(t, err)
	return s
}

// run starts the scheduler and returns a func that cancels it and waits for Start to return
func run(t *testing.T, s Scheduler) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-errCh:
				assert.NoError(t, err)
			case <-time.After(testTimeout):
				t.Error("scheduler did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	store := status.NewMemoryStore()
	tracker := NewStateTracker(settings.NewStaticSource(settings.Snapshot{}))
	gate := NewReadinessGate(nil)
	orch := NewOrchestrator(nil, store, health.NewSignal())

	_, err := New(nil, gate, orch, store)
	require.Error(t, err)

	_, err = New(tracker, gate, orch, nil)
	require.Error(t, err)

	_, err = New(tracker, gate, orch, store, WithStepSize(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step size must be positive")

	s, err := New(tracker, gate, orch, store)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestScheduler_DisabledNeverSyncs(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: false, PollingIntervalSeconds: 300})
	stop := run(t, f.newScheduler(t))

	// let the loop spin through many disabled iterations
	time.Sleep(50 * time.Millisecond)
	stop()

	assert.Zero(t, f.executor.calls.Load())
	upserts := f.store.upserts()
	require.Len(t, upserts, 1, "only the first evaluation is a transition")
	assert.Equal(t, status.SyncStateNotRunning, upserts[0].Status)
	assert.Nil(t, upserts[0].NextSyncTime)
}

func TestScheduler_BlockedOnCredentialNeverSyncs(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{
		PollingEnabled:         true,
		PollingIntervalSeconds: 300,
		TwoFactorAuthEnabled:   true,
	})
	stop := run(t, f.newScheduler(t))

	require.Eventually(t, func() bool { return f.checks.Load() >= 5 }, testTimeout, testTick,
		"gate should be rechecked every step")
	stop()

	assert.Zero(t, f.executor.calls.Load())
	upserts := f.store.upserts()
	require.Len(t, upserts, 1)
	assert.Equal(t, status.SyncStateRunning, upserts[0].Status)
	require.NotNil(t, upserts[0].NextSyncTime)
	assert.True(t, attemptStart.Equal(*upserts[0].NextSyncTime))
}

func TestScheduler_SyncsOnceCredentialArrives(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{
		PollingEnabled:         true,
		PollingIntervalSeconds: 300,
		TwoFactorAuthEnabled:   true,
	})
	run(t, f.newScheduler(t))

	require.Eventually(t, func() bool { return f.checks.Load() >= 3 }, testTimeout, testTick)
	assert.Zero(t, f.executor.calls.Load())

	f.valid.Store(true)
	require.Eventually(t, func() bool { return f.executor.calls.Load() == 1 }, testTimeout, testTick)
}

func TestScheduler_SuccessfulSync(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: true, PollingIntervalSeconds: 300, NumItemsToSync: 10})
	f.signal.Set(health.Unhealthy)
	stop := run(t, f.newScheduler(t))

	require.Eventually(t, func() bool { return len(f.store.upserts()) == 2 }, testTimeout, testTick)
	// the 300s wait keeps a second attempt from starting
	time.Sleep(20 * time.Millisecond)
	stop()

	assert.Equal(t, int32(1), f.executor.calls.Load())
	assert.True(t, f.signal.IsHealthy())

	latest := f.store.latest()
	assert.Equal(t, status.SyncStateRunning, latest.Status)
	require.NotNil(t, latest.NextSyncTime)
	assert.True(t, attemptStart.Add(300*time.Second).Equal(*latest.NextSyncTime))
}

func TestScheduler_ToggleAbandonsIntervalWait(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: true, PollingIntervalSeconds: 300})
	run(t, f.newScheduler(t))

	require.Eventually(t, func() bool { return f.executor.calls.Load() == 1 }, testTimeout, testTick)

	// disabling mid-wait ends the 300s wait within a step
	f.source.set(settings.Snapshot{PollingEnabled: false, PollingIntervalSeconds: 300})
	require.Eventually(t, func() bool {
		return f.store.latest().Status == status.SyncStateNotRunning
	}, testTimeout, testTick)
	assert.Nil(t, f.store.latest().NextSyncTime)

	// re-enabling starts a new attempt without waiting out any interval
	f.source.set(settings.Snapshot{PollingEnabled: true, PollingIntervalSeconds: 300})
	require.Eventually(t, func() bool { return f.executor.calls.Load() == 2 }, testTimeout, testTick)
}

func TestScheduler_FaultDoesNotStopLoop(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: true, PollingIntervalSeconds: 1})
	f.executor.fn = func() (*syncexec.Result, error) {
		panic("engine exploded")
	}
	run(t, f.newScheduler(t))

	require.Eventually(t, func() bool { return f.executor.calls.Load() >= 1 }, testTimeout, testTick)
	require.Eventually(t, func() bool {
		return f.store.latest().Status == status.SyncStateUnHealthy
	}, testTimeout, testTick)
	assert.False(t, f.signal.IsHealthy())

	latest := f.store.latest()
	require.NotNil(t, latest.NextSyncTime)
	assert.True(t, attemptStart.Add(time.Second).Equal(*latest.NextSyncTime))

	// the next attempt happens on the regular one second cadence
	require.Eventually(t, func() bool { return f.executor.calls.Load() >= 2 }, testTimeout, testTick)
}

func TestScheduler_SettingsFailureBeforeFirstFetch(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: true, PollingIntervalSeconds: 300})
	f.source.fail(errors.New("settings unavailable"))
	run(t, f.newScheduler(t))

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, f.executor.calls.Load())
	assert.Empty(t, f.store.upserts())

	f.source.set(settings.Snapshot{PollingEnabled: true, PollingIntervalSeconds: 300})
	require.Eventually(t, func() bool { return f.executor.calls.Load() == 1 }, testTimeout, testTick)
}

func TestScheduler_SettingsFailureKeepsPolling(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: false})
	run(t, f.newScheduler(t))

	require.Eventually(t, func() bool { return len(f.store.upserts()) == 1 }, testTimeout, testTick)

	// failures keep the disabled configuration and write nothing
	f.source.fail(errors.New("settings unavailable"))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, f.store.upserts(), 1)
	assert.Zero(t, f.executor.calls.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	f := newFixture(settings.Snapshot{PollingEnabled: false})
	s := f.newScheduler(t)

	require.NoError(t, s.Stop(), "stop before start is a no-op")

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return len(f.store.upserts()) == 1 }, testTimeout, testTick)
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, s.Stop())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("Start did not return after Stop")
	}
}

// blockingExecutor holds the sync open until released and reports whether
// its context was cancelled while it ran
type blockingExecutor struct {
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
	canceled atomic.Bool
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingExecutor) Sync(ctx context.Context, _ int, _ bool) (*syncexec.Result, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	b.canceled.Store(ctx.Err() != nil)
	return &syncexec.Result{Success: true}, nil
}

func TestScheduler_ShutdownWaitsForInFlightSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		shutdown func(s Scheduler, cancel context.CancelFunc)
	}{
		{
			name:     "stop",
			shutdown: func(s Scheduler, _ context.CancelFunc) { _ = s.Stop() },
		},
		{
			name:     "context cancel",
			shutdown: func(_ Scheduler, cancel context.CancelFunc) { cancel() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newRecordingStore()
			exec := newBlockingExecutor()
			s, err := New(
				NewStateTracker(settings.NewStaticSource(settings.Snapshot{
					PollingEnabled:         true,
					PollingIntervalSeconds: 300,
				})),
				NewReadinessGate(nil),
				NewOrchestrator(exec, store, health.NewSignal(), WithOrchestratorClock(fixedClock)),
				store,
				WithStepSize(testStep),
				WithClock(fixedClock),
			)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			startErr := make(chan error, 1)
			go func() { startErr <- s.Start(ctx) }()

			select {
			case <-exec.started:
			case <-time.After(testTimeout):
				t.Fatal("sync never started")
			}

			shutdownDone := make(chan struct{})
			go func() {
				tt.shutdown(s, cancel)
				<-startErr
				close(shutdownDone)
			}()

			select {
			case <-shutdownDone:
				t.Fatal("shutdown returned while a sync was in flight")
			case <-time.After(50 * time.Millisecond):
			}

			close(exec.release)
			select {
			case <-shutdownDone:
			case <-time.After(testTimeout):
				t.Fatal("shutdown did not complete after the sync finished")
			}

			assert.Equal(t, int32(1), exec.calls.Load())
			assert.False(t, exec.canceled.Load(), "sync context must not be cancelled by shutdown")

			upserts := store.upserts()
			require.Len(t, upserts, 2, "enable transition plus one post-attempt record")
			final := upserts[1]
			assert.Equal(t, status.SyncStateRunning, final.Status)
			require.NotNil(t, final.NextSyncTime)
			assert.True(t, attemptStart.Add(300*time.Second).Equal(*final.NextSyncTime))
		})
	}
}
