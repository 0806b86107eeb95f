package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-sync-scheduler/internal/health"
	"github.com/stacklok/toolhive-sync-scheduler/internal/otel"
	"github.com/stacklok/toolhive-sync-scheduler/internal/settings"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
	"github.com/stacklok/toolhive-sync-scheduler/internal/syncexec"
	"github.com/stacklok/toolhive-sync-scheduler/internal/telemetry"
)

const (
	// SyncAttemptSpanName names the span wrapping one sync attempt
	SyncAttemptSpanName = "scheduler.sync_attempt"
)

// Orchestrator runs a single sync attempt and records its outcome
type Orchestrator struct {
	executor syncexec.Executor
	store    status.Store
	health   *health.Signal

	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithSyncMetrics sets the metrics recorded after every attempt
func WithSyncMetrics(metrics *telemetry.SyncMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithTracer sets the tracer used for the attempt span
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithOrchestratorClock overrides the clock used for attempt timing
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(
	executor syncexec.Executor,
	store status.Store,
	signal *health.Signal,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		store:    store,
		health:   signal,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOnce performs one sync attempt with the item count from snap.
//
// The health signal is set from the outcome. Whatever the outcome, the
// status record is then upserted exactly once with its next sync time set to
// the attempt start plus the polling interval, and the next sync time metric
// is updated. RunOnce never panics.
func (o *Orchestrator) RunOnce(ctx context.Context, snap settings.Snapshot) (outcome syncexec.Outcome) {
	start := o.now()
	interval := snap.Interval()

	ctx, span := otel.StartSpan(ctx, o.tracer, SyncAttemptSpanName,
		trace.WithAttributes(
			otel.AttrItemCount.Int(snap.NumItemsToSync),
			otel.AttrForceReclassify.Bool(false),
			otel.AttrIntervalSeconds.Int64(int64(interval/time.Second)),
		),
	)
	defer span.End()
	defer o.finalize(ctx, start, interval)

	slog.InfoContext(ctx, "Starting sync attempt", "item_count", snap.NumItemsToSync)

	outcome = syncexec.Invoke(ctx, o.executor, snap.NumItemsToSync, false)
	duration := o.now().Sub(start)

	switch outcome.Kind {
	case syncexec.OutcomeOK:
		o.health.Set(health.Healthy)
		slog.InfoContext(ctx, "Sync attempt succeeded", "duration", duration, "message", outcome.Message)
	case syncexec.OutcomeFailed:
		o.health.Set(health.Unhealthy)
		slog.WarnContext(ctx, "Sync attempt failed", "duration", duration, "message", outcome.Message)
	default:
		o.health.Set(health.Unhealthy)
		otel.RecordError(span, outcome.Detail)
		attrs := []any{"duration", duration, "error", outcome.Detail}
		if perr, ok := outcome.Detail.(*syncexec.PanicError); ok {
			attrs = append(attrs, "stack", string(perr.Stack))
		}
		slog.ErrorContext(ctx, "Uncaught error during sync", attrs...)
	}

	span.SetAttributes(otel.AttrOutcome.String(string(outcome.Kind)))
	o.metrics.RecordAttemptDuration(ctx, duration, string(outcome.Kind))
	o.metrics.RecordHealth(ctx, o.health.IsHealthy())
	return outcome
}

// finalize persists the post-attempt status record
func (o *Orchestrator) finalize(ctx context.Context, start time.Time, interval time.Duration) {
	next := start.Add(interval)

	record := loadStatus(ctx, o.store)
	if o.health.Get() == health.Unhealthy {
		record.Status = status.SyncStateUnHealthy
	} else {
		record.Status = status.SyncStateRunning
	}
	record.NextSyncTime = &next

	if err := o.store.UpsertStatus(ctx, record); err != nil {
		slog.ErrorContext(ctx, "Failed to persist sync status", "status", record.Status, "error", err)
	}
	o.metrics.RecordNextSyncTime(ctx, next)

	slog.DebugContext(ctx, "Next sync scheduled", "status", record.Status, "next_sync_time", next)
}

// loadStatus reads the current status record, starting from a fresh
// NotRunning record when the store cannot provide one
func loadStatus(ctx context.Context, store status.Store) *status.SyncStatus {
	record, err := store.GetStatus(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read sync status, starting from a fresh record", "error", err)
		return status.NotRunningStatus()
	}
	if record == nil {
		return status.NotRunningStatus()
	}
	return record
}
