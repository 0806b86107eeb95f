package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/toolhive-sync-scheduler/sync"
)

// SyncMetrics holds the instruments the scheduler reports after every sync attempt
type SyncMetrics struct {
	attemptDuration metric.Float64Histogram
	healthy         metric.Int64Gauge
	nextSyncTime    metric.Float64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	attemptDuration, err := meter.Float64Histogram(
		"thv_sync_attempt_duration_seconds",
		metric.WithDescription("Duration of sync attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900),
	)
	if err != nil {
		return nil, err
	}

	healthy, err := meter.Int64Gauge(
		"thv_sync_healthy",
		metric.WithDescription("1 when the most recent sync attempt succeeded, 0 otherwise"),
	)
	if err != nil {
		return nil, err
	}

	nextSyncTime, err := meter.Float64Gauge(
		"thv_sync_next_sync_timestamp_seconds",
		metric.WithDescription("Unix time of the next scheduled sync attempt"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		attemptDuration: attemptDuration,
		healthy:         healthy,
		nextSyncTime:    nextSyncTime,
	}, nil
}

// RecordAttemptDuration records how long one sync attempt took
func (m *SyncMetrics) RecordAttemptDuration(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil || m.attemptDuration == nil {
		return
	}
	m.attemptDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordHealth records the health signal
func (m *SyncMetrics) RecordHealth(ctx context.Context, healthy bool) {
	if m == nil || m.healthy == nil {
		return
	}
	var v int64
	if healthy {
		v = 1
	}
	m.healthy.Record(ctx, v)
}

// RecordNextSyncTime records when the next sync is due
func (m *SyncMetrics) RecordNextSyncTime(ctx context.Context, next time.Time) {
	if m == nil || m.nextSyncTime == nil {
		return
	}
	m.nextSyncTime.Record(ctx, float64(next.UnixMilli())/1000)
}
