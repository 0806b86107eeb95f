package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-sync-scheduler/internal/api"
	"github.com/stacklok/toolhive-sync-scheduler/internal/app/storage"
	"github.com/stacklok/toolhive-sync-scheduler/internal/auth"
	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
	"github.com/stacklok/toolhive-sync-scheduler/internal/health"
	"github.com/stacklok/toolhive-sync-scheduler/internal/scheduler"
	"github.com/stacklok/toolhive-sync-scheduler/internal/settings"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
	"github.com/stacklok/toolhive-sync-scheduler/internal/syncexec"
	"github.com/stacklok/toolhive-sync-scheduler/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	tracerName = "github.com/stacklok/toolhive-sync-scheduler/scheduler"
)

// SchedulerAppOptions is a function that configures the scheduler app builder
type SchedulerAppOptions func(*schedulerAppConfig) error

// schedulerAppConfig collects everything needed to assemble a SchedulerApp.
// Collaborators left nil are built from config.
type schedulerAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory    storage.Factory
	settingsSource    settings.Source
	credentialChecker auth.CredentialChecker
	executor          syncexec.Executor
	clock             func() time.Time

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...SchedulerAppOptions) (*schedulerAppConfig, error) {
	cfg := &schedulerAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetServerAddress()
	}

	return cfg, nil
}

// NewSchedulerApp assembles the scheduler, its collaborators and the health server
func NewSchedulerApp(
	ctx context.Context,
	opts ...SchedulerAppOptions,
) (*SchedulerApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
		}
	}()

	store, err := cfg.storageFactory.CreateStatusStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create status store: %w", err)
	}

	signal := health.NewSignal()

	components, err := buildSchedulerComponents(cfg, store, signal)
	if err != nil {
		return nil, fmt.Errorf("failed to build scheduler components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, signal, store)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app
	cleanupNeeded = false

	factory := cfg.storageFactory
	cancelFunc := func() {
		cancel()
		factory.Cleanup()
	}

	return &SchedulerApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address, overriding server.address
func WithAddress(addr string) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSettingsSource allows injecting a settings source (for testing)
func WithSettingsSource(s settings.Source) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.settingsSource = s
		return nil
	}
}

// WithCredentialChecker allows injecting the credential checker used by the readiness gate
func WithCredentialChecker(c auth.CredentialChecker) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.credentialChecker = c
		return nil
	}
}

// WithExecutor allows injecting the sync executor (for testing)
func WithExecutor(e syncexec.Executor) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.executor = e
		return nil
	}
}

// WithClock overrides the scheduler's clock (for testing)
func WithClock(now func() time.Time) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.clock = now
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for sync and HTTP spans
func WithTracerProvider(tp trace.TracerProvider) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler mounts a prometheus scrape handler on /metrics
func WithMetricsHandler(h http.Handler) SchedulerAppOptions {
	return func(cfg *schedulerAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildSchedulerComponents builds the settings source, the gate, the
// orchestrator and the control loop on top of the status store
func buildSchedulerComponents(
	b *schedulerAppConfig,
	store status.Store,
	signal *health.Signal,
) (*AppComponents, error) {
	slog.Info("Initializing scheduler components")

	components := &AppComponents{
		Health:      signal,
		StatusStore: store,
	}

	source := b.settingsSource
	if source == nil {
		fileSource := settings.NewFileSource(b.config.Settings.Path)
		if b.config.ShouldWatchSettings() {
			components.SettingsWatcher = fileSource
		}
		source = fileSource
	}

	checker := b.credentialChecker
	if checker == nil && b.config.Auth != nil && b.config.Auth.TokenFile != "" {
		checker = auth.NewTokenFileChecker(b.config.Auth.TokenFile, auth.WithLeeway(b.config.GetAuthLeeway()))
	}
	if checker == nil {
		slog.Info("No credential source configured, two-step verification will block syncs while enabled")
	}

	executor := b.executor
	if executor == nil {
		var execOpts []syncexec.HTTPOption
		if timeout := b.config.GetExecutorTimeout(); timeout > 0 {
			execOpts = append(execOpts, syncexec.WithTimeout(timeout))
		}
		executor = syncexec.NewHTTPExecutor(b.config.Executor.Endpoint, execOpts...)
	}

	var orchOpts []scheduler.OrchestratorOption
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			orchOpts = append(orchOpts, scheduler.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}
	if b.tracerProvider != nil {
		orchOpts = append(orchOpts, scheduler.WithTracer(b.tracerProvider.Tracer(tracerName)))
	}
	if b.clock != nil {
		orchOpts = append(orchOpts, scheduler.WithOrchestratorClock(b.clock))
	}

	schedOpts := []scheduler.Option{scheduler.WithStepSize(b.config.GetStepSize())}
	if b.clock != nil {
		schedOpts = append(schedOpts, scheduler.WithClock(b.clock))
	}

	sched, err := scheduler.New(
		scheduler.NewStateTracker(source),
		scheduler.NewReadinessGate(checker),
		scheduler.NewOrchestrator(executor, store, signal, orchOpts...),
		store,
		schedOpts...,
	)
	if err != nil {
		return nil, err
	}
	components.Scheduler = sched

	slog.Info("Scheduler components initialized successfully", "step_size", b.config.GetStepSize())
	return components, nil
}

// buildHTTPServer builds the health and status server with router and middleware
func buildHTTPServer(
	b *schedulerAppConfig,
	signal *health.Signal,
	store status.Store,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Telemetry middlewares go first so rejected requests are observed too
	var telemetryMiddlewares []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		telemetryMiddlewares = append(telemetryMiddlewares, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		if httpMetrics != nil {
			telemetryMiddlewares = append(telemetryMiddlewares, httpMetrics.Middleware)
			slog.Info("HTTP metrics middleware enabled")
		}
	}
	b.middlewares = append(telemetryMiddlewares, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(signal, store, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
