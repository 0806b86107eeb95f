package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	schedapp "github.com/stacklok/toolhive-sync-scheduler/internal/app"
	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
	"github.com/stacklok/toolhive-sync-scheduler/internal/telemetry"
	"github.com/stacklok/toolhive-sync-scheduler/internal/versions"
)

const (
	// Long enough for an in-flight sync to finish before the process exits
	defaultGracefulTimeout = 30 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler",
		Long: `Run the background sync scheduler together with its health server.

The configuration file (--config) specifies:
- Where the polling settings are read from
- The sync engine endpoint
- Where the sync status record is stored (file, database or memory)
- The credential used when two-step verification is enabled

See examples/ directory for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	cmd.Flags().Duration("graceful-timeout", defaultGracefulTimeout, "Time allowed for shutdown")
	if err := v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	if err := v.BindPFlag("graceful_timeout", cmd.Flags().Lookup("graceful-timeout")); err != nil {
		slog.Error("Error binding graceful-timeout flag", "error", err)
	}

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration",
		"config", v.GetString("config"),
		"settings", cfg.Settings.Path,
		"status_type", cfg.GetStatusType(),
	)

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(telemetryConfig(cfg)))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	opts := []schedapp.SchedulerAppOptions{
		schedapp.WithConfig(cfg),
		schedapp.WithMeterProvider(tel.MeterProvider()),
		schedapp.WithTracerProvider(tel.TracerProvider()),
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, schedapp.WithMetricsHandler(h))
	}
	if address := v.GetString("address"); address != "" {
		opts = append(opts, schedapp.WithAddress(address))
	}

	schedulerApp, err := schedapp.NewSchedulerApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build sync scheduler: %w", err)
	}

	info := versions.GetVersionInfo()
	slog.Info("Starting ToolHive sync scheduler", "version", info.Version, "commit", info.Commit)

	errCh := make(chan error, 1)
	go func() {
		errCh <- schedulerApp.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			_ = schedulerApp.Stop(v.GetDuration("graceful_timeout"))
			return err
		}
	}

	return schedulerApp.Stop(v.GetDuration("graceful_timeout"))
}

// telemetryConfig fills in the service version from the build when the
// configuration leaves it empty
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	if cfg.Telemetry == nil {
		return nil
	}
	tc := *cfg.Telemetry
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = versions.GetVersionInfo().ServiceVersion()
	}
	return &tc
}
