// Package app provides application lifecycle management for the sync scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/toolhive-sync-scheduler/internal/config"
	"github.com/stacklok/toolhive-sync-scheduler/internal/health"
)

// SchedulerApp encapsulates the sync scheduler and its health server.
// It provides lifecycle management and graceful shutdown capabilities.
type SchedulerApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the background sync loop and the HTTP server.
// This method blocks until the HTTP server stops or encounters an error.
func (app *SchedulerApp) Start() error {
	app.components.Health.Set(health.Healthy)

	if w := app.components.SettingsWatcher; w != nil {
		go func() {
			if err := w.Watch(app.ctx); err != nil {
				slog.Warn("Settings watcher stopped, settings will be re-read on every poll", "error", err)
			}
		}()
	}

	go func() {
		if err := app.components.Scheduler.Start(app.ctx); err != nil {
			slog.Error("Sync scheduler failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// The sync loop is stopped first, which waits for an in-flight attempt to
// finish; then the HTTP server is shut down.
func (app *SchedulerApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down sync scheduler")

	if err := app.components.Scheduler.Stop(); err != nil {
		slog.Error("Failed to stop sync scheduler", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Sync scheduler shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *SchedulerApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SchedulerApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the assembled components
func (app *SchedulerApp) GetComponents() *AppComponents {
	return app.components
}
