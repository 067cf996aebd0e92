package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/allisson/casevault/internal/app"
	"github.com/allisson/casevault/internal/config"
)

// RunServer starts the ops API, the metrics server, the outbox processor and
// the integrity sweep. Blocks until SIGINT/SIGTERM or a fatal error, then
// shuts everything down within DBConnMaxLifetime.
//
// Requirements: Database must be migrated. The server starts with KMS down and reports it on /ready.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))
	defer CloseContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	var metricsServer interface {
		Start(ctx context.Context) error
		Shutdown(ctx context.Context) error
	}
	if cfg.MetricsEnabled {
		ms, err := container.MetricsServer()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics server: %w", err)
		}
		metricsServer = ms
	}

	outbox, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox processor: %w", err)
	}
	sweep, err := container.IntegritySweep()
	if err != nil {
		return fmt.Errorf("failed to initialize integrity sweep: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Background workers stop with ctx; their context.Canceled is expected.
	go func() {
		if err := outbox.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox processor stopped", slog.Any("error", err))
		}
	}()
	go func() {
		if err := sweep.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("integrity sweep stopped", slog.Any("error", err))
		}
	}()

	var errs []error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		errs = append(errs, err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}
