package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/schoolops/internal/app"
	"github.com/allisson/schoolops/internal/config"
)

// shutdownTimeout bounds graceful server shutdown after a signal.
const shutdownTimeout = 30 * time.Second

// RunWorker starts the full background worker: the outbox dispatcher, the
// lease-guarded periodic runners and the ops/metrics HTTP servers. It blocks
// until SIGINT/SIGTERM or a fatal error from any loop.
func RunWorker(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	dispatcher, err := container.DispatcherUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	orchestratorRunner, err := container.OrchestratorRunner()
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator runner: %w", err)
	}

	campaignRunner, err := container.CampaignRunner()
	if err != nil {
		return fmt.Errorf("failed to initialize campaign runner: %w", err)
	}

	tierReviewRunner, err := container.TierReviewRunner()
	if err != nil {
		return fmt.Errorf("failed to initialize tier review runner: %w", err)
	}

	opsServer, err := container.OpsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize ops server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Background loops stop themselves when the context is canceled.
	g.Go(func() error { return ignoreCanceled(dispatcher.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(orchestratorRunner.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(campaignRunner.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(tierReviewRunner.Start(gctx)) })

	// HTTP servers block on ListenAndServe and need an explicit shutdown.
	g.Go(func() error {
		if err := opsServer.Start(gctx); err != nil {
			return fmt.Errorf("ops server error: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErrors []error
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("ops server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("worker stopped")
	return nil
}

// ignoreCanceled maps a context cancellation to a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
