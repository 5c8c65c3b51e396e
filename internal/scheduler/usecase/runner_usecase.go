// Package usecase implements the periodic runner that drives every background
// loop: tick on an interval, take the loop's lease, run the job, release.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	lockUsecase "github.com/allisson/schoolops/internal/lock/usecase"
	"github.com/allisson/schoolops/internal/metrics"
)

// Job is one unit of periodic work. Name doubles as the lease name, so two
// replicas running the same job contend on the same lock.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a named function to the Job interface.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name.
func (j JobFunc) Name() string { return j.JobName }

// Run calls the wrapped function.
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Runner ticks on a fixed interval and runs a job under a lease lock. A tick
// where the lease is held elsewhere, or where the lock store errors, is
// skipped; the job waits for the next tick.
type Runner struct {
	job      Job
	locker   lockUsecase.Locker
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  metrics.BusinessMetrics
}

// NewRunner creates a new Runner.
func NewRunner(
	job Job,
	locker lockUsecase.Locker,
	interval time.Duration,
	clock clockwork.Clock,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *Runner {
	return &Runner{
		job:      job,
		locker:   locker,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  businessMetrics,
	}
}

// Start runs the tick loop until the context is canceled.
func (r *Runner) Start(ctx context.Context) error {
	if r.logger != nil {
		r.logger.Info("runner started",
			slog.String("job", r.job.Name()),
			slog.Duration("interval", r.interval),
		)
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.Info("runner stopped", slog.String("job", r.job.Name()))
			}
			return ctx.Err()
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

// tick runs one guarded job execution.
func (r *Runner) tick(ctx context.Context) {
	acquired, err := r.locker.Acquire(ctx, r.job.Name())
	if err != nil {
		// Fail closed: treat a lock store error as a lost election.
		if r.metrics != nil {
			r.metrics.RecordOperation(ctx, "scheduler", r.job.Name(), "lock_error")
		}
		return
	}
	if !acquired {
		if r.logger != nil {
			r.logger.Debug("lease held elsewhere, skipping tick", slog.String("job", r.job.Name()))
		}
		return
	}
	defer func() {
		if err := r.locker.Release(ctx, r.job.Name()); err != nil && r.logger != nil {
			r.logger.Warn("lease release failed",
				slog.String("job", r.job.Name()),
				slog.Any("error", err),
			)
		}
	}()

	start := r.clock.Now()
	runErr := r.job.Run(ctx)

	status := "success"
	if runErr != nil {
		status = "error"
		if r.logger != nil {
			r.logger.Error("job run failed",
				slog.String("job", r.job.Name()),
				slog.Any("error", runErr),
			)
		}
	}
	if r.metrics != nil {
		r.metrics.RecordOperation(ctx, "scheduler", r.job.Name(), status)
		r.metrics.RecordDuration(ctx, "scheduler", r.job.Name(), r.clock.Since(start), status)
	}
}
