// Package worker runs the ingest worker pool: a set of goroutines that
// reserve pending runs and execute the ingestion pipeline for each.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	"github.com/dealerlink/prospect-ingest/internal/service"
)

// RunnerOptions configures the worker pool.
type RunnerOptions struct {
	Runs         core.JobRunRepository       // Required: run reservation and notifications
	Orchestrator *service.IngestOrchestrator // Required: pipeline executor
	Config       config.WorkerConfig         // Concurrency, lease, poll interval
	Logger       *slog.Logger                // Optional: structured logger
}

// Runner owns the worker goroutines. Each worker loops on ReserveNext; an
// empty queue parks the worker on the Postgres notification channel, bounded
// by the poll interval so missed notifications cannot strand runs.
type Runner struct {
	runs         core.JobRunRepository
	orchestrator *service.IngestOrchestrator
	concurrency  int
	leaseSeconds int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRunner constructs a worker pool runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Runs == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	if opts.Orchestrator == nil {
		return nil, errors.New("IngestOrchestrator is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		runs:         opts.Runs,
		orchestrator: opts.Orchestrator,
		concurrency:  cfg.Concurrency,
		leaseSeconds: int(cfg.Lease / time.Second),
		pollInterval: cfg.PollInterval,
		logger:       logger.With("component", "worker"),
	}, nil
}

// Run starts the pool and blocks until the context ends or a worker hits a
// fatal error. The first fatal error cancels the rest of the pool.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker pool",
		"concurrency", r.concurrency,
		"lease_seconds", r.leaseSeconds,
		"poll_interval", r.pollInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if err := r.workerLoop(ctx, worker); err != nil {
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}(i)
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		if errors.Is(ctx.Err(), context.Canceled) {
			r.logger.Info("worker pool stopped")
			return nil
		}
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, worker int) error {
	logger := r.logger.With("worker", worker)

	for ctx.Err() == nil {
		run, err := r.runs.ReserveNext(ctx, r.leaseSeconds)
		switch {
		case err == nil:
			r.processRun(ctx, logger, run)
		case errors.Is(err, model.ErrNoRunsAvailable):
			r.waitForWork(ctx)
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reserve next run: %w", err)
		}
	}
	return nil
}

// waitForWork parks on the enqueue notification channel, waking up at the
// poll interval regardless so a dropped notification only delays work.
func (r *Runner) waitForWork(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, r.pollInterval)
	defer cancel()

	if err := r.runs.WaitForNotification(waitCtx); err != nil &&
		!errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		r.logger.Warn("notification wait failed, falling back to polling", "error", err)

		select {
		case <-time.After(r.pollInterval):
		case <-ctx.Done():
		}
	}
}

func (r *Runner) processRun(ctx context.Context, logger *slog.Logger, run *model.JobRun) {
	logger.InfoContext(ctx, "processing run",
		"job_id", run.ID,
		"dealer_id", run.DealerID,
		"start_date", run.StartDate.Format("2006-01-02"),
		"end_date", run.EndDate.Format("2006-01-02"))

	if err := r.orchestrator.Execute(ctx, run); err != nil {
		// Orchestration errors are logged, not fatal for the pool; the
		// sweeper recovers runs left Running by a lost lease.
		logger.ErrorContext(ctx, "run orchestration error", "job_id", run.ID, "error", err)
	}
}
