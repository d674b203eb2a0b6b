package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/data"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Runs         core.JobRunRepository  // Required: run enqueue
	Credentials  core.CredentialStore   // Required: active dealer listing
	Config       config.SchedulerConfig // Required: cron expression and window
	Logger       *slog.Logger           // Optional: structured logger
	TimeProvider data.TimeProvider      // Optional: clock override for tests
}

// SchedulerService enqueues a trailing-window ingestion run for every dealer
// with an active credential on a cron schedule. Dealers without credentials
// are never scheduled; their runs would only fail at credential lookup.
type SchedulerService struct {
	runs         core.JobRunRepository
	credentials  core.CredentialStore
	config       config.SchedulerConfig
	logger       *slog.Logger
	timeProvider data.TimeProvider
	cron         *cron.Cron
}

// NewSchedulerService constructs a SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Runs == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("CredentialStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	return &SchedulerService{
		runs:         opts.Runs,
		credentials:  opts.Credentials,
		config:       opts.Config,
		logger:       logger.With("component", "scheduler_service"),
		timeProvider: timeProvider,
		cron:         cron.New(),
	}, nil
}

// Run registers the cron entry and blocks until the context ends.
func (s *SchedulerService) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.config.Cron, func() {
		s.EnqueueScheduledRuns(ctx)
	}); err != nil {
		return fmt.Errorf("register cron schedule %q: %w", s.config.Cron, err)
	}

	s.logger.InfoContext(ctx, "starting scheduler",
		"cron", s.config.Cron,
		"window_days", s.config.WindowDays)
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	// Let an in-flight enqueue pass finish before reporting shutdown.
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// EnqueueScheduledRuns enqueues one trailing-window run per active dealer.
// One dealer failing does not stop the rest.
func (s *SchedulerService) EnqueueScheduledRuns(ctx context.Context) {
	dealerIDs, err := s.credentials.ListActiveDealerIDs(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list active dealers failed", "error", err)
		return
	}

	end := truncateToDay(s.timeProvider.Now())
	start := end.AddDate(0, 0, -(s.config.WindowDays - 1))

	var enqueued int
	for _, dealerID := range dealerIDs {
		run, enqueueErr := s.runs.Enqueue(ctx, &model.CreateJobRunRequest{
			DealerID:  dealerID,
			StartDate: start,
			EndDate:   end,
		})
		if enqueueErr != nil {
			s.logger.ErrorContext(ctx, "scheduled enqueue failed",
				"dealer_id", dealerID,
				"error", enqueueErr)
			continue
		}
		enqueued++
		s.logger.Debug("scheduled run enqueued", "dealer_id", dealerID, "job_id", run.ID)
	}

	s.logger.InfoContext(ctx, "scheduled enqueue pass complete",
		"dealers", len(dealerIDs),
		"enqueued", enqueued,
		"start_date", start.Format("2006-01-02"),
		"end_date", end.Format("2006-01-02"))
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
