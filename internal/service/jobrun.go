package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
)

// terminalSnapshotTTL bounds how long a terminal run snapshot stays cached.
// Terminal runs never change, so the TTL only limits cache growth.
const terminalSnapshotTTL = 24 * time.Hour

// maxRangeDays caps how wide a requested ingestion window may be.
const maxRangeDays = 366

// JobRunServiceOptions groups dependencies for JobRunService.
type JobRunServiceOptions struct {
	Repo   core.JobRunRepository // Required: run repository
	Cache  core.StatusCache      // Optional: terminal snapshot cache
	Logger *slog.Logger          // Optional: structured logger
}

// JobRunService provides the enqueue and read paths for ingestion runs.
// Enqueue never executes the pipeline inline; it only records intent.
type JobRunService struct {
	repo   core.JobRunRepository
	cache  core.StatusCache
	logger *slog.Logger
}

// NewJobRunService constructs a JobRunService.
func NewJobRunService(opts JobRunServiceOptions) (*JobRunService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunService{
		repo:   opts.Repo,
		cache:  opts.Cache,
		logger: logger.With("component", "jobrun_service"),
	}, nil
}

// Enqueue validates the request and records a Pending run. The run executes
// asynchronously; callers poll GetRun for the outcome.
func (s *JobRunService) Enqueue(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if days := (model.DateRange{Start: req.StartDate, End: req.EndDate}).Days(); days > maxRangeDays {
		return nil, apperrors.ValidationField("end_date",
			"requested range exceeds the maximum of one year")
	}

	run, err := s.repo.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("run enqueued",
		"job_id", run.ID,
		"dealer_id", run.DealerID,
		"start_date", run.StartDate.Format("2006-01-02"),
		"end_date", run.EndDate.Format("2006-01-02"))
	return run, nil
}

// GetRun returns a run by ID. Terminal runs are served from the snapshot
// cache when possible; Postgres stays the source of truth for live runs.
func (s *JobRunService) GetRun(ctx context.Context, id string) (*model.JobRun, error) {
	if id == "" {
		return nil, apperrors.Validation("run id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ValidationField("id", "run id must be a UUID")
	}

	if s.cache != nil {
		if cached, err := s.cache.GetRun(ctx, id); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("status cache read failed", "job_id", id, "error", err)
		}
	}

	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && run.Status.Terminal() {
		if err := s.cache.SetRun(ctx, run, terminalSnapshotTTL); err != nil {
			s.logger.Warn("status cache write failed", "job_id", id, "error", err)
		}
	}
	return run, nil
}

// List returns run history, newest first.
func (s *JobRunService) List(ctx context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error) {
	return s.repo.List(ctx, opts)
}

// StatsByDealer returns per-state run counts for a dealer.
func (s *JobRunService) StatsByDealer(ctx context.Context, dealerID string) (*model.JobRunStats, error) {
	if dealerID == "" {
		return nil, apperrors.Validation("dealer id is required")
	}
	return s.repo.StatsByDealer(ctx, dealerID)
}
