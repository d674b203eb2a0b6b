package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/observability/metrics"
	"github.com/dealerlink/prospect-ingest/internal/observability/statsd"
)

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Repo    core.SweeperRepository // Required: sweeper repository
	Config  config.SweeperConfig   // Required: sweeper configuration
	Logger  *slog.Logger           // Optional: structured logger
	Metrics statsd.Sink            // Optional: metric sink
}

// SweeperService reconciles runs orphaned by worker crashes: Running runs
// whose lease expired and Pending runs no worker ever picked up both get
// failed with an explanatory detail. Advisory locks in the repository keep
// concurrent sweeper instances from stepping on each other.
type SweeperService struct {
	repo    core.SweeperRepository
	config  config.SweeperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewSweeperService constructs a SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SweeperRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SweeperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger.With("component", "sweeper_service"),
		metrics: opts.Metrics,
	}, nil
}

// Run starts the sweep loop and blocks until the context ends. Returns nil
// on graceful shutdown.
func (s *SweeperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting sweeper",
		"interval", s.config.Interval,
		"pending_max_age", s.config.PendingMaxAge)

	// Jitter the first sweep so co-started instances spread out.
	s.waitWithJitter(ctx)
	if ctx.Err() != nil {
		return nil
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs both reconciliation queries. Errors are logged and the loop
// continues; a transient database problem must not kill the service.
func (s *SweeperService) sweep(ctx context.Context) {
	expired, err := s.repo.FailExpiredRunningRuns(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep of expired running runs failed", "error", err)
	} else if expired > 0 {
		s.logger.InfoContext(ctx, "swept expired running runs", "count", expired)
		metrics.EmitSweep(s.metrics, "lease_expired", expired)
	}

	stale, err := s.repo.FailStalePendingRuns(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep of stale pending runs failed", "error", err)
	} else if stale > 0 {
		s.logger.InfoContext(ctx, "swept stale pending runs", "count", stale)
		metrics.EmitSweep(s.metrics, "pending_timeout", stale)
	}
}

// waitWithJitter sleeps up to 10% of the interval, or until ctx ends.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
