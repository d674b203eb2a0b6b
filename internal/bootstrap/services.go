package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/adapters/partnerapi"
	"github.com/dealerlink/prospect-ingest/internal/adapters/worker"
	"github.com/dealerlink/prospect-ingest/internal/data"
	"github.com/dealerlink/prospect-ingest/internal/fallback"
	httpx "github.com/dealerlink/prospect-ingest/internal/http"
	"github.com/dealerlink/prospect-ingest/internal/observability/statsd"
	"github.com/dealerlink/prospect-ingest/internal/service"
)

// ServiceDeps bundles the external resources the service container needs.
type ServiceDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sql.DB
	Redis  *redis.Client // Optional: nil disables the status cache
}

// ServiceContainer holds every constructed service for this process. Only
// the services enabled in the configuration are started.
type ServiceContainer struct {
	JobRuns   *service.JobRunService
	Worker    *worker.Runner
	Sweeper   *service.SweeperService
	Scheduler *service.SchedulerService
	Metrics   *statsd.Client

	config *config.AppConfig
	logger *slog.Logger
}

// NewServices wires repositories, adapters, and services.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	cfg := deps.Config
	logger := deps.Logger

	metricsClient, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.StatsdEnabled,
		Address: cfg.Observability.StatsdAddress,
		Prefix:  cfg.Observability.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}

	runRepo := data.NewJobRunRepo(deps.DB, data.RepoConfig{Logger: logger})
	credRepo := data.NewCredentialRepo(deps.DB)

	var cache *data.RedisStatusCache
	if deps.Redis != nil {
		cache = data.NewRedisStatusCache(deps.Redis)
	}

	jobRunSvc, err := service.NewJobRunService(service.JobRunServiceOptions{
		Repo:   runRepo,
		Cache:  cache,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create job run service: %w", err)
	}

	source, err := partnerapi.NewClient(partnerapi.ClientOptions{
		Config: cfg.Fetch,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create partner api client: %w", err)
	}

	generator, err := fallback.NewGenerator(fallback.GeneratorOptions{
		Config: cfg.Fallback,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create fallback generator: %w", err)
	}

	orchestrator, err := service.NewIngestOrchestrator(service.IngestOrchestratorOptions{
		Runs:         runRepo,
		Credentials:  credRepo,
		Source:       source,
		Fallback:     generator,
		Normalizer:   service.NewNormalizer(service.NormalizerOptions{Logger: logger}),
		FetchConfig:  cfg.Fetch,
		LeaseSeconds: int(cfg.Worker.Lease.Seconds()),
		Logger:       logger,
		Metrics:      metricsClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create ingest orchestrator: %w", err)
	}

	workerRunner, err := worker.NewRunner(worker.RunnerOptions{
		Runs:         runRepo,
		Orchestrator: orchestrator,
		Config:       cfg.Worker,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create worker runner: %w", err)
	}

	sweeper, err := service.NewSweeperService(service.SweeperServiceOptions{
		Repo:    runRepo,
		Config:  cfg.Sweeper,
		Logger:  logger,
		Metrics: metricsClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create sweeper service: %w", err)
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Runs:        runRepo,
		Credentials: credRepo,
		Config:      cfg.Scheduler,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create scheduler service: %w", err)
	}

	return &ServiceContainer{
		JobRuns:   jobRunSvc,
		Worker:    workerRunner,
		Sweeper:   sweeper,
		Scheduler: scheduler,
		Metrics:   metricsClient,
		config:    cfg,
		logger:    logger,
	}, nil
}

// RunServicesWithShutdown starts every enabled service and blocks until a
// termination signal arrives or a service fails. Shutdown is graceful: the
// HTTP server drains, workers finish their current run.
func (c *ServiceContainer) RunServicesWithShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	if c.config.IsHTTPServerEnabled() {
		c.startHTTPServer(ctx, group)
	}
	if c.config.IsWorkerEnabled() {
		group.Go(func() error { return c.Worker.Run(ctx) })
	}
	if c.config.IsSweeperEnabled() {
		group.Go(func() error { return c.Sweeper.Run(ctx) })
	}
	if c.config.IsSchedulerEnabled() {
		group.Go(func() error { return c.Scheduler.Run(ctx) })
	}

	err := group.Wait()
	if closeErr := c.Metrics.Close(); closeErr != nil {
		c.logger.Warn("close metrics client", "error", closeErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Info("shutdown complete")
	return nil
}

func (c *ServiceContainer) startHTTPServer(ctx context.Context, group *errgroup.Group) {
	server := &http.Server{
		Addr: c.config.HTTP.Addr,
		Handler: httpx.NewRouter(httpx.RouterServices{
			Runs:   c.JobRuns,
			Logger: c.logger,
		}),
		ReadTimeout:  c.config.HTTP.ReadTimeout,
		WriteTimeout: c.config.HTTP.WriteTimeout,
		IdleTimeout:  c.config.HTTP.IdleTimeout,
	}

	group.Go(func() error {
		c.logger.Info("starting http server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
}
