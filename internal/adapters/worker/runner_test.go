package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
	"github.com/dealerlink/prospect-ingest/internal/service"
)

// queueRepo feeds a fixed set of pending runs to the pool and records the
// terminal transitions.
type queueRepo struct {
	mu        sync.Mutex
	pending   []*model.JobRun
	completed []string
	failed    map[string]string
}

func newQueueRepo(runs ...*model.JobRun) *queueRepo {
	return &queueRepo{pending: runs, failed: make(map[string]string)}
}

func (q *queueRepo) Enqueue(_ context.Context, _ *model.CreateJobRunRequest) (*model.JobRun, error) {
	return nil, nil
}

func (q *queueRepo) GetByID(_ context.Context, _ string) (*model.JobRun, error) {
	return nil, apperrors.NotFound("not implemented")
}

func (q *queueRepo) List(_ context.Context, _ model.JobRunListOptions) ([]*model.JobRun, error) {
	return nil, nil
}

func (q *queueRepo) StatsByDealer(_ context.Context, _ string) (*model.JobRunStats, error) {
	return nil, nil
}

func (q *queueRepo) ReserveNext(_ context.Context, _ int) (*model.JobRun, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, model.ErrNoRunsAvailable
	}
	run := q.pending[0]
	q.pending = q.pending[1:]
	run.Status = model.JobRunStatusRunning
	return run, nil
}

func (q *queueRepo) Heartbeat(_ context.Context, _ string, _ int) (bool, error) {
	return true, nil
}

func (q *queueRepo) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (q *queueRepo) CompleteRun(_ context.Context, params core.CompleteRunParams) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, params.RunID)
	return len(params.Records), nil
}

func (q *queueRepo) FailRun(_ context.Context, id, detail string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = detail
	return true, nil
}

type staticCreds struct{}

func (staticCreds) Lookup(_ context.Context, dealerID string) (*model.DealerCredential, error) {
	return &model.DealerCredential{DealerID: dealerID, APIKey: "k", APIToken: "t", Active: true}, nil
}

func (staticCreds) ListActiveDealerIDs(_ context.Context) ([]string, error) {
	return nil, nil
}

type staticSource struct{}

func (staticSource) Fetch(_ context.Context, _ *model.DealerCredential, _ model.DateRange) ([]model.RawProspect, error) {
	return []model.RawProspect{{ExternalID: "P-1", Status: "new"}}, nil
}

type staticFallback struct{}

func (staticFallback) Generate(_ string, _ model.DateRange) ([]model.RawProspect, error) {
	return []model.RawProspect{{ExternalID: "SYN-1", Status: "new"}}, nil
}

func pendingRun(id string) *model.JobRun {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return &model.JobRun{
		ID:        id,
		DealerID:  "00123",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 6),
		Status:    model.JobRunStatusPending,
	}
}

func newTestRunner(t *testing.T, repo *queueRepo, concurrency int) *Runner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orch, err := service.NewIngestOrchestrator(service.IngestOrchestratorOptions{
		Runs:         repo,
		Credentials:  staticCreds{},
		Source:       staticSource{},
		Fallback:     staticFallback{},
		Normalizer:   service.NewNormalizer(service.NormalizerOptions{Logger: logger}),
		FetchConfig:  config.FetchConfig{MaxChunkDays: 31},
		LeaseSeconds: 60,
		Logger:       logger,
	})
	require.NoError(t, err)

	runner, err := NewRunner(RunnerOptions{
		Runs:         repo,
		Orchestrator: orch,
		Config: config.WorkerConfig{
			Concurrency:  concurrency,
			Lease:        60 * time.Second,
			PollInterval: 20 * time.Millisecond,
		},
		Logger: logger,
	})
	require.NoError(t, err)
	return runner
}

func TestRunnerProcessesQueuedRuns(t *testing.T) {
	repo := newQueueRepo(pendingRun("run-1"), pendingRun("run-2"), pendingRun("run-3"))
	runner := newTestRunner(t, repo, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.completed) == 3
	}, 2*time.Second, 10*time.Millisecond, "all queued runs should complete")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	assert.Empty(t, repo.failed)
}

func TestRunnerStopsCleanlyWhenIdle(t *testing.T) {
	repo := newQueueRepo()
	runner := newTestRunner(t, repo, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("idle runner did not stop after cancellation")
	}
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}
