package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRunRepo is an in-memory JobRunRepository for service tests.
type mockRunRepo struct {
	mu   sync.Mutex
	runs map[string]*model.JobRun

	enqueued      []*model.CreateJobRunRequest
	completed     []core.CompleteRunParams
	failed        map[string]string
	heartbeats    int
	heartbeatOK   bool
	enqueueErr    error
	completeErr   error
	listResult    []*model.JobRun
	statsResult   *model.JobRunStats
	notifications chan struct{}
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{
		runs:          make(map[string]*model.JobRun),
		failed:        make(map[string]string),
		heartbeatOK:   true,
		notifications: make(chan struct{}, 16),
	}
}

func (m *mockRunRepo) Enqueue(_ context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	m.enqueued = append(m.enqueued, req)
	run := &model.JobRun{
		ID:        uuid.NewString(),
		DealerID:  req.DealerID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    model.JobRunStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *mockRunRepo) GetByID(_ context.Context, id string) (*model.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job run %s not found", id)
	}
	return run, nil
}

func (m *mockRunRepo) List(_ context.Context, _ model.JobRunListOptions) ([]*model.JobRun, error) {
	return m.listResult, nil
}

func (m *mockRunRepo) StatsByDealer(_ context.Context, _ string) (*model.JobRunStats, error) {
	return m.statsResult, nil
}

func (m *mockRunRepo) ReserveNext(_ context.Context, _ int) (*model.JobRun, error) {
	return nil, model.ErrNoRunsAvailable
}

func (m *mockRunRepo) Heartbeat(_ context.Context, _ string, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return m.heartbeatOK, nil
}

func (m *mockRunRepo) WaitForNotification(ctx context.Context) error {
	select {
	case <-m.notifications:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockRunRepo) CompleteRun(_ context.Context, params core.CompleteRunParams) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return 0, m.completeErr
	}
	m.completed = append(m.completed, params)
	return len(params.Records), nil
}

func (m *mockRunRepo) FailRun(_ context.Context, id, detail string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = detail
	return true, nil
}

// mockCredentialStore serves credentials from a fixed map.
type mockCredentialStore struct {
	creds map[string]*model.DealerCredential
}

func (m *mockCredentialStore) Lookup(_ context.Context, dealerID string) (*model.DealerCredential, error) {
	cred, ok := m.creds[dealerID]
	if !ok {
		return nil, apperrors.NotFoundf("no credential for dealer %s", dealerID)
	}
	return cred, nil
}

func (m *mockCredentialStore) ListActiveDealerIDs(_ context.Context) ([]string, error) {
	var ids []string
	for id, cred := range m.creds {
		if cred.Active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// mockSource scripts per-call fetch outcomes.
type mockSource struct {
	mu      sync.Mutex
	calls   int
	fetchFn func(call int, rng model.DateRange) ([]model.RawProspect, error)
}

func (m *mockSource) Fetch(_ context.Context, _ *model.DealerCredential, rng model.DateRange) ([]model.RawProspect, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.fetchFn(call, rng)
}

// mockFallback returns a fixed batch of synthetic raw records.
type mockFallback struct {
	mu      sync.Mutex
	calls   int
	records []model.RawProspect
	err     error
}

func (m *mockFallback) Generate(_ string, _ model.DateRange) ([]model.RawProspect, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

// mockStatusCache is an in-memory StatusCache.
type mockStatusCache struct {
	mu     sync.Mutex
	byID   map[string]*model.JobRun
	getErr error
	sets   int
}

func newMockStatusCache() *mockStatusCache {
	return &mockStatusCache{byID: make(map[string]*model.JobRun)}
}

func (m *mockStatusCache) GetRun(_ context.Context, id string) (*model.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.byID[id], nil
}

func (m *mockStatusCache) SetRun(_ context.Context, run *model.JobRun, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.byID[run.ID] = run
	return nil
}
