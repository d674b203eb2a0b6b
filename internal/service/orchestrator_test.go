package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
)

type orchestratorFixture struct {
	repo     *mockRunRepo
	creds    *mockCredentialStore
	source   *mockSource
	fallback *mockFallback
	orch     *IngestOrchestrator
}

func newOrchestratorFixture(t *testing.T, maxChunkDays int) *orchestratorFixture {
	t.Helper()

	f := &orchestratorFixture{
		repo: newMockRunRepo(),
		creds: &mockCredentialStore{creds: map[string]*model.DealerCredential{
			"00123": {DealerID: "00123", APIKey: "k", APIToken: "t", Active: true},
			"00999": {DealerID: "00999", APIKey: "k", APIToken: "t", Active: false},
		}},
		source: &mockSource{fetchFn: func(_ int, _ model.DateRange) ([]model.RawProspect, error) {
			return []model.RawProspect{{ExternalID: "P-1", Status: "new"}}, nil
		}},
		fallback: &mockFallback{records: []model.RawProspect{
			{ExternalID: "SYN-1", Status: "new"},
			{ExternalID: "SYN-2", Status: "completed"},
		}},
	}

	orch, err := NewIngestOrchestrator(IngestOrchestratorOptions{
		Runs:         f.repo,
		Credentials:  f.creds,
		Source:       f.source,
		Fallback:     f.fallback,
		Normalizer:   NewNormalizer(NormalizerOptions{Logger: discardLogger()}),
		FetchConfig:  config.FetchConfig{MaxChunkDays: maxChunkDays},
		LeaseSeconds: 60,
		Logger:       discardLogger(),
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func runFor(dealerID string, days int) *model.JobRun {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return &model.JobRun{
		ID:        "run-1",
		DealerID:  dealerID,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, days-1),
		Status:    model.JobRunStatusRunning,
	}
}

func TestOrchestratorExecute(t *testing.T) {
	t.Run("live fetch succeeds and commits", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 7)))

		require.Len(t, f.repo.completed, 1)
		params := f.repo.completed[0]
		assert.Equal(t, "run-1", params.RunID)
		assert.Equal(t, model.DataSourceLiveAPI, params.Source)
		require.Len(t, params.Records, 1)
		assert.Equal(t, "P-1", params.Records[0].ExternalID)
		assert.Empty(t, f.repo.failed)
		assert.Equal(t, 0, f.fallback.calls)
	})

	t.Run("missing credential fails fast without touching the partner", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)

		require.NoError(t, f.orch.Execute(context.Background(), runFor("11111", 7)))

		assert.Empty(t, f.repo.completed)
		assert.Contains(t, f.repo.failed["run-1"], "configuration")
		assert.Equal(t, 0, f.source.calls)
		assert.Equal(t, 0, f.fallback.calls)
	})

	t.Run("inactive credential fails fast without touching the partner", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00999", 7)))

		assert.Empty(t, f.repo.completed)
		assert.Contains(t, f.repo.failed["run-1"], "configuration")
		assert.Contains(t, f.repo.failed["run-1"], "inactive")
		assert.Equal(t, 0, f.source.calls)
	})

	t.Run("transport failure falls back to synthetic data", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)
		f.source.fetchFn = func(_ int, _ model.DateRange) ([]model.RawProspect, error) {
			return nil, apperrors.Transport("partner returned status 502")
		}

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 7)))

		require.Len(t, f.repo.completed, 1)
		assert.Equal(t, model.DataSourceFallback, f.repo.completed[0].Source)
		assert.Len(t, f.repo.completed[0].Records, 2)
		assert.Equal(t, 1, f.fallback.calls)
	})

	t.Run("empty live result falls back to synthetic data", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)
		f.source.fetchFn = func(_ int, _ model.DateRange) ([]model.RawProspect, error) {
			return nil, nil
		}

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 7)))

		require.Len(t, f.repo.completed, 1)
		assert.Equal(t, model.DataSourceFallback, f.repo.completed[0].Source)
	})

	t.Run("chunked run with partial fallback commits as mixed", func(t *testing.T) {
		f := newOrchestratorFixture(t, 7)
		f.source.fetchFn = func(call int, _ model.DateRange) ([]model.RawProspect, error) {
			if call == 1 {
				return []model.RawProspect{{ExternalID: "P-1", Status: "new"}}, nil
			}
			return nil, apperrors.Transport("partner returned status 503")
		}

		// 14 days with a 7-day chunk limit gives two chunks.
		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 14)))

		require.Len(t, f.repo.completed, 1)
		assert.Equal(t, model.DataSourceMixed, f.repo.completed[0].Source)
		assert.Len(t, f.repo.completed[0].Records, 3)
		assert.Equal(t, 2, f.source.calls)
		assert.Equal(t, 1, f.repo.heartbeats)
	})

	t.Run("partial rejection commits the surviving records", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)
		f.source.fetchFn = func(_ int, _ model.DateRange) ([]model.RawProspect, error) {
			raws := make([]model.RawProspect, 0, 10)
			for i := 0; i < 8; i++ {
				raws = append(raws, model.RawProspect{
					ExternalID: "P-" + string(rune('0'+i)), Status: "new",
				})
			}
			// Two records with no external id cannot be keyed.
			raws = append(raws, model.RawProspect{Status: "new"}, model.RawProspect{Status: "won"})
			return raws, nil
		}

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 7)))

		require.Len(t, f.repo.completed, 1)
		assert.Len(t, f.repo.completed[0].Records, 8)
		assert.Empty(t, f.repo.failed)
	})

	t.Run("fully rejected batch fails the run", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)
		f.source.fetchFn = func(_ int, _ model.DateRange) ([]model.RawProspect, error) {
			return []model.RawProspect{{ExternalID: "", Status: "new"}}, nil
		}

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 7)))

		assert.Empty(t, f.repo.completed)
		assert.Contains(t, f.repo.failed["run-1"], "validation")
	})

	t.Run("lost lease aborts without a terminal commit", func(t *testing.T) {
		f := newOrchestratorFixture(t, 7)
		f.repo.heartbeatOK = false

		err := f.orch.Execute(context.Background(), runFor("00123", 14))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lease")
		assert.Empty(t, f.repo.completed)
		assert.Empty(t, f.repo.failed)
	})

	t.Run("commit failure records a storage failure", func(t *testing.T) {
		f := newOrchestratorFixture(t, 31)
		f.repo.completeErr = apperrors.Storage("run is no longer running; refusing terminal commit")

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 7)))

		assert.Contains(t, f.repo.failed["run-1"], "storage")
	})

	t.Run("cross-chunk duplicates collapse to the later chunk", func(t *testing.T) {
		f := newOrchestratorFixture(t, 7)
		f.source.fetchFn = func(call int, _ model.DateRange) ([]model.RawProspect, error) {
			if call == 1 {
				return []model.RawProspect{{ExternalID: "P-1", Status: "new"}}, nil
			}
			return []model.RawProspect{{ExternalID: "P-1", Status: "won"}}, nil
		}

		require.NoError(t, f.orch.Execute(context.Background(), runFor("00123", 14)))

		require.Len(t, f.repo.completed, 1)
		require.Len(t, f.repo.completed[0].Records, 1)
		assert.Equal(t, model.ProspectStatusCompleted, f.repo.completed[0].Records[0].Status)
	})
}
