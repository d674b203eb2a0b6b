package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
)

type stubJobRunAPI struct {
	enqueueFn func(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error)
	getFn     func(ctx context.Context, id string) (*model.JobRun, error)
	listFn    func(ctx context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error)
	statsFn   func(ctx context.Context, dealerID string) (*model.JobRunStats, error)
}

func (s *stubJobRunAPI) Enqueue(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	return s.enqueueFn(ctx, req)
}

func (s *stubJobRunAPI) GetRun(ctx context.Context, id string) (*model.JobRun, error) {
	return s.getFn(ctx, id)
}

func (s *stubJobRunAPI) List(ctx context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error) {
	return s.listFn(ctx, opts)
}

func (s *stubJobRunAPI) StatsByDealer(ctx context.Context, dealerID string) (*model.JobRunStats, error) {
	return s.statsFn(ctx, dealerID)
}

func pendingRun() *model.JobRun {
	return &model.JobRun{
		ID:        "a2f1d9e0-0000-4000-8000-000000000001",
		DealerID:  "00123",
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC),
		Status:    model.JobRunStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestEnqueueRun(t *testing.T) {
	t.Run("accepts a valid request with 202", func(t *testing.T) {
		var gotReq *model.CreateJobRunRequest
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			enqueueFn: func(_ context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
				gotReq = req
				return pendingRun(), nil
			},
		}})

		body := `{"dealer_id": "00123", "start_date": "2026-08-01", "end_date": "2026-08-07"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))

		require.Equal(t, http.StatusAccepted, rec.Code)
		require.NotNil(t, gotReq)
		assert.Equal(t, "00123", gotReq.DealerID)
		assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), gotReq.StartDate)

		var run model.JobRun
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, model.JobRunStatusPending, run.Status)
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			enqueueFn: func(_ context.Context, _ *model.CreateJobRunRequest) (*model.JobRun, error) {
				t.Fatal("enqueue should not be called")
				return nil, nil
			},
		}})

		body := `{"dealer_id": "00123", "start_date": "08/01/2026", "end_date": "2026-08-07"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps validation errors to 400", func(t *testing.T) {
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			enqueueFn: func(_ context.Context, _ *model.CreateJobRunRequest) (*model.JobRun, error) {
				return nil, apperrors.Validation("end date must not be before start date")
			},
		}})

		body := `{"dealer_id": "00123", "start_date": "2026-08-07", "end_date": "2026-08-01"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "validation_failed")
	})
}

func TestGetRun(t *testing.T) {
	t.Run("returns the run", func(t *testing.T) {
		run := pendingRun()
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			getFn: func(_ context.Context, id string) (*model.JobRun, error) {
				assert.Equal(t, run.ID, id)
				return run, nil
			},
		}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+run.ID, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got model.JobRun
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, run.ID, got.ID)
	})

	t.Run("maps not found to 404", func(t *testing.T) {
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			getFn: func(_ context.Context, _ string) (*model.JobRun, error) {
				return nil, apperrors.NotFound("job run not found")
			},
		}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListRuns(t *testing.T) {
	t.Run("passes filters and returns runs", func(t *testing.T) {
		var gotOpts model.JobRunListOptions
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			listFn: func(_ context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error) {
				gotOpts = opts
				return []*model.JobRun{pendingRun()}, nil
			},
		}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/jobs?dealer_id=00123&limit=10&offset=20", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "00123", gotOpts.DealerID)
		assert.Equal(t, 10, gotOpts.Limit)
		assert.Equal(t, 20, gotOpts.Offset)
	})

	t.Run("renders an empty list as an array", func(t *testing.T) {
		router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
			listFn: func(_ context.Context, _ model.JobRunListOptions) ([]*model.JobRun, error) {
				return nil, nil
			},
		}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"runs": []}`, rec.Body.String())
	})
}

func TestDealerStats(t *testing.T) {
	router := NewRouter(RouterServices{Runs: &stubJobRunAPI{
		statsFn: func(_ context.Context, dealerID string) (*model.JobRunStats, error) {
			assert.Equal(t, "00123", dealerID)
			return &model.JobRunStats{Succeeded: 3, Failed: 1}, nil
		},
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dealers/00123/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":0,"running":0,"succeeded":3,"failed":1}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	router := NewRouter(RouterServices{Runs: &stubJobRunAPI{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
