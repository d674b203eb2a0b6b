// Package httpx provides the HTTP API surface for the prospect ingestion
// system: enqueueing runs, polling run status, and dealer statistics.
package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// JobRunAPI is the slice of the run service the handlers need. Kept small so
// tests can stub it directly.
type JobRunAPI interface {
	Enqueue(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error)
	GetRun(ctx context.Context, id string) (*model.JobRun, error)
	List(ctx context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error)
	StatsByDealer(ctx context.Context, dealerID string) (*model.JobRunStats, error)
}

// JobRunHandlers provides HTTP handlers for run operations.
type JobRunHandlers struct {
	Svc JobRunAPI
}

// createRunRequest is the wire shape for enqueueing a run. Dates are plain
// calendar days.
type createRunRequest struct {
	DealerID  string `json:"dealer_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// EnqueueRun handles POST /api/jobs. It answers 202 immediately; the run
// executes asynchronously.
func (h *JobRunHandlers) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_date", Err: err})
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_date", Err: err})
		return
	}

	run, err := h.Svc.Enqueue(r.Context(), &model.CreateJobRunRequest{
		DealerID:  req.DealerID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, run)
}

// GetRun handles GET /api/jobs/{id}.
func (h *JobRunHandlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{
			Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("run id is required"),
		})
		return
	}

	run, err := h.Svc.GetRun(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /api/jobs with optional dealer_id, limit, and offset
// query parameters.
func (h *JobRunHandlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := model.JobRunListOptions{
		DealerID: r.URL.Query().Get("dealer_id"),
		Limit:    parseIntQuery(r, "limit", 0),
		Offset:   parseIntQuery(r, "offset", 0),
	}

	runs, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if runs == nil {
		runs = []*model.JobRun{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// DealerStats handles GET /api/dealers/{id}/stats.
func (h *JobRunHandlers) DealerStats(w http.ResponseWriter, r *http.Request) {
	dealerID := r.PathValue("id")
	if dealerID == "" {
		WriteError(w, ErrorParams{
			Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("dealer id is required"),
		})
		return
	}

	stats, err := h.Svc.StatsByDealer(r.Context(), dealerID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
