package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobRunStatus represents the lifecycle state of an ingestion run.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobRunStatus string

const (
	// JobRunStatusPending indicates a run waiting to be picked up by a worker.
	JobRunStatusPending JobRunStatus = "pending"
	// JobRunStatusRunning indicates a run currently executing the pipeline.
	JobRunStatusRunning JobRunStatus = "running"
	// JobRunStatusSucceeded indicates a run that committed its records.
	JobRunStatusSucceeded JobRunStatus = "succeeded"
	// JobRunStatusFailed indicates a run that reached a terminal failure.
	JobRunStatusFailed JobRunStatus = "failed"
)

// ErrNoRunsAvailable is returned when no pending runs are available for reservation.
var ErrNoRunsAvailable = errors.New("no job runs available")

// Valid returns true if the JobRunStatus is valid.
func (s JobRunStatus) Valid() bool {
	return s == JobRunStatusPending || s == JobRunStatusRunning ||
		s == JobRunStatusSucceeded || s == JobRunStatusFailed
}

// Terminal returns true once a run can no longer change state.
func (s JobRunStatus) Terminal() bool {
	return s == JobRunStatusSucceeded || s == JobRunStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler for JobRunStatus.
func (s *JobRunStatus) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	js := JobRunStatus(v)
	if js.Valid() {
		*s = js
		return nil
	}
	return fmt.Errorf("invalid JobRunStatus: %q", v)
}

// JobRun is one execution of the fetch pipeline for a dealer and date range.
// Rows are append-only history: terminal runs are never mutated or deleted.
type JobRun struct {
	ID             string       `json:"id"                         db:"id"`
	DealerID       string       `json:"dealer_id"                  db:"dealer_id"`
	StartDate      time.Time    `json:"start_date"                 db:"start_date"`
	EndDate        time.Time    `json:"end_date"                   db:"end_date"`
	Status         JobRunStatus `json:"status"                     db:"status"`
	StartedAt      *time.Time   `json:"started_at,omitempty"       db:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"      db:"finished_at"`
	RecordCount    int          `json:"record_count"               db:"record_count"`
	ErrorDetail    *string      `json:"error_detail,omitempty"     db:"error_detail"`
	DataSource     *DataSource  `json:"data_source,omitempty"      db:"data_source"`
	LeaseExpiresAt *time.Time   `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time    `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"                 db:"updated_at"`
}

// Range returns the requested date range of the run.
func (j *JobRun) Range() DateRange {
	return DateRange{Start: j.StartDate, End: j.EndDate}
}

// CreateJobRunRequest represents a request to enqueue a new ingestion run.
type CreateJobRunRequest struct {
	DealerID  string    `json:"dealer_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Validate validates the CreateJobRunRequest fields.
func (r *CreateJobRunRequest) Validate() error {
	if strings.TrimSpace(r.DealerID) == "" {
		return errors.New("dealer id is required")
	}
	return DateRange{Start: r.StartDate, End: r.EndDate}.Validate()
}

// JobRunStats represents per-dealer counts of runs in each state.
type JobRunStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JobRunListOptions filters and paginates run history listings.
type JobRunListOptions struct {
	DealerID string
	Limit    int
	Offset   int
}
