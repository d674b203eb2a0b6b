// Package core holds the ports (repository and collaborator interfaces)
// that connect the service layer to the data layer and external systems.
// Services depend on these interfaces, never on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// JobRunRepository defines the persistence contract for ingestion runs.
// It owns the append-only run history and the queue semantics: reservation
// is atomic (no two workers ever hold the same run) and terminal commits
// are transactional with the record batch.
type JobRunRepository interface {
	// Enqueue creates a Pending run and returns it without blocking on execution.
	Enqueue(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error)
	GetByID(ctx context.Context, id string) (*model.JobRun, error)
	List(ctx context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error)
	StatsByDealer(ctx context.Context, dealerID string) (*model.JobRunStats, error)

	// ReserveNext atomically moves the oldest Pending run to Running with a
	// lease, or returns model.ErrNoRunsAvailable.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.JobRun, error)
	// Heartbeat extends the lease of a Running run. Returns false if the run
	// is no longer Running (e.g. swept after a lease expiry).
	Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error)
	// WaitForNotification blocks until a new run is enqueued or ctx ends.
	WaitForNotification(ctx context.Context) error

	// CompleteRun commits the record batch and the Succeeded terminal update
	// in one transaction. Partial visibility is never allowed.
	CompleteRun(ctx context.Context, params CompleteRunParams) (int, error)
	// FailRun marks a Running run as Failed with an error detail.
	FailRun(ctx context.Context, id, detail string) (bool, error)
}

// CompleteRunParams groups parameters for JobRunRepository.CompleteRun.
type CompleteRunParams struct {
	RunID   string
	Records []*model.ProspectRecord
	Source  model.DataSource
}

// SweeperRepository defines the reconciliation queries used to recover runs
// orphaned by a worker crash.
type SweeperRepository interface {
	// FailExpiredRunningRuns fails Running runs whose lease has expired.
	FailExpiredRunningRuns(ctx context.Context, batchSize int) (int64, error)
	// FailStalePendingRuns fails Pending runs older than maxAge that were
	// never picked up.
	FailStalePendingRuns(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// ProspectRepository defines read access to persisted prospect records.
// Writes happen only through JobRunRepository.CompleteRun.
type ProspectRepository interface {
	GetByKey(ctx context.Context, dealerID, externalID string) (*model.ProspectRecord, error)
	CountByDealer(ctx context.Context, dealerID string) (int, error)
}

// CredentialStore defines the read-only credential lookup contract. A missing
// dealer yields a not-found error; callers decide how to treat inactive rows.
type CredentialStore interface {
	Lookup(ctx context.Context, dealerID string) (*model.DealerCredential, error)
	// ListActiveDealerIDs returns the dealers eligible for scheduled ingestion.
	ListActiveDealerIDs(ctx context.Context) ([]string, error)
}

// ProspectSource fetches raw prospect data for a dealer and date range from
// the live partner API. Implementations classify failures into the
// transport/auth/malformed taxonomy and retry transport errors once.
type ProspectSource interface {
	Fetch(ctx context.Context, cred *model.DealerCredential, rng model.DateRange) ([]model.RawProspect, error)
}

// FallbackGenerator produces synthetic-but-structurally-valid raw prospects
// when the live source is unusable.
type FallbackGenerator interface {
	Generate(dealerID string, rng model.DateRange) ([]model.RawProspect, error)
}

// StatusCache caches terminal JobRun snapshots for the polling read path.
// Implementations must tolerate a nil receiver so the cache stays optional.
type StatusCache interface {
	GetRun(ctx context.Context, id string) (*model.JobRun, error)
	SetRun(ctx context.Context, run *model.JobRun, ttl time.Duration) error
}
