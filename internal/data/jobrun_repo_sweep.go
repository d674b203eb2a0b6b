package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"

	"github.com/dealerlink/prospect-ingest/internal/data/pgxutil"
)

// Advisory lock namespace for sweeper operations. Two-arg
// pg_try_advisory_xact_lock(major, minor) keeps concurrent sweeper instances
// from stepping on each other. Major key 2100 is reserved for the run sweeper.
const (
	advisoryLockSweeperMajor       = 2100
	advisoryLockSweeperExpiredRuns = 1 // minor key for FailExpiredRunningRuns
	advisoryLockSweeperStaleRuns   = 2 // minor key for FailStalePendingRuns
)

// expiredRunDetail is the storage-class error recorded on swept runs so the
// caller can distinguish crash recovery from pipeline failures.
const expiredRunDetail = "storage: worker lease expired mid-run; run swept for re-enqueue"

// FailExpiredRunningRuns fails Running runs whose lease has expired,
// recovering runs orphaned by a crashed worker. Processes up to batchSize
// rows per call to prevent long locks. Returns the number of runs failed.
func (r *JobRunRepo) FailExpiredRunningRuns(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, apperrors.Validation("batch size must be greater than zero")
	}

	return r.sweep(ctx, sweepParams{
		minorKey: advisoryLockSweeperExpiredRuns,
		run: func(tx *sql.Tx, now time.Time) (sql.Result, error) {
			return tx.ExecContext(ctx, `
				UPDATE job_runs
				SET status = 'failed',
					error_detail = $1,
					finished_at = $2,
					lease_expires_at = NULL,
					updated_at = $2
				WHERE id IN (
					SELECT id FROM job_runs
					WHERE status = 'running'
					  AND lease_expires_at IS NOT NULL
					  AND lease_expires_at < $2
					ORDER BY lease_expires_at
					LIMIT $3
				)
			`, expiredRunDetail, now, batchSize)
		},
	})
}

// FailStalePendingRuns fails Pending runs older than maxAge that no worker
// ever picked up. Returns the number of runs failed.
func (r *JobRunRepo) FailStalePendingRuns(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, apperrors.Validation("batch size must be greater than zero")
	}
	if maxAge <= 0 {
		return 0, apperrors.Validation("max age must be greater than zero")
	}

	return r.sweep(ctx, sweepParams{
		minorKey: advisoryLockSweeperStaleRuns,
		run: func(tx *sql.Tx, now time.Time) (sql.Result, error) {
			return tx.ExecContext(ctx, `
				UPDATE job_runs
				SET status = 'failed',
					error_detail = 'run timed out waiting for a worker',
					finished_at = $1,
					updated_at = $1
				WHERE id IN (
					SELECT id FROM job_runs
					WHERE status = 'pending'
					  AND created_at < $2
					ORDER BY created_at
					LIMIT $3
				)
			`, now, now.Add(-maxAge), batchSize)
		},
	})
}

type sweepParams struct {
	minorKey int
	run      func(tx *sql.Tx, now time.Time) (sql.Result, error)
}

// sweep runs a batched cleanup statement under an advisory transaction lock.
// When another sweeper instance holds the lock the call is a no-op.
func (r *JobRunRepo) sweep(ctx context.Context, params sweepParams) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				`SELECT pg_try_advisory_xact_lock($1, $2)`,
				advisoryLockSweeperMajor, params.minorKey,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			res, err := params.run(tx, r.timeProvider.Now().UTC())
			if err != nil {
				return fmt.Errorf("sweep job runs: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return rowsAffected, nil
}
