// Package data implements the Postgres repositories behind the core ports.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"

	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/data/pgxutil"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// runAddedChannel is the pg_notify channel signalled on enqueue so idle
// workers wake without polling.
const runAddedChannel = "prospect_run_added"

// RepoConfig holds configuration options for the job run repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRunRepo provides database operations for ingestion run management. It
// implements both core.JobRunRepository and core.SweeperRepository.
type JobRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRunRepo creates a new JobRunRepo with the given database connection.
func NewJobRunRepo(db *sql.DB, cfg RepoConfig) *JobRunRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRunRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobRunColumns = `
  id,
  dealer_id,
  start_date,
  end_date,
  status,
  started_at,
  finished_at,
  record_count,
  error_detail,
  data_source,
  lease_expires_at,
  created_at,
  updated_at
`

// SQL used by ReserveNext to atomically reserve the oldest pending run.
const reserveNextSQL = `
  WITH cte AS (
    SELECT id FROM job_runs
    WHERE status = 'pending'
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE job_runs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $1),
    lease_expires_at = $2,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobRunColumns

// Enqueue creates a Pending run and notifies waiting workers. It returns
// immediately; execution happens asynchronously on the worker pool.
func (r *JobRunRepo) Enqueue(ctx context.Context, req *model.CreateJobRunRequest) (*model.JobRun, error) {
	if req == nil {
		return nil, errors.New("create job run request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid enqueue request")
	}

	var run *model.JobRun
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, `
				INSERT INTO job_runs (dealer_id, start_date, end_date, status)
				VALUES ($1, $2, $3, 'pending')
				RETURNING `+jobRunColumns,
				req.DealerID, req.StartDate.UTC(), req.EndDate.UTC(),
			)
			var scanErr error
			run, scanErr = scanJobRun(row)
			if scanErr != nil {
				return fmt.Errorf("insert job run: %w", scanErr)
			}

			if _, notifyErr := tx.ExecContext(ctx,
				`SELECT pg_notify($1::text, $2::text)`, runAddedChannel, run.ID); notifyErr != nil {
				return fmt.Errorf("send run notification: %w", notifyErr)
			}
			return nil
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "run enqueued", "id", run.ID, "dealer_id", run.DealerID)
	}
	return run, nil
}

// GetByID returns a single run by id.
func (r *JobRunRepo) GetByID(ctx context.Context, id string) (*model.JobRun, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobRunColumns+` FROM job_runs WHERE id = $1`, id)
	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("job run %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return run, nil
}

// List returns run history, newest first, optionally filtered by dealer.
func (r *JobRunRepo) List(ctx context.Context, opts model.JobRunListOptions) ([]*model.JobRun, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	query := `SELECT ` + jobRunColumns + ` FROM job_runs`
	args := []any{}
	if opts.DealerID != "" {
		query += ` WHERE dealer_id = $1`
		args = append(args, opts.DealerID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var runs []*model.JobRun
	for rows.Next() {
		run, scanErr := scanJobRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job run: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperrors.MapDBError(rowsErr)
	}
	return runs, nil
}

// StatsByDealer returns run counts per state for a dealer.
func (r *JobRunRepo) StatsByDealer(ctx context.Context, dealerID string) (*model.JobRunStats, error) {
	stats := &model.JobRunStats{}
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM job_runs
		WHERE dealer_id = $1
	`, dealerID).Scan(&stats.Pending, &stats.Running, &stats.Succeeded, &stats.Failed)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return stats, nil
}

// ReserveNext atomically reserves the oldest pending run with a lease, or
// returns model.ErrNoRunsAvailable. SKIP LOCKED guarantees no two workers
// ever hold the same run.
func (r *JobRunRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.JobRun, error) {
	now := r.timeProvider.Now().UTC()
	leaseUntil := now.Add(time.Duration(leaseSeconds) * time.Second)

	row := r.DB.QueryRowContext(ctx, reserveNextSQL, now, leaseUntil)
	run, err := scanJobRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoRunsAvailable
		}
		return nil, apperrors.MapDBError(err)
	}
	return run, nil
}

// Heartbeat extends the lease on a running run. Returns false when the run
// is no longer running, which tells the worker its lease was swept.
func (r *JobRunRepo) Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_runs
		SET lease_expires_at = $2, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, now.Add(time.Duration(leaseSeconds)*time.Second), now)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// WaitForNotification blocks on the run-added channel until a new run is
// enqueued or the context ends.
func (r *JobRunRepo) WaitForNotification(ctx context.Context) error {
	return pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, `LISTEN `+runAddedChannel); err != nil {
			return fmt.Errorf("listen %s: %w", runAddedChannel, err)
		}
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		return nil
	})
}

// CompleteRun commits the prospect batch and the Succeeded terminal update
// in a single transaction. The run must still be Running; a run swept while
// the worker was executing fails the commit rather than resurrecting it.
func (r *JobRunRepo) CompleteRun(ctx context.Context, params core.CompleteRunParams) (int, error) {
	if !params.Source.Valid() {
		return 0, apperrors.ValidationField("source", "invalid data source")
	}

	var persisted int
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			n, upsertErr := upsertProspectsTx(ctx, tx, params.Records)
			if upsertErr != nil {
				return upsertErr
			}
			persisted = n

			now := r.timeProvider.Now().UTC()
			res, execErr := tx.ExecContext(ctx, `
				UPDATE job_runs
				SET status = 'succeeded',
					finished_at = $2,
					record_count = $3,
					data_source = $4,
					error_detail = NULL,
					lease_expires_at = NULL,
					updated_at = $2
				WHERE id = $1 AND status = 'running'
			`, params.RunID, now, persisted, params.Source)
			if execErr != nil {
				return execErr
			}
			affected, raErr := res.RowsAffected()
			if raErr != nil {
				return fmt.Errorf("rows affected: %w", raErr)
			}
			if affected == 0 {
				return apperrors.Storage("run is no longer running; refusing terminal commit")
			}
			return nil
		},
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "run completed",
			"id", params.RunID, "records", persisted, "source", params.Source)
	}
	return persisted, nil
}

// FailRun marks a running run as failed with an error detail. Terminal runs
// are never mutated, so a duplicate failure is a no-op returning false.
func (r *JobRunRepo) FailRun(ctx context.Context, id, detail string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_runs
		SET status = 'failed',
			finished_at = $2,
			error_detail = $3,
			lease_expires_at = NULL,
			updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'running')
	`, id, now, detail)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRun(scanner rowScanner) (*model.JobRun, error) {
	run := &model.JobRun{}
	var (
		startedAt, finishedAt, leaseExpiresAt sql.NullTime
		errorDetail, dataSource               sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.DealerID,
		&run.StartDate,
		&run.EndDate,
		&run.Status,
		&startedAt,
		&finishedAt,
		&run.RecordCount,
		&errorDetail,
		&dataSource,
		&leaseExpiresAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	run.StartedAt = nullableTime(startedAt)
	run.FinishedAt = nullableTime(finishedAt)
	run.LeaseExpiresAt = nullableTime(leaseExpiresAt)
	run.ErrorDetail = nullableString(errorDetail)
	if dataSource.Valid {
		ds := model.DataSource(dataSource.String)
		run.DataSource = &ds
	}
	return run, nil
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
