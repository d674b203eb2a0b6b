package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// ProspectRepo provides read access to persisted prospect records. Writes go
// through JobRunRepo.CompleteRun so the batch and the terminal run update
// share one transaction.
type ProspectRepo struct {
	DB *sql.DB
}

// NewProspectRepo creates a new ProspectRepo with the given database connection.
func NewProspectRepo(db *sql.DB) *ProspectRepo {
	return &ProspectRepo{DB: db}
}

const prospectColumns = `
  dealer_id,
  external_id,
  customer_name,
  unit_type,
  status,
  appointment_at,
  source,
  ingested_at,
  last_job_id
`

// GetByKey returns a prospect record by its natural key.
func (r *ProspectRepo) GetByKey(ctx context.Context, dealerID, externalID string) (*model.ProspectRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE dealer_id = $1 AND external_id = $2`,
		dealerID, externalID,
	)
	rec, err := scanProspect(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("prospect %s/%s not found", dealerID, externalID)
		}
		return nil, apperrors.MapDBError(err)
	}
	return rec, nil
}

// CountByDealer returns the number of persisted prospects for a dealer.
func (r *ProspectRepo) CountByDealer(ctx context.Context, dealerID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prospects WHERE dealer_id = $1`, dealerID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return count, nil
}

// upsertProspectsTx writes a normalized batch inside an existing transaction.
// The single-row ON CONFLICT upsert serializes concurrent writes to the same
// natural key without external locking, and ingested_at never moves
// backwards so overlapping runs reconcile to the latest ingestion.
func upsertProspectsTx(ctx context.Context, tx *sql.Tx, records []*model.ProspectRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prospects (
			dealer_id, external_id, customer_name, unit_type,
			status, appointment_at, source, ingested_at, last_job_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dealer_id, external_id) DO UPDATE SET
			customer_name  = EXCLUDED.customer_name,
			unit_type      = EXCLUDED.unit_type,
			status         = EXCLUDED.status,
			appointment_at = EXCLUDED.appointment_at,
			source         = EXCLUDED.source,
			ingested_at    = GREATEST(prospects.ingested_at, EXCLUDED.ingested_at),
			last_job_id    = EXCLUDED.last_job_id
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare prospect upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rec := range records {
		if _, execErr := stmt.ExecContext(ctx,
			rec.DealerID,
			rec.ExternalID,
			rec.CustomerName,
			rec.UnitType,
			rec.Status,
			rec.AppointmentAt,
			rec.Source,
			rec.IngestedAt.UTC(),
			rec.LastJobID,
		); execErr != nil {
			return 0, fmt.Errorf("upsert prospect %s: %w", rec.Key(), execErr)
		}
	}
	return len(records), nil
}

func scanProspect(scanner rowScanner) (*model.ProspectRecord, error) {
	rec := &model.ProspectRecord{}
	var (
		customerName, unitType, lastJobID sql.NullString
		appointmentAt                     sql.NullTime
	)
	if err := scanner.Scan(
		&rec.DealerID,
		&rec.ExternalID,
		&customerName,
		&unitType,
		&rec.Status,
		&appointmentAt,
		&rec.Source,
		&rec.IngestedAt,
		&lastJobID,
	); err != nil {
		return nil, err
	}

	rec.CustomerName = nullableString(customerName)
	rec.UnitType = nullableString(unitType)
	rec.LastJobID = nullableString(lastJobID)
	rec.AppointmentAt = nullableTime(appointmentAt)
	return rec, nil
}
