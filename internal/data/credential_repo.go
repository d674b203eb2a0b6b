package data

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// CredentialRepo implements the read-only credential store lookup. Rows are
// managed by an external admin surface; the ingestion core never writes them.
type CredentialRepo struct {
	DB *sql.DB
}

// NewCredentialRepo creates a new CredentialRepo with the given database connection.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{DB: db}
}

// Lookup returns the credential for a dealer, or a not-found error. Inactive
// credentials are returned as-is; the orchestrator treats them as a fatal
// configuration failure.
func (r *CredentialRepo) Lookup(ctx context.Context, dealerID string) (*model.DealerCredential, error) {
	cred := &model.DealerCredential{}
	err := r.DB.QueryRowContext(ctx, `
		SELECT dealer_id, api_key, api_token, active, updated_at
		FROM dealer_credentials
		WHERE dealer_id = $1
	`, dealerID).Scan(&cred.DealerID, &cred.APIKey, &cred.APIToken, &cred.Active, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("no credential for dealer %s", dealerID)
		}
		return nil, apperrors.MapDBError(err)
	}
	return cred, nil
}

// ListActiveDealerIDs returns the dealers eligible for scheduled ingestion.
func (r *CredentialRepo) ListActiveDealerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT dealer_id FROM dealer_credentials WHERE active ORDER BY dealer_id`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, scanErr
		}
		ids = append(ids, id)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperrors.MapDBError(rowsErr)
	}
	return ids, nil
}
