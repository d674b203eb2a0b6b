// Package devseed inserts development fixtures so a fresh local database is
// immediately usable. Never wired up outside development mode.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// devDealers are the dealer credentials seeded in development. The keys are
// placeholders accepted by a local partner API stub.
var devDealers = []struct {
	dealerID string
	apiKey   string
	apiToken string
	active   bool
}{
	{dealerID: "00123", apiKey: "dev-key-00123", apiToken: "dev-token-00123", active: true},
	{dealerID: "00456", apiKey: "dev-key-00456", apiToken: "dev-token-00456", active: true},
	{dealerID: "00999", apiKey: "dev-key-00999", apiToken: "dev-token-00999", active: false},
}

// SeedDealerCredentials upserts the development dealer credentials. Existing
// rows keep their active flag so local toggling survives restarts.
func SeedDealerCredentials(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	for _, d := range devDealers {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO dealer_credentials (dealer_id, api_key, api_token, active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (dealer_id) DO UPDATE SET
				api_key   = EXCLUDED.api_key,
				api_token = EXCLUDED.api_token
		`, d.dealerID, d.apiKey, d.apiToken, d.active); err != nil {
			return fmt.Errorf("seed credential for dealer %s: %w", d.dealerID, err)
		}
	}

	if logger != nil {
		logger.InfoContext(ctx, "seeded development dealer credentials", "count", len(devDealers))
	}
	return nil
}
