package model

import "time"

// DealerCredential maps a dealer to its partner API credentials. The
// ingestion core only ever reads these; rotation happens through an external
// management surface, which is why the orchestrator re-fetches the credential
// on every run instead of caching it.
type DealerCredential struct {
	DealerID  string    `json:"dealer_id"  db:"dealer_id"`
	APIKey    string    `json:"-"          db:"api_key"`
	APIToken  string    `json:"-"          db:"api_token"`
	Active    bool      `json:"active"     db:"active"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
