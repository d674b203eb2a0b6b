// Package model defines the core data types for the prospect ingestion system.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ProspectStatus represents the sales pipeline status of a prospect.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ProspectStatus string

// DataSource identifies where the records of an ingestion run came from.
type DataSource string

const (
	// ProspectStatusNew indicates a freshly created prospect.
	ProspectStatusNew ProspectStatus = "new"
	// ProspectStatusInProgress indicates a prospect being actively worked.
	ProspectStatusInProgress ProspectStatus = "in_progress"
	// ProspectStatusCompleted indicates a closed-won prospect.
	ProspectStatusCompleted ProspectStatus = "completed"
	// ProspectStatusCancelled indicates a closed-lost prospect.
	ProspectStatusCancelled ProspectStatus = "cancelled"

	// DataSourceLiveAPI indicates records fetched from the partner API.
	DataSourceLiveAPI DataSource = "live_api"
	// DataSourceFallback indicates synthetic records generated locally.
	DataSourceFallback DataSource = "fallback"
	// DataSourceMixed indicates a run whose chunks used both live and synthetic data.
	DataSourceMixed DataSource = "mixed"
)

// Valid returns true if the ProspectStatus is valid.
func (s ProspectStatus) Valid() bool {
	return s == ProspectStatusNew || s == ProspectStatusInProgress ||
		s == ProspectStatusCompleted || s == ProspectStatusCancelled
}

// UnmarshalText implements encoding.TextUnmarshaler for ProspectStatus.
func (s *ProspectStatus) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	ps := ProspectStatus(v)
	if ps.Valid() {
		*s = ps
		return nil
	}
	return fmt.Errorf("invalid ProspectStatus: %q", v)
}

// AllProspectStatuses returns every valid status, in pipeline order.
func AllProspectStatuses() []ProspectStatus {
	return []ProspectStatus{
		ProspectStatusNew,
		ProspectStatusInProgress,
		ProspectStatusCompleted,
		ProspectStatusCancelled,
	}
}

// Valid returns true if the DataSource is valid.
func (d DataSource) Valid() bool {
	return d == DataSourceLiveAPI || d == DataSourceFallback || d == DataSourceMixed
}

// RawProspect is a single prospect object as returned by the partner API or
// the fallback generator, before normalization. Field names follow the
// partner wire format.
type RawProspect struct {
	ExternalID    string     `json:"prospect_id"              validate:"required"`
	CustomerName  string     `json:"customer_name"`
	UnitType      string     `json:"unit_type"`
	Status        string     `json:"status"`
	AppointmentAt *time.Time `json:"appointment_at,omitempty"`
}

// ProspectRecord is the canonical unit of ingested data. The pair
// (DealerID, ExternalID) is the natural key; re-ingestion upserts.
type ProspectRecord struct {
	DealerID      string         `json:"dealer_id"                db:"dealer_id"`
	ExternalID    string         `json:"external_id"              db:"external_id"`
	CustomerName  *string        `json:"customer_name,omitempty"  db:"customer_name"`
	UnitType      *string        `json:"unit_type,omitempty"      db:"unit_type"`
	Status        ProspectStatus `json:"status"                   db:"status"`
	AppointmentAt *time.Time     `json:"appointment_at,omitempty" db:"appointment_at"`
	Source        DataSource     `json:"source"                   db:"source"`
	IngestedAt    time.Time      `json:"ingested_at"              db:"ingested_at"`
	LastJobID     *string        `json:"last_job_id,omitempty"    db:"last_job_id"`
}

// Key returns the natural key used for deduplication and upserts.
func (p *ProspectRecord) Key() string {
	return p.DealerID + "/" + p.ExternalID
}
