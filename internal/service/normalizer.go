package service

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

// statusAliases maps the partner wire vocabulary onto the canonical pipeline
// statuses. Unknown values default to new rather than dropping the record.
var statusAliases = map[string]model.ProspectStatus{
	"new":         model.ProspectStatusNew,
	"open":        model.ProspectStatusNew,
	"lead":        model.ProspectStatusNew,
	"in_progress": model.ProspectStatusInProgress,
	"working":     model.ProspectStatusInProgress,
	"contacted":   model.ProspectStatusInProgress,
	"completed":   model.ProspectStatusCompleted,
	"won":         model.ProspectStatusCompleted,
	"sold":        model.ProspectStatusCompleted,
	"cancelled":   model.ProspectStatusCancelled,
	"canceled":    model.ProspectStatusCancelled,
	"lost":        model.ProspectStatusCancelled,
}

// RejectedRecord captures a raw record that failed normalization, for logs
// and run error detail.
type RejectedRecord struct {
	Index  int
	Reason string
}

// NormalizeResult is the outcome of normalizing one raw batch.
type NormalizeResult struct {
	Records  []*model.ProspectRecord
	Rejected []RejectedRecord
}

// Normalizer converts raw partner records into canonical prospect records.
// Invalid records are rejected individually; one bad record never poisons
// the batch.
type Normalizer struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NormalizerOptions groups dependencies for Normalizer.
type NormalizerOptions struct {
	Logger *slog.Logger // Optional: structured logger
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(opts NormalizerOptions) *Normalizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "normalizer"),
	}
}

// NormalizeBatchParams groups inputs for Normalizer.Normalize.
type NormalizeBatchParams struct {
	DealerID   string
	JobID      string
	Source     model.DataSource
	IngestedAt time.Time
	Raw        []model.RawProspect
}

// Normalize maps a raw batch to canonical records. Duplicate external IDs
// within the batch collapse to the last occurrence. Rejected records are
// returned alongside, never silently dropped.
func (n *Normalizer) Normalize(params NormalizeBatchParams) NormalizeResult {
	var result NormalizeResult

	byKey := make(map[string]int, len(params.Raw))
	for i, raw := range params.Raw {
		rec, reason := n.normalizeOne(params, raw)
		if rec == nil {
			result.Rejected = append(result.Rejected, RejectedRecord{Index: i, Reason: reason})
			n.logger.Warn("rejected prospect record",
				"dealer_id", params.DealerID,
				"job_id", params.JobID,
				"index", i,
				"reason", reason)
			continue
		}

		// Last occurrence wins when a batch repeats an external id.
		if prev, ok := byKey[rec.ExternalID]; ok {
			result.Records[prev] = rec
			continue
		}
		byKey[rec.ExternalID] = len(result.Records)
		result.Records = append(result.Records, rec)
	}

	return result
}

func (n *Normalizer) normalizeOne(params NormalizeBatchParams, raw model.RawProspect) (*model.ProspectRecord, string) {
	if err := n.validate.Struct(raw); err != nil {
		return nil, fmt.Sprintf("invalid raw record: %v", err)
	}

	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		return nil, "prospect_id is blank"
	}

	rec := &model.ProspectRecord{
		DealerID:   params.DealerID,
		ExternalID: externalID,
		Status:     mapStatus(raw.Status),
		Source:     params.Source,
		IngestedAt: params.IngestedAt.UTC(),
	}
	if params.JobID != "" {
		jobID := params.JobID
		rec.LastJobID = &jobID
	}
	if name := strings.TrimSpace(raw.CustomerName); name != "" {
		rec.CustomerName = &name
	}
	if unit := strings.TrimSpace(raw.UnitType); unit != "" {
		rec.UnitType = &unit
	}
	if raw.AppointmentAt != nil {
		at := raw.AppointmentAt.UTC()
		rec.AppointmentAt = &at
	}
	return rec, ""
}

func mapStatus(raw string) model.ProspectStatus {
	if status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return model.ProspectStatusNew
}
