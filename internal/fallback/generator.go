// Package fallback generates synthetic prospect data when the live partner
// API is unusable, so downstream reporting keeps flowing during outages.
package fallback

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

var unitTypes = []string{
	"travel_trailer",
	"fifth_wheel",
	"class_a",
	"class_b",
	"class_c",
	"toy_hauler",
	"pop_up",
}

var firstNames = []string{
	"Alex", "Dana", "Jordan", "Morgan", "Riley", "Casey", "Taylor", "Quinn",
	"Avery", "Skyler", "Jamie", "Reese", "Drew", "Harper", "Rowan", "Emerson",
}

var lastNames = []string{
	"Anderson", "Brooks", "Carter", "Dawson", "Ellis", "Foster", "Garcia",
	"Hayes", "Iverson", "Jennings", "Kim", "Lawson", "Mercer", "Nguyen",
	"Olsen", "Porter",
}

// Generator produces deterministic synthetic prospects. The same dealer and
// date range always yield the same records, so a re-run of a failed window
// upserts cleanly instead of piling up duplicates.
type Generator struct {
	maxRecords int
	seed       int64
	logger     *slog.Logger
}

// GeneratorOptions contains the dependencies for creating a Generator.
type GeneratorOptions struct {
	Config config.FallbackConfig
	Logger *slog.Logger
}

// NewGenerator creates a synthetic prospect generator.
func NewGenerator(opts GeneratorOptions) (*Generator, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Generator{
		maxRecords: opts.Config.MaxRecords,
		seed:       opts.Config.Seed,
		logger:     opts.Logger.With("component", "fallback"),
	}, nil
}

// Generate produces synthetic raw prospects for a dealer and date range in
// the same wire shape the partner API returns.
func (g *Generator) Generate(dealerID string, rng model.DateRange) ([]model.RawProspect, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	prng := rand.New(rand.NewSource(g.seed ^ scopeHash(dealerID, rng)))

	days := rng.Days()
	count := days * (2 + prng.Intn(4))
	if count > g.maxRecords {
		count = g.maxRecords
	}

	statuses := model.AllProspectStatuses()
	records := make([]model.RawProspect, 0, count)
	for i := 0; i < count; i++ {
		day := rng.Start.AddDate(0, 0, prng.Intn(days))

		rec := model.RawProspect{
			ExternalID:   fmt.Sprintf("SYN-%s-%s-%03d", dealerID, day.Format("20060102"), i),
			CustomerName: firstNames[prng.Intn(len(firstNames))] + " " + lastNames[prng.Intn(len(lastNames))],
			UnitType:     unitTypes[prng.Intn(len(unitTypes))],
			Status:       string(statuses[prng.Intn(len(statuses))]),
		}

		// Roughly two thirds of prospects have a showroom appointment booked.
		if prng.Intn(3) > 0 {
			at := day.Add(time.Duration(9+prng.Intn(9)) * time.Hour)
			rec.AppointmentAt = &at
		}

		records = append(records, rec)
	}

	g.logger.Debug("generated synthetic prospects",
		"dealer_id", dealerID,
		"count", len(records))
	return records, nil
}

// scopeHash folds the dealer and range into the PRNG seed so distinct scopes
// produce distinct but stable record sets.
func scopeHash(dealerID string, rng model.DateRange) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(dealerID))
	_, _ = h.Write([]byte(rng.Start.Format("20060102")))
	_, _ = h.Write([]byte(rng.End.Format("20060102")))
	return int64(h.Sum64())
}
