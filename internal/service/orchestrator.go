package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealerlink/prospect-ingest/config"
	"github.com/dealerlink/prospect-ingest/internal/core"
	"github.com/dealerlink/prospect-ingest/internal/data"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
	"github.com/dealerlink/prospect-ingest/internal/observability/metrics"
	"github.com/dealerlink/prospect-ingest/internal/observability/statsd"
)

// IngestOrchestratorOptions groups dependencies for IngestOrchestrator.
type IngestOrchestratorOptions struct {
	Runs         core.JobRunRepository  // Required: run persistence and terminal commits
	Credentials  core.CredentialStore   // Required: dealer credential lookup
	Source       core.ProspectSource    // Required: live partner API adapter
	Fallback     core.FallbackGenerator // Required: synthetic data generator
	Normalizer   *Normalizer            // Required: raw record normalizer
	FetchConfig  config.FetchConfig     // Chunking configuration
	LeaseSeconds int                    // Required: heartbeat lease extension
	Logger       *slog.Logger           // Optional: structured logger
	Metrics      statsd.Sink            // Optional: metric sink
	TimeProvider data.TimeProvider      // Optional: clock override for tests
}

// IngestOrchestrator executes one reserved run end to end: credential lookup,
// chunked fetch with fallback, normalization, and the transactional terminal
// commit. It never returns a run to Pending; every path ends terminal.
type IngestOrchestrator struct {
	runs         core.JobRunRepository
	credentials  core.CredentialStore
	source       core.ProspectSource
	fallback     core.FallbackGenerator
	normalizer   *Normalizer
	maxChunkDays int
	leaseSeconds int
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider
}

// NewIngestOrchestrator constructs an IngestOrchestrator.
func NewIngestOrchestrator(opts IngestOrchestratorOptions) (*IngestOrchestrator, error) {
	if opts.Runs == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("CredentialStore is required")
	}
	if opts.Source == nil {
		return nil, errors.New("ProspectSource is required")
	}
	if opts.Fallback == nil {
		return nil, errors.New("FallbackGenerator is required")
	}
	if opts.Normalizer == nil {
		return nil, errors.New("Normalizer is required")
	}
	if opts.LeaseSeconds <= 0 {
		return nil, errors.New("LeaseSeconds must be positive")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}
	maxChunkDays := opts.FetchConfig.MaxChunkDays
	if maxChunkDays < 1 {
		maxChunkDays = 31
	}

	return &IngestOrchestrator{
		runs:         opts.Runs,
		credentials:  opts.Credentials,
		source:       opts.Source,
		fallback:     opts.Fallback,
		normalizer:   opts.Normalizer,
		maxChunkDays: maxChunkDays,
		leaseSeconds: opts.LeaseSeconds,
		logger:       logger.With("component", "ingest_orchestrator"),
		metrics:      opts.Metrics,
		timeProvider: timeProvider,
	}, nil
}

// chunkResult is the outcome of fetching one date-range chunk.
type chunkResult struct {
	raw    []model.RawProspect
	source model.DataSource
}

// Execute runs the full pipeline for a reserved run. The returned error
// reports orchestration problems (heartbeat loss, storage failures); a run
// that terminates Failed for data reasons returns nil.
func (o *IngestOrchestrator) Execute(ctx context.Context, run *model.JobRun) error {
	started := o.timeProvider.Now()
	logger := o.logger.With("job_id", run.ID, "dealer_id", run.DealerID)

	cred, err := o.credentials.Lookup(ctx, run.DealerID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return o.failRun(ctx, run, started,
				apperrors.Configurationf("no credential configured for dealer %s", run.DealerID))
		}
		return fmt.Errorf("credential lookup for run %s: %w", run.ID, err)
	}
	if !cred.Active {
		return o.failRun(ctx, run, started,
			apperrors.Configurationf("credential for dealer %s is inactive", run.DealerID))
	}

	chunks := run.Range().Chunks(o.maxChunkDays)
	results := make([]chunkResult, 0, len(chunks))
	for i, chunk := range chunks {
		if i > 0 {
			if hbErr := o.heartbeat(ctx, run); hbErr != nil {
				return hbErr
			}
		}

		result, chunkErr := o.fetchChunk(ctx, logger, cred, chunk)
		if chunkErr != nil {
			return o.failRun(ctx, run, started, chunkErr)
		}
		results = append(results, result)
	}

	records, rejected, source := o.normalizeResults(run, results)

	totalRaw := 0
	for _, r := range results {
		totalRaw += len(r.raw)
	}
	if totalRaw > 0 && len(records) == 0 {
		return o.failRun(ctx, run, started,
			apperrors.Validation(fmt.Sprintf("all %d fetched records failed normalization", totalRaw)))
	}
	if len(rejected) > 0 {
		logger.Warn("run proceeding with partial batch",
			"rejected", len(rejected),
			"accepted", len(records))
	}

	count, err := o.runs.CompleteRun(ctx, core.CompleteRunParams{
		RunID:   run.ID,
		Records: records,
		Source:  source,
	})
	if err != nil {
		// The commit failed; try to leave a terminal failure behind.
		return o.failRun(ctx, run, started,
			apperrors.Wrap(err, apperrors.ErrCodeStorage, "persist record batch"))
	}

	logger.Info("run succeeded",
		"records", count,
		"rejected", len(rejected),
		"source", source,
		"duration", o.timeProvider.Now().Sub(started))
	metrics.EmitRunLifecycle(o.metrics, metrics.RunMetric{
		Transition: "complete",
		Result:     metrics.ResultSuccess,
		Source:     string(source),
		Records:    count,
		Duration:   o.timeProvider.Now().Sub(started),
	})
	return nil
}

// fetchChunk tries the live source, falling back to synthetic data on any
// fetch failure and on an empty live result. Only context cancellation and
// fallback generation failures propagate.
func (o *IngestOrchestrator) fetchChunk(
	ctx context.Context,
	logger *slog.Logger,
	cred *model.DealerCredential,
	chunk model.DateRange,
) (chunkResult, error) {
	raw, err := o.source.Fetch(ctx, cred, chunk)
	if err == nil && len(raw) > 0 {
		return chunkResult{raw: raw, source: model.DataSourceLiveAPI}, nil
	}
	if ctx.Err() != nil {
		return chunkResult{}, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "fetch canceled")
	}

	if err != nil {
		logger.Warn("live fetch failed, using fallback",
			"start", chunk.Start.Format("2006-01-02"),
			"end", chunk.End.Format("2006-01-02"),
			"error", err)
		metrics.EmitFetchFallback(o.metrics, err)
	} else {
		logger.Info("live fetch returned no records, using fallback",
			"start", chunk.Start.Format("2006-01-02"),
			"end", chunk.End.Format("2006-01-02"))
	}

	raw, genErr := o.fallback.Generate(cred.DealerID, chunk)
	if genErr != nil {
		return chunkResult{}, apperrors.Wrap(genErr, apperrors.ErrCodeInternal, "fallback generation failed")
	}
	return chunkResult{raw: raw, source: model.DataSourceFallback}, nil
}

// normalizeResults normalizes every chunk with its own source tag, merges
// them with cross-chunk last-write-wins dedupe, and derives the aggregate
// run source.
func (o *IngestOrchestrator) normalizeResults(
	run *model.JobRun,
	results []chunkResult,
) ([]*model.ProspectRecord, []RejectedRecord, model.DataSource) {
	ingestedAt := o.timeProvider.Now()

	var (
		merged   []*model.ProspectRecord
		rejected []RejectedRecord
		byKey    = make(map[string]int)
		sawLive  bool
		sawSynth bool
	)

	for _, result := range results {
		switch result.source {
		case model.DataSourceLiveAPI:
			sawLive = true
		case model.DataSourceFallback:
			sawSynth = true
		}

		out := o.normalizer.Normalize(NormalizeBatchParams{
			DealerID:   run.DealerID,
			JobID:      run.ID,
			Source:     result.source,
			IngestedAt: ingestedAt,
			Raw:        result.raw,
		})
		rejected = append(rejected, out.Rejected...)

		for _, rec := range out.Records {
			if prev, ok := byKey[rec.ExternalID]; ok {
				merged[prev] = rec
				continue
			}
			byKey[rec.ExternalID] = len(merged)
			merged = append(merged, rec)
		}
	}

	source := model.DataSourceLiveAPI
	switch {
	case sawLive && sawSynth:
		source = model.DataSourceMixed
	case sawSynth:
		source = model.DataSourceFallback
	}
	return merged, rejected, source
}

func (o *IngestOrchestrator) heartbeat(ctx context.Context, run *model.JobRun) error {
	alive, err := o.runs.Heartbeat(ctx, run.ID, o.leaseSeconds)
	if err != nil {
		return fmt.Errorf("heartbeat run %s: %w", run.ID, err)
	}
	if !alive {
		return fmt.Errorf("run %s lost its lease mid-flight", run.ID)
	}
	return nil
}

// failRun marks the run Failed with a classified detail string. Storage
// failures while failing are returned so the sweeper can pick the run up.
func (o *IngestOrchestrator) failRun(ctx context.Context, run *model.JobRun, started time.Time, cause error) error {
	detail := cause.Error()
	if code := apperrors.GetCode(cause); code != "" {
		detail = fmt.Sprintf("%s: %s", code, detail)
	}

	o.logger.Error("run failed",
		"job_id", run.ID,
		"dealer_id", run.DealerID,
		"detail", detail)
	metrics.EmitRunLifecycle(o.metrics, metrics.RunMetric{
		Transition: "complete",
		Result:     metrics.ResultError,
		Duration:   o.timeProvider.Now().Sub(started),
		Err:        cause,
	})

	updated, err := o.runs.FailRun(ctx, run.ID, detail)
	if err != nil {
		return fmt.Errorf("mark run %s failed: %w", run.ID, err)
	}
	if !updated {
		o.logger.Warn("run already terminal while failing", "job_id", run.ID)
	}
	return nil
}
