// Package metrics defines the standard metric names and tag shapes emitted
// by the ingestion pipeline.
package metrics

import (
	"time"

	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
	"github.com/dealerlink/prospect-ingest/internal/observability/statsd"
)

// Result values for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// RunMetric captures an ingestion run lifecycle event. Dealer IDs are
// deliberately excluded from tags to keep metric cardinality bounded.
type RunMetric struct {
	Transition string
	Result     string
	Source     string
	Records    int
	Duration   time.Duration
	Err        error
}

// EmitRunLifecycle emits the standard counters and timings for a run
// transition.
func EmitRunLifecycle(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Source != "" {
		tags["source"] = in.Source
	}
	if in.Err != nil && in.Result == ResultError {
		if code := apperrors.GetCode(in.Err); code != "" {
			tags["error_class"] = string(code)
		}
	}

	sink.Count("run.transition", 1, tags)
	if in.Records > 0 {
		sink.Count("run.records", int64(in.Records), tags)
	}
	if in.Duration > 0 {
		sink.Timing("run.duration", in.Duration, tags)
	}
}

// EmitSweep emits counters for a sweeper pass.
func EmitSweep(sink statsd.Sink, reason string, swept int64) {
	if sink == nil || swept == 0 {
		return
	}
	sink.Count("sweeper.swept", swept, map[string]string{"reason": reason})
}

// EmitFetchFallback counts chunks that fell back to synthetic data.
func EmitFetchFallback(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{}
	if code := apperrors.GetCode(err); code != "" {
		tags["error_class"] = string(code)
	}
	sink.Count("fetch.fallback", 1, tags)
}
