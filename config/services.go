package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the ingest worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeScheduler runs the cron scheduler that enqueues runs per dealer.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeSweeper runs the stale-run sweeper.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeScheduler, ServiceModeSweeper}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. Unknown names are an error.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeScheduler, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, scheduler, sweeper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains ingest worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines pulling pending runs.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// Lease is how long a reserved run stays leased between heartbeats.
	Lease time.Duration `env:"WORKER_LEASE" envDefault:"60s"`

	// PollInterval bounds how long a worker waits for a wakeup notification
	// before re-checking the queue anyway.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Lease < time.Second {
		w.Lease = 60 * time.Second
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 5 * time.Second
	}
}

// SweeperConfig contains stale-run sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1m"`

	// PendingMaxAge is how long a run may sit Pending before it is failed.
	PendingMaxAge time.Duration `env:"SWEEPER_PENDING_MAX_AGE" envDefault:"1h"`

	// BatchSize bounds rows touched per sweep to avoid long locks.
	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.PendingMaxAge <= 0 {
		s.PendingMaxAge = time.Hour
	}
	if s.BatchSize < 1 {
		s.BatchSize = 500
	}
}

// SchedulerConfig contains cron scheduler configuration.
type SchedulerConfig struct {
	// Cron is the schedule expression for automatic per-dealer ingestion.
	Cron string `env:"SCHEDULER_CRON" envDefault:"0 2 * * *"`

	// WindowDays is the trailing date-range length each scheduled run covers.
	WindowDays int `env:"SCHEDULER_WINDOW_DAYS" envDefault:"7"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Cron == "" {
		s.Cron = "0 2 * * *"
	}
	if s.WindowDays < 1 {
		s.WindowDays = 7
	}
}

// FetchConfig contains partner API adapter configuration.
type FetchConfig struct {
	// BaseURL is the partner API root, e.g. https://partner.example.com.
	BaseURL string `env:"FETCH_BASE_URL" envDefault:"http://localhost:9090"`

	// Timeout bounds a single fetch attempt.
	Timeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`

	// RetryBackoff is the delay before the single retry of a transport failure.
	RetryBackoff time.Duration `env:"FETCH_RETRY_BACKOFF" envDefault:"2s"`

	// MaxChunkDays splits long date ranges into bounded per-request chunks.
	MaxChunkDays int `env:"FETCH_MAX_CHUNK_DAYS" envDefault:"31"`

	// RecordsPath is the JMESPath expression locating the prospect array in
	// the partner response envelope. Partners disagree on the shape.
	RecordsPath string `env:"FETCH_RECORDS_PATH" envDefault:"prospects"`

	// RequestsPerSecond rate-limits calls to the partner API. Zero disables
	// limiting.
	RequestsPerSecond float64 `env:"FETCH_REQUESTS_PER_SECOND" envDefault:"5"`
}

// Sanitize applies guardrails to fetch configuration values.
func (f *FetchConfig) Sanitize() {
	if f.Timeout <= 0 {
		f.Timeout = 15 * time.Second
	}
	if f.RetryBackoff <= 0 {
		f.RetryBackoff = 2 * time.Second
	}
	if f.MaxChunkDays < 1 {
		f.MaxChunkDays = 31
	}
	if f.RecordsPath == "" {
		f.RecordsPath = "prospects"
	}
	if f.RequestsPerSecond < 0 {
		f.RequestsPerSecond = 0
	}
}

// FallbackConfig contains synthetic data generator configuration.
type FallbackConfig struct {
	// MaxRecords caps how many synthetic records one run may generate.
	MaxRecords int `env:"FALLBACK_MAX_RECORDS" envDefault:"100"`

	// Seed makes synthetic output reproducible across processes.
	Seed int64 `env:"FALLBACK_SEED" envDefault:"1"`
}

// Sanitize applies guardrails to fallback configuration values.
func (f *FallbackConfig) Sanitize() {
	if f.MaxRecords < 1 {
		f.MaxRecords = 100
	}
	if f.Seed == 0 {
		f.Seed = 1
	}
}
