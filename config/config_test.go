package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	t.Run("single service", func(t *testing.T) {
		services, err := ParseServices("http")
		require.NoError(t, err)
		assert.True(t, services[ServiceModeHTTP])
		assert.False(t, services[ServiceModeWorker])
	})

	t.Run("multiple services with spaces", func(t *testing.T) {
		services, err := ParseServices("http, worker ,sweeper")
		require.NoError(t, err)
		assert.True(t, services[ServiceModeHTTP])
		assert.True(t, services[ServiceModeWorker])
		assert.True(t, services[ServiceModeSweeper])
		assert.False(t, services[ServiceModeScheduler])
	})

	t.Run("all modes", func(t *testing.T) {
		services, err := ParseServices("http,worker,scheduler,sweeper")
		require.NoError(t, err)
		assert.Len(t, services, 4)
	})

	t.Run("empty string", func(t *testing.T) {
		_, err := ParseServices("")
		assert.Error(t, err)
	})

	t.Run("only commas", func(t *testing.T) {
		_, err := ParseServices(",,")
		assert.Error(t, err)
	})

	t.Run("unknown service name", func(t *testing.T) {
		_, err := ParseServices("http,cron")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cron")
	})
}

func TestServiceEnabledHelpers(t *testing.T) {
	cfg := &AppConfig{Services: "worker,sweeper"}

	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsWorkerEnabled())
	assert.False(t, cfg.IsSchedulerEnabled())
	assert.True(t, cfg.IsSweeperEnabled())

	// Invalid service strings disable everything rather than panic.
	bad := &AppConfig{Services: "bogus"}
	assert.False(t, bad.IsWorkerEnabled())
}

func TestSanitizeGuardrails(t *testing.T) {
	t.Run("worker", func(t *testing.T) {
		w := WorkerConfig{Concurrency: 0, Lease: 0, PollInterval: -time.Second}
		w.Sanitize()
		assert.Equal(t, 1, w.Concurrency)
		assert.Equal(t, 60*time.Second, w.Lease)
		assert.Equal(t, 5*time.Second, w.PollInterval)
	})

	t.Run("worker keeps explicit values", func(t *testing.T) {
		w := WorkerConfig{Concurrency: 8, Lease: 2 * time.Minute, PollInterval: time.Second}
		w.Sanitize()
		assert.Equal(t, 8, w.Concurrency)
		assert.Equal(t, 2*time.Minute, w.Lease)
	})

	t.Run("sweeper", func(t *testing.T) {
		s := SweeperConfig{}
		s.Sanitize()
		assert.Equal(t, time.Minute, s.Interval)
		assert.Equal(t, time.Hour, s.PendingMaxAge)
		assert.Equal(t, 500, s.BatchSize)
	})

	t.Run("scheduler", func(t *testing.T) {
		s := SchedulerConfig{WindowDays: -3}
		s.Sanitize()
		assert.Equal(t, "0 2 * * *", s.Cron)
		assert.Equal(t, 7, s.WindowDays)
	})

	t.Run("fetch", func(t *testing.T) {
		f := FetchConfig{RequestsPerSecond: -1}
		f.Sanitize()
		assert.Equal(t, 15*time.Second, f.Timeout)
		assert.Equal(t, 2*time.Second, f.RetryBackoff)
		assert.Equal(t, 31, f.MaxChunkDays)
		assert.Equal(t, "prospects", f.RecordsPath)
		assert.Equal(t, 0.0, f.RequestsPerSecond)
	})

	t.Run("fallback", func(t *testing.T) {
		f := FallbackConfig{}
		f.Sanitize()
		assert.Equal(t, 100, f.MaxRecords)
		assert.Equal(t, int64(1), f.Seed)
	})
}

func TestDetectDevMode(t *testing.T) {
	t.Run("honours APP_ENV", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		cfg := &AppConfig{Services: "http"}
		cfg.Sanitize()
		assert.True(t, cfg.IsDev)
	})

	t.Run("explicit DEV wins regardless of APP_ENV", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		cfg := &AppConfig{IsDev: true, Services: "http"}
		cfg.Sanitize()
		assert.True(t, cfg.IsDev)
	})

	t.Run("production stays off", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		cfg := &AppConfig{Services: "http"}
		cfg.Sanitize()
		assert.False(t, cfg.IsDev)
	})
}
