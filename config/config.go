// Package config defines the environment-driven application configuration.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// the available variables:
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - services.go: service mode, worker, sweeper, scheduler, fetch, fallback
//   - observability.go: statsd metrics
type AppConfig struct {
	// IsDev controls development-mode behavior (seeded dealer credentials,
	// verbose logging). Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Services selects which service modes this process runs,
	// comma-separated: http, worker, scheduler, sweeper.
	Services string `env:"SERVICES" envDefault:"http,worker"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Worker    WorkerConfig
	Sweeper   SweeperConfig
	Scheduler SchedulerConfig
	Fetch     FetchConfig
	Fallback  FallbackConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// Call after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Worker.Sanitize()
	c.Sweeper.Sanitize()
	c.Scheduler.Sanitize()
	c.Fetch.Sanitize()
	c.Fallback.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode also honours APP_ENV=development as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP API service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the ingest worker pool is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsSchedulerEnabled returns true if the cron scheduler is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	return c.serviceEnabled(ServiceModeScheduler)
}

// IsSweeperEnabled returns true if the stale-run sweeper is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	return c.serviceEnabled(ServiceModeSweeper)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
