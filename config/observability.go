package config

// ObservabilityConfig contains metrics configuration.
type ObservabilityConfig struct {
	// StatsdEnabled toggles metric emission.
	StatsdEnabled bool `env:"STATSD_ENABLED" envDefault:"false"`

	// StatsdAddress is the UDP host:port of the statsd sink.
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"localhost:8125"`

	// StatsdPrefix is prepended to every metric name.
	StatsdPrefix string `env:"STATSD_PREFIX" envDefault:"prospect_ingest"`
}

// Sanitize applies guardrails to observability configuration values.
func (o *ObservabilityConfig) Sanitize() {
	if o.StatsdPrefix == "" {
		o.StatsdPrefix = "prospect_ingest"
	}
}
