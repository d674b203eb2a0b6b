package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"prospect"`
	Password string `env:"PASSWORD" envDefault:"prospect"`
	Name     string `env:"NAME"     envDefault:"prospect"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application applies
	// migrations automatically during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the job status cache.
// Redis is optional: leaving Addr empty disables the cache entirely.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// Enabled reports whether a Redis status cache should be wired up.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}
