package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Log     LogConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Renewal RenewalConfig
	Tracing TracingConfig
	Coupon  CouponConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"coupon_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`

	// JournalMaxConns sizes the separate pool used for renewal journal
	// writes, which must commit outside the redemption transaction.
	JournalMaxConns int `envconfig:"DB_JOURNAL_MAX_CONNS" default:"5"`

	// LockTimeoutMS bounds how long a redemption waits for a row lock
	// before it gives up with a retryable error.
	LockTimeoutMS int  `envconfig:"DB_LOCK_TIMEOUT_MS" default:"5000"`
	AutoMigrate   bool `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// JournalDSN returns the connection string for the journal pool.
func (c DBConfig) JournalDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=1",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.JournalMaxConns)
}

// LockTimeout returns LockTimeoutMS as a duration.
func (c DBConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// RedisConfig holds the stats cache configuration. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:""`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	StatsTTL time.Duration `envconfig:"REDIS_STATS_TTL" default:"30s"`
}

// KafkaConfig holds the redemption event publisher configuration.
// No brokers means events are not published.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"coupon-group-redemptions"`
}

// RenewalConfig holds the remote key renewal service configuration.
type RenewalConfig struct {
	BaseURL    string        `envconfig:"RENEWAL_BASE_URL" default:"http://localhost:8081"`
	Timeout    time.Duration `envconfig:"RENEWAL_TIMEOUT" default:"10s"`
	MaxRetries uint64        `envconfig:"RENEWAL_MAX_RETRIES" default:"3"`
}

// TracingConfig holds the trace exporter configuration. An empty
// JaegerEndpoint disables tracing.
type TracingConfig struct {
	ServiceName    string  `envconfig:"TRACING_SERVICE_NAME" default:"coupon-groups"`
	JaegerEndpoint string  `envconfig:"TRACING_JAEGER_ENDPOINT" default:""`
	SampleRatio    float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"0.1"`
}

// CouponConfig holds coupon group behaviour settings.
type CouponConfig struct {
	GroupsPerPage     int           `envconfig:"COUPON_GROUPS_PER_PAGE" default:"10"`
	ItemsPerPage      int           `envconfig:"COUPON_ITEMS_PER_PAGE" default:"10"`
	ReconcileInterval time.Duration `envconfig:"COUPON_RECONCILE_INTERVAL" default:"1m"`
	ReconcileAfter    time.Duration `envconfig:"COUPON_RECONCILE_AFTER" default:"5m"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
