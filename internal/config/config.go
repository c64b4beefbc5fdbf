package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3000"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Redis settings (rate-limit counters)
	Redis RedisConfig

	// Email transport settings
	Email EmailConfig

	// Scheduling and dispatch settings
	Dispatch DispatchConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"outbox"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"outbox"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the rate counters
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// EmailConfig holds SMTP transport settings
type EmailConfig struct {
	// Enabled determines whether real sends happen; when false a no-op
	// sender is used
	Enabled bool `env:"EMAIL_ENABLED" envDefault:"false"`
	// SMTPHost is the SMTP server host
	SMTPHost string `env:"SMTP_HOST" envDefault:"localhost"`
	// SMTPPort is the SMTP server port
	SMTPPort int `env:"SMTP_PORT" envDefault:"587"`
	// SMTPUsername is the SMTP auth username (empty disables auth)
	SMTPUsername string `env:"SMTP_USERNAME" envDefault:""`
	// SMTPPassword is the SMTP auth password
	SMTPPassword string `env:"SMTP_PASSWORD" envDefault:""`
	// FromEmail is the default from email address
	FromEmail string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@example.com"`
	// FromName is the default from name
	FromName string `env:"EMAIL_FROM_NAME" envDefault:"OutBox"`
	// SendTimeout bounds a single SMTP send
	SendTimeout time.Duration `env:"SMTP_SEND_TIMEOUT" envDefault:"30s"`
}

// IsConfigured returns true if an SMTP host is configured
func (e *EmailConfig) IsConfigured() bool {
	return e.SMTPHost != "" && e.SMTPPort > 0
}

// DispatchConfig holds scheduling, worker, and rate-limit settings
type DispatchConfig struct {
	// WorkerConcurrency is the number of parallel dispatches
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"5"`
	// MaxEmailsPerHourPerSender is the per-sender hourly cap
	MaxEmailsPerHourPerSender int `env:"MAX_EMAILS_PER_HOUR_PER_SENDER" envDefault:"50"`
	// GlobalMaxEmailsPerHour is the global hourly cap
	GlobalMaxEmailsPerHour int `env:"GLOBAL_MAX_EMAILS_PER_HOUR" envDefault:"200"`
	// MinDelayBetweenEmailsMs is the per-dispatch throttle, applied inside
	// the worker slot
	MinDelayBetweenEmailsMs int `env:"MIN_DELAY_BETWEEN_EMAILS_MS" envDefault:"2000"`
	// QueueRateLimit is the pool-wide dispatches-per-second safety throttle
	QueueRateLimit int `env:"QUEUE_RATE_LIMIT" envDefault:"100"`
	// TransportRetryAttempts is the transport-failure retry budget per entry
	TransportRetryAttempts int `env:"TRANSPORT_RETRY_ATTEMPTS" envDefault:"3"`
	// TransportRetryBaseMs is the base of the exponential transport backoff
	TransportRetryBaseMs int `env:"TRANSPORT_RETRY_BASE_MS" envDefault:"1000"`
	// WorkerPollIntervalMs is how often the pool polls the queue
	WorkerPollIntervalMs int `env:"WORKER_POLL_INTERVAL_MS" envDefault:"1000"`
	// StaleThresholdMinutes is how long an entry may sit in processing
	// before the sweep reclaims it
	StaleThresholdMinutes int `env:"STALE_THRESHOLD_MINUTES" envDefault:"10"`
	// StaleRecoveryIntervalMs is the period of the stale-entry sweep
	StaleRecoveryIntervalMs int `env:"STALE_RECOVERY_INTERVAL_MS" envDefault:"300000"`
	// DefaultBulkDelayMs is the stagger used when a bulk request omits
	// delayBetweenEmails
	DefaultBulkDelayMs int `env:"DEFAULT_BULK_DELAY_MS" envDefault:"1000"`
}

// MinDelayBetweenEmails returns the per-dispatch throttle as a Duration
func (d *DispatchConfig) MinDelayBetweenEmails() time.Duration {
	return time.Duration(d.MinDelayBetweenEmailsMs) * time.Millisecond
}

// TransportRetryBase returns the transport backoff base as a Duration
func (d *DispatchConfig) TransportRetryBase() time.Duration {
	return time.Duration(d.TransportRetryBaseMs) * time.Millisecond
}

// WorkerPollInterval returns the queue poll interval as a Duration
func (d *DispatchConfig) WorkerPollInterval() time.Duration {
	return time.Duration(d.WorkerPollIntervalMs) * time.Millisecond
}

// StaleRecoveryInterval returns the stale sweep period as a Duration
func (d *DispatchConfig) StaleRecoveryInterval() time.Duration {
	return time.Duration(d.StaleRecoveryIntervalMs) * time.Millisecond
}

// NewConfig loads configuration from environment variables. Unrecognized
// keys are ignored.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.Int("worker_concurrency", cfg.Dispatch.WorkerConcurrency),
	)

	return cfg, nil
}
