package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	pkgconfig "github.com/utafrali/FeedbackGo/pkg/config"
	"github.com/utafrali/FeedbackGo/pkg/database"
)

// Backend and channel names.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	QueueKafka = "kafka"
	QueueRedis = "redis"

	AlertKafka    = "kafka"
	AlertWebhook  = "webhook"
	AlertTelegram = "telegram"
	AlertLog      = "log"

	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config holds all configuration for the feedback service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"FEEDBACK_HTTP_PORT" envDefault:"8080"`

	// Backends
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`
	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"kafka"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"feedback"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"feedback"`
	PostgresDB   string `env:"FEEDBACK_DB_NAME" envDefault:"feedback"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisQueueKey string `env:"REDIS_QUEUE_KEY" envDefault:"feedback:escalations"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Escalation consumer
	BatchPolicy          string        `env:"BATCH_POLICY" envDefault:"abort"`
	DuplicatePolicy      string        `env:"DUPLICATE_POLICY" envDefault:"skip_notified"`
	EscalationBatchSize  int           `env:"ESCALATION_BATCH_SIZE" envDefault:"10"`
	EscalationMaxReceive int           `env:"ESCALATION_MAX_RECEIVES" envDefault:"3"`
	EscalationBackoff    time.Duration `env:"ESCALATION_RETRY_BACKOFF" envDefault:"1s"`
	EscalationConsumerID string        `env:"ESCALATION_CONSUMER_ID"` // redis queue; defaults to the host name

	// Reconciliation of escalations lost between save and publish
	ReconcileEnabled  bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileGrace    time.Duration `env:"RECONCILE_GRACE" envDefault:"5m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileLimit    int           `env:"RECONCILE_LIMIT" envDefault:"100"`

	// Notification channels
	AlertChannel string `env:"ALERT_CHANNEL" envDefault:"log"`
	MailChannel  string `env:"MAIL_CHANNEL" envDefault:"log"`

	MailFrom       string   `env:"MAIL_FROM" envDefault:"feedback@localhost"`
	MailRecipients []string `env:"MAIL_RECIPIENTS" envDefault:"admin@localhost" envSeparator:","`

	SMTPHost     string        `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"15s"`

	AlertWebhookURL       string  `env:"ALERT_WEBHOOK_URL"`
	AlertRateLimit        float64 `env:"ALERT_RATE_LIMIT" envDefault:"5"`
	TelegramBotToken      string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID        int64   `env:"TELEGRAM_CHAT_ID"`
	TelegramRatePerSecond float64 `env:"TELEGRAM_RATE_PER_SECOND" envDefault:"1"`

	// Weekly report
	ReportTimezone        string `env:"REPORT_TIMEZONE" envDefault:"UTC"`
	ReportScheduleEnabled bool   `env:"REPORT_SCHEDULE_ENABLED" envDefault:"false"`
	ReportWeekday         string `env:"REPORT_WEEKDAY" envDefault:"monday"`
	ReportHour            int    `env:"REPORT_HOUR" envDefault:"9"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load feedback config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), value)
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if err := oneOf("STORE_BACKEND", c.StoreBackend, StorePostgres, StoreRedis); err != nil {
		return err
	}
	if err := oneOf("QUEUE_BACKEND", c.QueueBackend, QueueKafka, QueueRedis); err != nil {
		return err
	}
	if err := oneOf("ALERT_CHANNEL", c.AlertChannel, AlertKafka, AlertWebhook, AlertTelegram, AlertLog); err != nil {
		return err
	}
	if err := oneOf("MAIL_CHANNEL", c.MailChannel, MailSMTP, MailLog); err != nil {
		return err
	}
	if err := oneOf("BATCH_POLICY", c.BatchPolicy, "abort", "isolate"); err != nil {
		return err
	}
	if err := oneOf("DUPLICATE_POLICY", c.DuplicatePolicy, "allow", "skip_notified"); err != nil {
		return err
	}
	if c.EscalationBatchSize < 1 {
		return fmt.Errorf("ESCALATION_BATCH_SIZE must be > 0, got %d", c.EscalationBatchSize)
	}
	if c.EscalationMaxReceive < 1 {
		return fmt.Errorf("ESCALATION_MAX_RECEIVES must be > 0, got %d", c.EscalationMaxReceive)
	}
	if (c.QueueBackend == QueueKafka || c.AlertChannel == AlertKafka) && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.AlertChannel == AlertWebhook && c.AlertWebhookURL == "" {
		return fmt.Errorf("ALERT_WEBHOOK_URL is required for the webhook alert channel")
	}
	if c.AlertChannel == AlertTelegram && (c.TelegramBotToken == "" || c.TelegramChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for the telegram alert channel")
	}
	if c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required")
	}
	if len(c.Recipients()) == 0 {
		return fmt.Errorf("MAIL_RECIPIENTS is required")
	}
	if _, err := c.ReportLocation(); err != nil {
		return err
	}
	if c.ReportHour < 0 || c.ReportHour > 23 {
		return fmt.Errorf("REPORT_HOUR must be between 0 and 23, got %d", c.ReportHour)
	}
	if c.ReconcileEnabled && c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be > 0, got %s", c.ReconcileInterval)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// ReportLocation resolves REPORT_TIMEZONE.
func (c *Config) ReportLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Recipients returns the trimmed, non-empty MAIL_RECIPIENTS entries.
func (c *Config) Recipients() []string {
	out := make([]string, 0, len(c.MailRecipients))
	for _, r := range c.MailRecipients {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// NeedsPostgres reports whether any component uses PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.StoreBackend == StorePostgres
}

// NeedsRedis reports whether any component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.StoreBackend == StoreRedis || c.QueueBackend == QueueRedis
}

// NeedsKafka reports whether any component uses Kafka.
func (c *Config) NeedsKafka() bool {
	return c.QueueBackend == QueueKafka || c.AlertChannel == AlertKafka
}
