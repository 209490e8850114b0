package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FeedbackGo/pkg/database"
	"github.com/utafrali/FeedbackGo/pkg/health"
	"github.com/utafrali/FeedbackGo/pkg/httpclient"
	pkgkafka "github.com/utafrali/FeedbackGo/pkg/kafka"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/config"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/event"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/repository"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/repository/postgres"
	redisrepo "github.com/utafrali/FeedbackGo/services/feedback/internal/repository/redis"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/sender"
	"github.com/utafrali/FeedbackGo/services/feedback/migrations"
)

// infra holds the connections opened for the configured backends. Fields for
// unused backends stay nil.
type infra struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *pkgkafka.Producer
}

// backends selects which connections openInfra opens.
type backends struct {
	postgres bool
	redis    bool
	kafka    bool
}

// serverBackends is everything the long-running service uses.
func serverBackends(cfg *config.Config) backends {
	return backends{
		postgres: cfg.NeedsPostgres(),
		redis:    cfg.NeedsRedis(),
		kafka:    cfg.NeedsKafka(),
	}
}

// storeBackends is only the feedback store.
func storeBackends(cfg *config.Config) backends {
	return backends{
		postgres: cfg.StoreBackend == config.StorePostgres,
		redis:    cfg.StoreBackend == config.StoreRedis,
	}
}

// openInfra connects to the selected backends and registers their health
// checks.
func openInfra(ctx context.Context, cfg *config.Config, want backends, healthHandler *health.Handler, logger *slog.Logger) (*infra, error) {
	in := &infra{}

	if want.postgres {
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		in.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(pool, "feedback"); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			_ = in.close(logger)
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}

	if want.redis {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			_ = in.close(logger)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		in.redis = client
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	if want.kafka {
		if err := pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers); err != nil {
			logger.Warn("kafka brokers not reachable at startup", slog.String("error", err.Error()))
		}
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		in.producer = producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

		check := func(ctx context.Context) error { return producer.Ping(ctx) }
		if cfg.QueueBackend == config.QueueKafka {
			healthHandler.RegisterCritical("kafka", check)
		} else {
			healthHandler.RegisterNonCritical("kafka", check)
		}
	}

	return in, nil
}

// close releases every open connection.
func (in *infra) close(logger *slog.Logger) error {
	var errs []error
	if in.producer != nil {
		if err := in.producer.Close(); err != nil {
			logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if in.pool != nil {
		in.pool.Close()
	}
	return errors.Join(errs...)
}

// newStore returns the feedback store selected by STORE_BACKEND.
func newStore(cfg *config.Config, in *infra) (repository.FeedbackStore, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if in.pool == nil {
			return nil, fmt.Errorf("postgres store selected but no pool is open")
		}
		return postgres.NewFeedbackRepository(in.pool), nil
	case config.StoreRedis:
		if in.redis == nil {
			return nil, fmt.Errorf("redis store selected but no client is open")
		}
		return redisrepo.NewFeedbackRepository(in.redis), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newAlertSender returns the alert channel selected by ALERT_CHANNEL.
func newAlertSender(cfg *config.Config, in *infra, logger *slog.Logger) (sender.AlertSender, error) {
	switch cfg.AlertChannel {
	case config.AlertLog:
		return sender.NewLogAlertSender(logger), nil
	case config.AlertKafka:
		if in.producer == nil {
			return nil, fmt.Errorf("kafka alert channel selected but no producer is open")
		}
		return sender.NewKafkaAlertSender(in.producer, event.TopicAlert, event.SourceFeedbackService), nil
	case config.AlertWebhook:
		clientCfg := httpclient.DefaultConfig()
		clientCfg.RateLimit = cfg.AlertRateLimit
		cbCfg := httpclient.DefaultCircuitBreakerConfig("alert-webhook")
		client := httpclient.NewCircuitBreakerClient(httpclient.New(clientCfg), cbCfg, logger)
		logger.Info("circuit breaker initialized",
			slog.String("name", cbCfg.Name),
			slog.Float64("rate_limit", clientCfg.RateLimit),
		)
		return sender.NewWebhookAlertSender(client, cfg.AlertWebhookURL), nil
	case config.AlertTelegram:
		s, err := sender.NewTelegramAlertSender(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramRatePerSecond)
		if err != nil {
			return nil, fmt.Errorf("init telegram sender: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown alert channel %q", cfg.AlertChannel)
	}
}

// newMailSender returns the mail channel selected by MAIL_CHANNEL.
func newMailSender(cfg *config.Config, logger *slog.Logger) (sender.MailSender, error) {
	switch cfg.MailChannel {
	case config.MailLog:
		return sender.NewLogMailSender(logger), nil
	case config.MailSMTP:
		s, err := sender.NewSMTPMailSender(sender.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init smtp sender: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown mail channel %q", cfg.MailChannel)
	}
}
