package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/FeedbackGo/pkg/health"
	pkgkafka "github.com/utafrali/FeedbackGo/pkg/kafka"
	"github.com/utafrali/FeedbackGo/pkg/tracing"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/config"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/event"
	handler "github.com/utafrali/FeedbackGo/services/feedback/internal/handler/http"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/metrics"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/notify"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/queue"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/report"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/service"
)

// worker is a long-running escalation consumer.
type worker interface {
	Start(ctx context.Context) error
}

// App wires together all dependencies and runs the feedback service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	infra          *infra
	consumer       worker
	dlq            *pkgkafka.DLQProducer
	reconciler     *service.ReconcileService
	reports        *service.ReportService
	schedule       *service.WeeklySchedule
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	wg             sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
// Every component is built once here and shared by the HTTP handlers and the
// background workers.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batchPolicy, err := service.ParseBatchPolicy(cfg.BatchPolicy)
	if err != nil {
		return nil, err
	}
	duplicates, err := service.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.ReportLocation()
	if err != nil {
		return nil, err
	}

	var schedule *service.WeeklySchedule
	if cfg.ReportScheduleEnabled {
		weekday, err := service.ParseWeekday(cfg.ReportWeekday)
		if err != nil {
			return nil, fmt.Errorf("REPORT_WEEKDAY: %w", err)
		}
		schedule = &service.WeeklySchedule{Weekday: weekday, Hour: cfg.ReportHour, Location: loc}
	}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "feedback",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Connect backends.
	healthHandler := health.NewHandler()
	in, err := openInfra(ctx, cfg, serverBackends(cfg), healthHandler, logger)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		infra:          in,
		schedule:       schedule,
		tracerShutdown: tracerShutdown,
	}
	if err := a.build(cfg, in, healthHandler, duplicates, batchPolicy, loc); err != nil {
		_ = in.close(logger)
		_ = tracerShutdown(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(
	cfg *config.Config,
	in *infra,
	healthHandler *health.Handler,
	duplicates service.DuplicatePolicy,
	batchPolicy service.BatchPolicy,
	loc *time.Location,
) error {
	logger := a.logger
	sink := metrics.NewPrometheus(prometheus.DefaultRegisterer, logger)

	store, err := newStore(cfg, in)
	if err != nil {
		return err
	}
	alert, err := newAlertSender(cfg, in, logger)
	if err != nil {
		return err
	}
	mail, err := newMailSender(cfg, logger)
	if err != nil {
		return err
	}
	recipients := notify.Recipients{From: cfg.MailFrom, To: cfg.Recipients()}
	logger.Info("notification channels initialized",
		slog.String("alert", alert.Name()),
		slog.String("mail", mail.Name()),
		slog.Int("recipients", len(recipients.To)),
	)

	dispatcher := notify.NewDispatcher(alert, mail, recipients, sink, logger)
	escalations := service.NewEscalationService(store, dispatcher, duplicates, batchPolicy, logger)

	// Escalation queue: publisher for ingestion and consumer for escalations.
	var publisher service.Publisher
	switch cfg.QueueBackend {
	case config.QueueKafka:
		publisher = event.NewProducer(in.producer, logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumer = event.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			BatchSize:     cfg.EscalationBatchSize,
			MaxDeliveries: cfg.EscalationMaxReceive,
			RetryBackoff:  cfg.EscalationBackoff,
		}, event.NewConsumerHandler(escalations, logger), a.dlq, logger)
	case config.QueueRedis:
		q := queue.New(in.redis, queue.Config{
			Key:          cfg.RedisQueueKey,
			ConsumerID:   cfg.EscalationConsumerID,
			BatchSize:    cfg.EscalationBatchSize,
			MaxReceives:  cfg.EscalationMaxReceive,
			RetryBackoff: cfg.EscalationBackoff,
		}, logger)
		publisher = q
		a.consumer = queue.NewConsumer(q, escalations, logger)
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	logger.Info("escalation queue initialized",
		slog.String("backend", cfg.QueueBackend),
		slog.String("batch_policy", string(batchPolicy)),
		slog.String("duplicate_policy", string(duplicates)),
		slog.Int("batch_size", cfg.EscalationBatchSize),
	)

	ingestion := service.NewIngestionService(store, publisher, sink, logger)

	aggregator := report.NewAggregator(store, mail, recipients, loc, logger)
	a.reports = service.NewReportService(aggregator, sink, logger)

	if cfg.ReconcileEnabled {
		a.reconciler = service.NewReconcileService(store, publisher, sink, cfg.ReconcileGrace, cfg.ReconcileLimit, logger)
	}

	// HTTP router.
	feedbackHandler := handler.NewFeedbackHandler(ingestion, a.reports, logger)
	router := handler.NewRouter(feedbackHandler, healthHandler, prometheus.DefaultGatherer, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run starts the HTTP server and background workers, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	a.goWorker(func() {
		if err := a.consumer.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("escalation consumer error", slog.String("error", err.Error()))
		}
	})

	if a.reconciler != nil {
		a.goWorker(func() {
			a.reconciler.RunEvery(workerCtx, a.cfg.ReconcileInterval)
		})
	}

	if a.schedule != nil {
		a.goWorker(func() {
			service.RunWeekly(workerCtx, *a.schedule, func(ctx context.Context) error {
				_, err := a.reports.Run(ctx)
				return err
			}, a.logger)
		})
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopWorkers()
	return errors.Join(runErr, a.Shutdown())
}

func (a *App) goWorker(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background workers
// 3. Tracer (flush pending spans)
// 4. Kafka consumer and DLQ producer
// 5. Backend connections
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Wait for workers to finish their current batch.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.logger.Warn("background workers did not stop in time")
	}

	// 3. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close the Kafka consumer and its dead-letter producer.
	if c, ok := a.consumer.(*pkgkafka.BatchConsumer); ok {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close backend connections.
	if err := a.infra.close(a.logger); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
