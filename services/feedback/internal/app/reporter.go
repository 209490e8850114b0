package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/FeedbackGo/pkg/health"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/config"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/metrics"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/notify"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/report"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/service"
)

// Reporter runs a single weekly report outside the long-running service,
// for cron-driven deployments.
type Reporter struct {
	logger  *slog.Logger
	infra   *infra
	reports *service.ReportService
}

// NewReporter connects to the feedback store and the mail channel only.
func NewReporter(cfg *config.Config, logger *slog.Logger) (*Reporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loc, err := cfg.ReportLocation()
	if err != nil {
		return nil, err
	}

	in, err := openInfra(ctx, cfg, storeBackends(cfg), health.NewHandler(), logger)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg, in)
	if err != nil {
		_ = in.close(logger)
		return nil, err
	}
	mail, err := newMailSender(cfg, logger)
	if err != nil {
		_ = in.close(logger)
		return nil, err
	}

	recipients := notify.Recipients{From: cfg.MailFrom, To: cfg.Recipients()}
	aggregator := report.NewAggregator(store, mail, recipients, loc, logger)

	return &Reporter{
		logger:  logger,
		infra:   in,
		reports: service.NewReportService(aggregator, metrics.Noop{}, logger),
	}, nil
}

// Run computes and mails the report covering the last seven days.
func (r *Reporter) Run(ctx context.Context) (domain.Report, error) {
	rep, err := r.reports.Run(ctx)
	if err != nil {
		return domain.Report{}, fmt.Errorf("weekly report: %w", err)
	}
	return rep, nil
}

// Close releases the store connection.
func (r *Reporter) Close() error {
	return r.infra.close(r.logger)
}
