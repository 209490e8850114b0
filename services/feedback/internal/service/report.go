package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/pkg/tracing"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/metrics"
)

// ReportService runs the weekly report: compute over the trailing window,
// then dispatch. Only one run may be in flight at a time.
type ReportService struct {
	generator ReportGenerator
	metrics   metrics.Sink
	logger    *slog.Logger
	now       func() time.Time
	running   atomic.Bool
}

// NewReportService creates a new report service.
func NewReportService(generator ReportGenerator, sink metrics.Sink, logger *slog.Logger) *ReportService {
	return &ReportService{
		generator: generator,
		metrics:   sink,
		logger:    logger,
		now:       time.Now,
	}
}

// Run computes and dispatches one report. A dispatch failure fails the run.
func (s *ReportService) Run(ctx context.Context) (domain.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.Report{}, apperrors.Conflict("a report run is already in progress")
	}
	defer s.running.Store(false)

	ctx, span := tracing.Start(ctx, tracerName, "report.run")
	defer span.End()

	report, err := s.generator.Compute(ctx, s.now())
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.ErrorContext(ctx, "failed to compute report", slog.String("error", err.Error()))
		return domain.Report{}, err
	}

	span.SetAttributes(
		attribute.Int("report.total", report.TotalCount),
		attribute.Float64("report.average", report.AverageScore),
	)

	if err := s.generator.Dispatch(ctx, report); err != nil {
		tracing.RecordError(span, err)
		s.metrics.Error(metrics.ErrorReportDispatch)
		s.logger.ErrorContext(ctx, "failed to dispatch report", slog.String("error", err.Error()))
		return domain.Report{}, err
	}

	s.metrics.ReportGenerated()
	s.metrics.NotificationSent(metrics.NotificationReport)
	s.logger.InfoContext(ctx, "report dispatched",
		slog.Int("total", report.TotalCount),
		slog.Float64("average_score", report.AverageScore),
		slog.String("label", report.Label()),
	)
	return report, nil
}
