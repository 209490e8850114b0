package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/pkg/logger"
	"github.com/utafrali/FeedbackGo/pkg/tracing"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/metrics"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/repository"
)

// IngestionService accepts new feedback and escalates critical records.
type IngestionService struct {
	store     repository.FeedbackStore
	publisher Publisher
	metrics   metrics.Sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(
	store repository.FeedbackStore,
	publisher Publisher,
	sink metrics.Sink,
	logger *slog.Logger,
) *IngestionService {
	return &IngestionService{
		store:     store,
		publisher: publisher,
		metrics:   sink,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitInput holds the parameters of a feedback submission.
type SubmitInput struct {
	Description string
	Score       int
}

// Submit validates, classifies and stores a submission. Critical records are
// published for escalation only after the save succeeds; a failed publish is
// logged and counted but does not fail the submission.
func (s *IngestionService) Submit(ctx context.Context, input SubmitInput) (*domain.Feedback, error) {
	ctx, span := tracing.Start(ctx, tracerName, "feedback.submit", attribute.Int("feedback.score", input.Score))
	defer span.End()

	f := domain.NewFeedback(input.Description, input.Score, s.now())
	if err := f.Validate(); err != nil {
		return nil, err
	}

	ctx = logger.WithFeedbackID(ctx, f.ID)
	log := logger.WithContext(ctx, s.logger)

	if err := s.store.Save(ctx, &f); err != nil {
		tracing.RecordError(span, err)
		log.ErrorContext(ctx, "failed to save feedback", slog.String("error", err.Error()))
		return nil, apperrors.Internal(err)
	}

	s.metrics.FeedbackReceived(f.Urgency)
	span.SetAttributes(attribute.String("feedback.urgency", f.Urgency.String()))
	log.InfoContext(ctx, "feedback received",
		slog.Int("score", f.Score),
		slog.String("urgency", f.Urgency.String()),
	)

	if f.IsCritical() {
		s.escalate(ctx, log, f)
	}

	return &f, nil
}

func (s *IngestionService) escalate(ctx context.Context, log *slog.Logger, f domain.Feedback) {
	if err := s.publisher.Publish(ctx, domain.NewEscalationEvent(f)); err != nil {
		s.metrics.Error(metrics.ErrorEscalationPublish)
		log.ErrorContext(ctx, "failed to publish escalation event, left for reconciliation",
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.EscalationPublished()
	log.InfoContext(ctx, "escalation event published")

	if err := s.store.MarkEnqueued(ctx, f.ID, s.now()); err != nil {
		// The reconciler may publish it once more; consumers skip notified records.
		log.WarnContext(ctx, "failed to mark escalation enqueued", slog.String("error", err.Error()))
	}
}

// Get returns a stored feedback record.
func (s *IngestionService) Get(ctx context.Context, id string) (*domain.Feedback, error) {
	return s.store.FindByID(ctx, id)
}
