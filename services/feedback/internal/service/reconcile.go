package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/metrics"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/repository"
)

// ReconcileService republishes critical records whose escalation event was
// lost between save and publish. A republished record is marked enqueued and
// is not picked up again, even if its event later ends up dead-lettered.
type ReconcileService struct {
	store     repository.FeedbackStore
	publisher Publisher
	metrics   metrics.Sink
	logger    *slog.Logger
	grace     time.Duration
	limit     int
	now       func() time.Time
}

// NewReconcileService creates a reconcile service. Records younger than grace
// are left alone since their escalation may still be in flight.
func NewReconcileService(
	store repository.FeedbackStore,
	publisher Publisher,
	sink metrics.Sink,
	grace time.Duration,
	limit int,
	logger *slog.Logger,
) *ReconcileService {
	if limit <= 0 {
		limit = 100
	}
	return &ReconcileService{
		store:     store,
		publisher: publisher,
		metrics:   sink,
		logger:    logger,
		grace:     grace,
		limit:     limit,
		now:       time.Now,
	}
}

// Run republishes one page of pending escalations and returns how many were
// published.
func (s *ReconcileService) Run(ctx context.Context) (int, error) {
	pending, err := s.store.FindPendingEscalations(ctx, s.now().Add(-s.grace), s.limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, f := range pending {
		if err := s.publisher.Publish(ctx, domain.NewEscalationEvent(f)); err != nil {
			s.metrics.Error(metrics.ErrorEscalationPublish)
			s.logger.ErrorContext(ctx, "failed to republish escalation",
				slog.String("feedback_id", f.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.metrics.EscalationPublished()
		published++

		if err := s.store.MarkEnqueued(ctx, f.ID, s.now()); err != nil {
			s.logger.WarnContext(ctx, "failed to mark escalation enqueued",
				slog.String("feedback_id", f.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(pending) > 0 {
		s.logger.InfoContext(ctx, "republished pending escalations",
			slog.Int("pending", len(pending)),
			slog.Int("published", published),
		)
	}
	return published, nil
}

// RunEvery runs Run on every tick until ctx is cancelled.
func (s *ReconcileService) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.ErrorContext(ctx, "reconcile run failed", slog.String("error", err.Error()))
			}
		}
	}
}
