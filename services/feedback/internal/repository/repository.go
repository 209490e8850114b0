package repository

import (
	"context"
	"time"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// FeedbackStore defines the persistence operations for feedback records.
// Implementations return apperrors.ErrNotFound for unknown or malformed ids
// and wrap connectivity failures with apperrors.Unavailable. They never retry.
type FeedbackStore interface {
	// Save inserts f or overwrites the record with the same id. An empty id
	// is assigned before writing. The notified flag never reverts to false.
	Save(ctx context.Context, f *domain.Feedback) error

	// FindByID retrieves a record by its id.
	FindByID(ctx context.Context, id string) (*domain.Feedback, error)

	// FindBySubmittedRange returns records submitted within [start, end].
	FindBySubmittedRange(ctx context.Context, start, end time.Time) ([]domain.Feedback, error)

	// MarkNotified sets the notified flag in one atomic conditional write.
	// Marking an already-notified record succeeds.
	MarkNotified(ctx context.Context, id string) error

	// MarkEnqueued records that an escalation event for id reached the queue
	// at the given time. The first mark wins; marking again succeeds.
	MarkEnqueued(ctx context.Context, id string, at time.Time) error

	// FindPendingEscalations returns critical records that are still not
	// notified, were never marked enqueued and were submitted before
	// olderThan, oldest first.
	FindPendingEscalations(ctx context.Context, olderThan time.Time, limit int) ([]domain.Feedback, error)
}
