package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/FeedbackGo/pkg/database"
	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

const (
	saveSQL = `
		INSERT INTO feedback (id, description, score, urgency, submitted_at, notified)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET description  = EXCLUDED.description,
		    score        = EXCLUDED.score,
		    urgency      = EXCLUDED.urgency,
		    submitted_at = EXCLUDED.submitted_at,
		    notified     = feedback.notified OR EXCLUDED.notified`

	findByIDSQL = `
		SELECT id, description, score, urgency, submitted_at, notified
		FROM feedback
		WHERE id = $1`

	findByRangeSQL = `
		SELECT id, description, score, urgency, submitted_at, notified
		FROM feedback
		WHERE submitted_at >= $1 AND submitted_at <= $2
		ORDER BY submitted_at`

	markNotifiedSQL = `UPDATE feedback SET notified = TRUE WHERE id = $1 AND notified = FALSE`

	markEnqueuedSQL = `UPDATE feedback SET enqueued_at = COALESCE(enqueued_at, $2) WHERE id = $1`

	existsSQL = `SELECT EXISTS (SELECT 1 FROM feedback WHERE id = $1)`

	findPendingSQL = `
		SELECT id, description, score, urgency, submitted_at, notified
		FROM feedback
		WHERE urgency = $1 AND notified = FALSE AND enqueued_at IS NULL AND submitted_at < $2
		ORDER BY submitted_at
		LIMIT $3`
)

// FeedbackRepository implements repository.FeedbackStore using PostgreSQL.
type FeedbackRepository struct {
	pool database.DBTX
}

// NewFeedbackRepository creates a new PostgreSQL-backed feedback store.
func NewFeedbackRepository(pool database.DBTX) *FeedbackRepository {
	return &FeedbackRepository{pool: pool}
}

// Save upserts a feedback record.
func (r *FeedbackRepository) Save(ctx context.Context, f *domain.Feedback) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Save", saveSQL)
	defer func() { end(err) }()

	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	_, err = r.pool.Exec(ctx, saveSQL,
		f.ID,
		f.Description,
		f.Score,
		string(f.Urgency),
		f.SubmittedAt,
		f.Notified,
	)
	if err != nil {
		return storeError("save feedback", err)
	}
	return nil
}

// FindByID retrieves a feedback record by its ID.
func (r *FeedbackRepository) FindByID(ctx context.Context, id string) (_ *domain.Feedback, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, apperrors.NotFound("feedback", id)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "FindByID", findByIDSQL)
	defer func() { end(err) }()

	f, err := scanFeedback(r.pool.QueryRow(ctx, findByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("feedback", id)
		}
		return nil, storeError("get feedback", err)
	}
	return f, nil
}

// FindBySubmittedRange returns the records submitted in [start, end].
func (r *FeedbackRepository) FindBySubmittedRange(ctx context.Context, start, end time.Time) (_ []domain.Feedback, err error) {
	ctx, endSpan := database.TraceQuery(ctx, database.SystemPostgres, "FindBySubmittedRange", findByRangeSQL)
	defer func() { endSpan(err) }()

	return r.list(ctx, "list feedback by range", findByRangeSQL, start, end)
}

// MarkNotified flips the notified flag. A zero-row update is resolved with
// an existence check so that an already-notified record is not an error.
func (r *FeedbackRepository) MarkNotified(ctx context.Context, id string) (err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return apperrors.NotFound("feedback", id)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "MarkNotified", markNotifiedSQL)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, markNotifiedSQL, id)
	if err != nil {
		return storeError("mark feedback notified", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, existsSQL, id).Scan(&exists); err != nil {
		return storeError("check feedback exists", err)
	}
	if !exists {
		return apperrors.NotFound("feedback", id)
	}
	return nil
}

// MarkEnqueued stamps enqueued_at unless it is already set.
func (r *FeedbackRepository) MarkEnqueued(ctx context.Context, id string, at time.Time) (err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return apperrors.NotFound("feedback", id)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "MarkEnqueued", markEnqueuedSQL)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, markEnqueuedSQL, id, at.UTC())
	if err != nil {
		return storeError("mark feedback enqueued", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("feedback", id)
	}
	return nil
}

// FindPendingEscalations lists critical records still awaiting notification
// whose escalation never reached the queue.
func (r *FeedbackRepository) FindPendingEscalations(ctx context.Context, olderThan time.Time, limit int) (_ []domain.Feedback, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "FindPendingEscalations", findPendingSQL)
	defer func() { end(err) }()

	return r.list(ctx, "list pending escalations", findPendingSQL, string(domain.UrgencyCritical), olderThan, limit)
}

func (r *FeedbackRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Feedback, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, storeError(op, err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}

func scanFeedback(row pgx.Row) (*domain.Feedback, error) {
	var (
		f       domain.Feedback
		urgency string
	)
	err := row.Scan(&f.ID, &f.Description, &f.Score, &urgency, &f.SubmittedAt, &f.Notified)
	if err != nil {
		return nil, err
	}

	f.Urgency, err = domain.ParseUrgency(urgency)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("feedback %s: %w", f.ID, err))
	}
	f.SubmittedAt = f.SubmittedAt.UTC()
	return &f, nil
}

// storeError keeps SQL and decoding errors as internal failures and
// classifies everything else (dial, timeout, closed pool) as a retryable outage.
func storeError(op string, err error) error {
	var (
		pgErr  *pgconn.PgError
		appErr *apperrors.AppError
	)
	if errors.Is(err, pgx.ErrNoRows) || errors.As(err, &pgErr) || errors.As(err, &appErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.Unavailable("feedback store", fmt.Errorf("%s: %w", op, err))
}
