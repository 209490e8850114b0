package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/FeedbackGo/pkg/database"
	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

const sampleID = "6f1c1d3e-3a53-4a8c-9a39-0d3c0f5b7a10"

var feedbackColumns = []string{"id", "description", "score", "urgency", "submitted_at", "notified"}

func sampleFeedback() *domain.Feedback {
	return &domain.Feedback{
		ID:          sampleID,
		Description: "late materials",
		Score:       2,
		SubmittedAt: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
		Urgency:     domain.UrgencyCritical,
	}
}

func newRepo(t *testing.T) (*FeedbackRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewFeedbackRepository(mock), mock
}

// ─── Save ────────────────────────────────────────────────────────────────────

func TestFeedbackRepository_Save_Success(t *testing.T) {
	repo, mock := newRepo(t)
	f := sampleFeedback()

	mock.ExpectExec("INSERT INTO feedback").
		WithArgs(f.ID, f.Description, f.Score, "CRITICAL", f.SubmittedAt, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Save(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_Save_AssignsID(t *testing.T) {
	repo, mock := newRepo(t)
	f := sampleFeedback()
	f.ID = ""

	mock.ExpectExec("INSERT INTO feedback").
		WithArgs(pgxmock.AnyArg(), f.Description, f.Score, "CRITICAL", f.SubmittedAt, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Save(context.Background(), f))
	assert.NotEmpty(t, f.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_Save_ConnectionErrorIsRetryable(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("INSERT INTO feedback").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

	err := repo.Save(context.Background(), sampleFeedback())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
}

func TestFeedbackRepository_Save_SQLErrorIsNotRetryable(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("INSERT INTO feedback").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check constraint violated"})

	err := repo.Save(context.Background(), sampleFeedback())
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

// ─── FindByID ────────────────────────────────────────────────────────────────

func TestFeedbackRepository_FindByID_Success(t *testing.T) {
	repo, mock := newRepo(t)
	f := sampleFeedback()

	mock.ExpectQuery("FROM feedback").
		WithArgs(f.ID).
		WillReturnRows(pgxmock.NewRows(feedbackColumns).
			AddRow(f.ID, f.Description, f.Score, "CRITICAL", f.SubmittedAt, true))

	got, err := repo.FindByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, domain.UrgencyCritical, got.Urgency)
	assert.True(t, got.Notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("FROM feedback").
		WithArgs(sampleID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByID(context.Background(), sampleID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestFeedbackRepository_FindByID_MalformedID(t *testing.T) {
	repo, mock := newRepo(t)

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet(), "no query is issued for a malformed id")
}

func TestFeedbackRepository_FindByID_CorruptUrgency(t *testing.T) {
	repo, mock := newRepo(t)
	f := sampleFeedback()

	mock.ExpectQuery("FROM feedback").
		WithArgs(f.ID).
		WillReturnRows(pgxmock.NewRows(feedbackColumns).
			AddRow(f.ID, f.Description, f.Score, "URGENT", f.SubmittedAt, false))

	_, err := repo.FindByID(context.Background(), f.ID)
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

// ─── FindBySubmittedRange ────────────────────────────────────────────────────

func TestFeedbackRepository_FindBySubmittedRange(t *testing.T) {
	repo, mock := newRepo(t)
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(domain.ReportWindow)

	mock.ExpectQuery("WHERE submitted_at >= \\$1 AND submitted_at <= \\$2").
		WithArgs(start, end).
		WillReturnRows(pgxmock.NewRows(feedbackColumns).
			AddRow(sampleID, "late", 1, "CRITICAL", start, false).
			AddRow("0b7e2d55-1111-4a8c-9a39-0d3c0f5b7a10", "ok", 5, "MEDIUM", end, false))

	got, err := repo.FindBySubmittedRange(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.UrgencyMedium, got[1].Urgency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_FindBySubmittedRange_Empty(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM feedback").
		WithArgs(now.Add(-domain.ReportWindow), now).
		WillReturnRows(pgxmock.NewRows(feedbackColumns))

	got, err := repo.FindBySubmittedRange(context.Background(), now.Add(-domain.ReportWindow), now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// ─── MarkNotified ────────────────────────────────────────────────────────────

func TestFeedbackRepository_MarkNotified_FirstCall(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE feedback SET notified = TRUE").
		WithArgs(sampleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkNotified(context.Background(), sampleID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_MarkNotified_Idempotent(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE feedback SET notified = TRUE").
		WithArgs(sampleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(sampleID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, repo.MarkNotified(context.Background(), sampleID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_MarkNotified_Missing(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE feedback SET notified = TRUE").
		WithArgs(sampleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(sampleID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.MarkNotified(context.Background(), sampleID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_MarkNotified_MalformedID(t *testing.T) {
	repo, _ := newRepo(t)

	err := repo.MarkNotified(context.Background(), "42")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// ─── MarkEnqueued ────────────────────────────────────────────────────────────

func TestFeedbackRepository_MarkEnqueued(t *testing.T) {
	repo, mock := newRepo(t)
	at := time.Date(2025, 7, 1, 12, 5, 0, 0, time.UTC)

	mock.ExpectExec("SET enqueued_at = COALESCE\\(enqueued_at, \\$2\\)").
		WithArgs(sampleID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkEnqueued(context.Background(), sampleID, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_MarkEnqueued_Missing(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE feedback SET enqueued_at").
		WithArgs(sampleID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkEnqueued(context.Background(), sampleID, time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_MarkEnqueued_ConnectionErrorIsRetryable(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE feedback SET enqueued_at").
		WithArgs(sampleID, pgxmock.AnyArg()).
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

	err := repo.MarkEnqueued(context.Background(), sampleID, time.Now())
	assert.True(t, apperrors.IsRetryable(err))
}

// ─── FindPendingEscalations ──────────────────────────────────────────────────

func TestFeedbackRepository_FindPendingEscalations(t *testing.T) {
	repo, mock := newRepo(t)
	cutoff := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	f := sampleFeedback()

	mock.ExpectQuery("notified = FALSE AND enqueued_at IS NULL AND submitted_at < \\$2").
		WithArgs("CRITICAL", cutoff, 50).
		WillReturnRows(pgxmock.NewRows(feedbackColumns).
			AddRow(f.ID, f.Description, f.Score, "CRITICAL", f.SubmittedAt.Add(-time.Hour), false))

	got, err := repo.FindPendingEscalations(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedbackRepository_FindPendingEscalations_QueryError(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("FROM feedback").
		WithArgs("CRITICAL", pgxmock.AnyArg(), 10).
		WillReturnError(context.DeadlineExceeded)

	_, err := repo.FindPendingEscalations(context.Background(), time.Now(), 10)
	assert.True(t, apperrors.IsRetryable(err))
}
