package report

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/notify"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/sender"
)

// --- Mock Range Reader ---

type mockReader struct {
	mock.Mock
}

func (m *mockReader) FindBySubmittedRange(ctx context.Context, start, end time.Time) ([]domain.Feedback, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]domain.Feedback), args.Error(1)
}

// --- Mock Mail Sender ---

type mockMailSender struct {
	mock.Mock
}

func (m *mockMailSender) Name() string { return "smtp" }

func (m *mockMailSender) SendMail(ctx context.Context, msg sender.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	now        = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	recipients = notify.Recipients{From: "reports@example.com", To: []string{"board@example.com"}}
)

func record(score int, at time.Time) domain.Feedback {
	return domain.NewFeedback("feedback", score, at)
}

// ─── Compute ───

func TestCompute_Aggregates(t *testing.T) {
	reader := new(mockReader)
	a := NewAggregator(reader, new(mockMailSender), recipients, nil, newTestLogger())

	records := []domain.Feedback{
		record(1, now.Add(-30*time.Hour)),
		record(5, now.Add(-29*time.Hour)),
		record(8, now.Add(-2*time.Hour)),
		record(1, now.Add(-time.Hour)),
	}
	reader.On("FindBySubmittedRange", mock.Anything, now.Add(-7*24*time.Hour), now).Return(records, nil)

	r, err := a.Compute(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 4, r.TotalCount)
	assert.InDelta(t, 3.75, r.AverageScore, 1e-9)
	assert.Equal(t, "fair", r.Label())
	assert.Equal(t, map[string]int{"2024-03-14": 2, "2024-03-15": 2}, r.CountByDay)
	assert.Equal(t, map[domain.Urgency]int{
		domain.UrgencyCritical: 2,
		domain.UrgencyMedium:   1,
		domain.UrgencyLow:      1,
	}, r.CountByUrgency)
	assert.Equal(t, now.Add(-domain.ReportWindow), r.PeriodStart)
	assert.Equal(t, now, r.PeriodEnd)
}

func TestCompute_AggregatesSumToTotal(t *testing.T) {
	reader := new(mockReader)
	a := NewAggregator(reader, new(mockMailSender), recipients, time.UTC, newTestLogger())

	records := []domain.Feedback{
		record(2, now.Add(-50*time.Hour)),
		record(4, now.Add(-26*time.Hour)),
		record(9, now.Add(-3*time.Hour)),
	}
	reader.On("FindBySubmittedRange", mock.Anything, mock.Anything, mock.Anything).Return(records, nil)

	r, err := a.Compute(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 3, r.TotalCount)
	assert.InDelta(t, 5.0, r.AverageScore, 1e-9)

	var byDay, byUrgency int
	for _, n := range r.CountByDay {
		byDay += n
	}
	for _, n := range r.CountByUrgency {
		byUrgency += n
	}
	assert.Equal(t, r.TotalCount, byDay)
	assert.Equal(t, r.TotalCount, byUrgency)
	assert.Len(t, r.CountByDay, 3)
	assert.Equal(t, map[domain.Urgency]int{
		domain.UrgencyCritical: 1,
		domain.UrgencyMedium:   1,
		domain.UrgencyLow:      1,
	}, r.CountByUrgency)
}

func TestCompute_EmptyWindow(t *testing.T) {
	reader := new(mockReader)
	a := NewAggregator(reader, new(mockMailSender), recipients, time.UTC, newTestLogger())

	reader.On("FindBySubmittedRange", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Feedback{}, nil)

	r, err := a.Compute(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, r.TotalCount)
	assert.Zero(t, r.AverageScore)
	assert.Equal(t, "critical", r.Label())
	assert.Empty(t, r.CountByDay)
	assert.Empty(t, r.CountByUrgency)
}

func TestCompute_BucketsDaysInConfiguredZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	reader := new(mockReader)
	a := NewAggregator(reader, new(mockMailSender), recipients, tokyo, newTestLogger())

	// 20:00 UTC on the 14th is 05:00 on the 15th in Tokyo.
	records := []domain.Feedback{record(9, time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC))}
	reader.On("FindBySubmittedRange", mock.Anything, mock.Anything, mock.Anything).Return(records, nil)

	r, err := a.Compute(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2024-03-15": 1}, r.CountByDay)
}

func TestCompute_StoreError(t *testing.T) {
	reader := new(mockReader)
	a := NewAggregator(reader, new(mockMailSender), recipients, nil, newTestLogger())

	reader.On("FindBySubmittedRange", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Feedback(nil), apperrors.Unavailable("feedback store", errors.New("timeout")))

	_, err := a.Compute(context.Background(), now)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

// ─── Dispatch ───

func sampleReport() domain.Report {
	return domain.Report{
		PeriodStart:  now.Add(-domain.ReportWindow),
		PeriodEnd:    now,
		TotalCount:   14,
		AverageScore: 6.5,
		CountByDay:   map[string]int{"2024-03-15": 4, "2024-03-09": 10},
		CountByUrgency: map[domain.Urgency]int{
			domain.UrgencyLow:      9,
			domain.UrgencyCritical: 3,
			domain.UrgencyMedium:   2,
		},
		GeneratedAt: now,
	}
}

func TestDispatch_SendsReport(t *testing.T) {
	mail := new(mockMailSender)
	a := NewAggregator(new(mockReader), mail, recipients, nil, newTestLogger())

	var sent sender.Message
	mail.On("SendMail", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(sender.Message) }).
		Return(nil)

	require.NoError(t, a.Dispatch(context.Background(), sampleReport()))

	assert.Equal(t, "Weekly feedback report - 2024-03-15", sent.Subject)
	assert.Equal(t, recipients.From, sent.From)
	assert.Equal(t, recipients.To, sent.To)

	assert.Contains(t, sent.Text, "Total feedback: 14")
	assert.Contains(t, sent.Text, "Average score: 6.50 (good)")
	assert.Contains(t, sent.Text, "Critical feedback: 3")
	assert.Contains(t, sent.Text, "Daily rate: 2.0 per day")
	assert.Less(t, strings.Index(sent.Text, "2024-03-09"), strings.Index(sent.Text, "2024-03-15"))
	assert.Less(t, strings.Index(sent.Text, "CRITICAL: 3"), strings.Index(sent.Text, "MEDIUM: 2"))
	assert.Less(t, strings.Index(sent.Text, "MEDIUM: 2"), strings.Index(sent.Text, "LOW: 9"))

	assert.Contains(t, sent.HTML, "<td>2024-03-09</td><td>10</td>")
	assert.Contains(t, sent.HTML, "<td>CRITICAL</td><td>3</td>")
	assert.Contains(t, sent.HTML, "6.50")
}

func TestDispatch_FailureIsDispatchFailed(t *testing.T) {
	mail := new(mockMailSender)
	a := NewAggregator(new(mockReader), mail, recipients, nil, newTestLogger())

	mail.On("SendMail", mock.Anything, mock.Anything).Return(errors.New("554 rejected"))

	err := a.Dispatch(context.Background(), sampleReport())
	assert.ErrorIs(t, err, apperrors.ErrDispatchFailed)
	assert.ErrorContains(t, err, "554 rejected")
}

func TestText_EmptyReport(t *testing.T) {
	r := domain.Report{PeriodStart: now.Add(-domain.ReportWindow), PeriodEnd: now, GeneratedAt: now}

	text := Text(r, time.UTC)
	assert.Contains(t, text, "Total feedback: 0")
	assert.Contains(t, text, "Average score: 0.00 (critical)")
	assert.Contains(t, text, "none")
}
