package report

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/notify"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/sender"
)

// RangeReader loads the records submitted in a window.
type RangeReader interface {
	FindBySubmittedRange(ctx context.Context, start, end time.Time) ([]domain.Feedback, error)
}

// Aggregator computes the weekly report and mails it to the distribution list.
type Aggregator struct {
	store      RangeReader
	mail       sender.MailSender
	recipients notify.Recipients
	loc        *time.Location
	logger     *slog.Logger
}

// NewAggregator creates a report aggregator. Days are bucketed by the
// calendar date in loc; nil means UTC.
func NewAggregator(
	store RangeReader,
	mail sender.MailSender,
	recipients notify.Recipients,
	loc *time.Location,
	logger *slog.Logger,
) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		store:      store,
		mail:       mail,
		recipients: recipients,
		loc:        loc,
		logger:     logger,
	}
}

// Compute summarizes the records submitted in [now-7d, now].
func (a *Aggregator) Compute(ctx context.Context, now time.Time) (domain.Report, error) {
	end := now.UTC()
	start := end.Add(-domain.ReportWindow)

	records, err := a.store.FindBySubmittedRange(ctx, start, end)
	if err != nil {
		return domain.Report{}, err
	}

	r := domain.Report{
		PeriodStart:    start,
		PeriodEnd:      end,
		TotalCount:     len(records),
		CountByDay:     make(map[string]int),
		CountByUrgency: make(map[domain.Urgency]int),
		GeneratedAt:    end,
	}

	sum := 0
	for _, f := range records {
		sum += f.Score
		r.CountByDay[f.SubmittedAt.In(a.loc).Format(domain.DayLayout)]++
		r.CountByUrgency[f.Urgency]++
	}
	if len(records) > 0 {
		r.AverageScore = float64(sum) / float64(len(records))
	}

	a.logger.InfoContext(ctx, "report computed",
		slog.Int("total", r.TotalCount),
		slog.Float64("average_score", r.AverageScore),
	)
	return r, nil
}

// Dispatch mails the report. A delivery failure is returned as DispatchFailed.
func (a *Aggregator) Dispatch(ctx context.Context, r domain.Report) error {
	msg := sender.Message{
		From:    a.recipients.From,
		To:      a.recipients.To,
		Subject: Subject(r, a.loc),
		HTML:    HTML(r, a.loc),
		Text:    Text(r, a.loc),
	}
	if err := a.mail.SendMail(ctx, msg); err != nil {
		return apperrors.DispatchFailed(a.mail.Name(), err)
	}
	return nil
}
