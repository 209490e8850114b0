package service

import (
	"context"
	"time"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// tracerName identifies spans opened by the service layer.
const tracerName = "feedback-service"

// Publisher enqueues escalation events.
type Publisher interface {
	Publish(ctx context.Context, event domain.EscalationEvent) error
}

// Dispatcher delivers an escalation event to every notification channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.EscalationEvent) error
}

// ReportGenerator computes and delivers the periodic report.
type ReportGenerator interface {
	Compute(ctx context.Context, now time.Time) (domain.Report, error)
	Dispatch(ctx context.Context, report domain.Report) error
}
