package notify

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/metrics"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/sender"
)

// Recipients addresses the formatted messages.
type Recipients struct {
	From string
	To   []string
}

// Dispatcher notifies on both the instant-alert and the formatted-message
// channel.
type Dispatcher struct {
	alert      sender.AlertSender
	mail       sender.MailSender
	recipients Recipients
	metrics    metrics.Sink
	logger     *slog.Logger
}

// NewDispatcher creates a new escalation dispatcher.
func NewDispatcher(
	alert sender.AlertSender,
	mail sender.MailSender,
	recipients Recipients,
	sink metrics.Sink,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		alert:      alert,
		mail:       mail,
		recipients: recipients,
		metrics:    sink,
		logger:     logger,
	}
}

// Dispatch attempts both channels. It fails when either of them fails.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.EscalationEvent) error {
	var errs []error

	if err := d.alert.SendAlert(ctx, AlertSubject, AlertText(event)); err != nil {
		d.metrics.Error(metrics.ErrorAlertDispatch)
		d.logger.ErrorContext(ctx, "alert dispatch failed",
			slog.String("channel", d.alert.Name()),
			slog.String("feedback_id", event.FeedbackID),
			slog.String("error", err.Error()),
		)
		errs = append(errs, apperrors.DispatchFailed(d.alert.Name(), err))
	} else {
		d.metrics.NotificationSent(metrics.NotificationAlert)
	}

	msg := sender.Message{
		From:    d.recipients.From,
		To:      d.recipients.To,
		Subject: MailSubject(event),
		HTML:    MailHTML(event),
		Text:    MailText(event),
	}
	if err := d.mail.SendMail(ctx, msg); err != nil {
		d.metrics.Error(metrics.ErrorMailDispatch)
		d.logger.ErrorContext(ctx, "mail dispatch failed",
			slog.String("channel", d.mail.Name()),
			slog.String("feedback_id", event.FeedbackID),
			slog.String("error", err.Error()),
		)
		errs = append(errs, apperrors.DispatchFailed(d.mail.Name(), err))
	} else {
		d.metrics.NotificationSent(metrics.NotificationMail)
	}

	if len(errs) == 0 {
		return nil
	}
	return apperrors.DispatchFailed("escalation", errors.Join(errs...))
}
