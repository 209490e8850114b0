package sender

import (
	"context"
	"log/slog"
	"strings"
)

// LogAlertSender logs alerts instead of delivering them.
type LogAlertSender struct {
	logger *slog.Logger
}

// NewLogAlertSender creates an alert sender for local development.
func NewLogAlertSender(logger *slog.Logger) *LogAlertSender {
	return &LogAlertSender{logger: logger}
}

func (s *LogAlertSender) Name() string { return "log" }

func (s *LogAlertSender) SendAlert(ctx context.Context, subject, text string) error {
	s.logger.InfoContext(ctx, "alert",
		slog.String("subject", subject),
		slog.String("text", text),
	)
	return nil
}

// LogMailSender logs messages instead of delivering them.
type LogMailSender struct {
	logger *slog.Logger
}

// NewLogMailSender creates a mail sender for local development.
func NewLogMailSender(logger *slog.Logger) *LogMailSender {
	return &LogMailSender{logger: logger}
}

func (s *LogMailSender) Name() string { return "log" }

func (s *LogMailSender) SendMail(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail",
		slog.String("from", msg.From),
		slog.String("to", strings.Join(msg.To, ",")),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)
	return nil
}
