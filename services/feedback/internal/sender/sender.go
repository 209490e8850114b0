package sender

import "context"

// AlertSender delivers a short plain-text alert on an instant channel.
type AlertSender interface {
	Name() string
	SendAlert(ctx context.Context, subject, text string) error
}

// Message is a formatted message with HTML and plain-text alternatives.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// MailSender delivers formatted messages.
type MailSender interface {
	Name() string
	SendMail(ctx context.Context, msg Message) error
}
