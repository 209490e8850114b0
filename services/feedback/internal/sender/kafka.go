package sender

import (
	"context"
	"fmt"

	pkgkafka "github.com/utafrali/FeedbackGo/pkg/kafka"
)

// EventTypeAlert is the event type of alerts published to Kafka.
const EventTypeAlert = "feedback.alert"

// AlertPayload is the data of an alert event.
type AlertPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaAlertSender publishes alerts to a topic that subscribers fan out.
type KafkaAlertSender struct {
	producer eventPublisher
	topic    string
	source   string
}

// NewKafkaAlertSender creates an alert sender publishing to topic.
func NewKafkaAlertSender(producer *pkgkafka.Producer, topic, source string) *KafkaAlertSender {
	return &KafkaAlertSender{producer: producer, topic: topic, source: source}
}

func (s *KafkaAlertSender) Name() string { return "kafka" }

func (s *KafkaAlertSender) SendAlert(ctx context.Context, subject, text string) error {
	event, err := pkgkafka.NewEvent(ctx, EventTypeAlert, s.topic, s.source, AlertPayload{Subject: subject, Text: text})
	if err != nil {
		return fmt.Errorf("create alert event: %w", err)
	}
	if err := s.producer.Publish(ctx, s.topic, event); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
