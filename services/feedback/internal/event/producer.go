package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/FeedbackGo/pkg/kafka"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// Kafka topic constants for feedback domain events.
var (
	TopicEscalationCritical = pkgkafka.Topic("escalation", "critical")
	TopicAlert              = pkgkafka.Topic("alert", "critical")
)

// Event type constants.
const (
	EventTypeEscalated = "feedback.escalated"
	EventTypeAlert     = "feedback.alert"
)

// SourceFeedbackService identifies events originating from this service.
const SourceFeedbackService = "feedback-service"

type eventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes escalation events to Kafka.
type Producer struct {
	kafka  eventPublisher
	logger *slog.Logger
}

// NewProducer creates a new escalation producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// Publish enqueues an escalation event keyed by the feedback id.
func (p *Producer) Publish(ctx context.Context, escalation domain.EscalationEvent) error {
	event, err := pkgkafka.NewEvent(ctx, EventTypeEscalated, escalation.FeedbackID, SourceFeedbackService, escalation)
	if err != nil {
		return fmt.Errorf("create feedback.escalated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicEscalationCritical, event); err != nil {
		return fmt.Errorf("publish feedback.escalated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published feedback.escalated event",
		slog.String("feedback_id", escalation.FeedbackID),
		slog.String("event_id", event.EventID),
	)
	return nil
}
