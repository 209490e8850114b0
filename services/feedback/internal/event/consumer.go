package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/FeedbackGo/pkg/kafka"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/service"
)

// ConsumerGroupID is the consumer group of the escalation workers.
const ConsumerGroupID = "feedback-escalation"

// BatchProcessor handles a batch of decoded escalation events.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []domain.EscalationEvent) service.BatchResult
}

// ConsumerHandler adapts Kafka batches to the escalation service.
type ConsumerHandler struct {
	processor BatchProcessor
	logger    *slog.Logger
}

// NewConsumerHandler creates a new escalation consumer handler.
func NewConsumerHandler(processor BatchProcessor, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		processor: processor,
		logger:    logger,
	}
}

// HandleBatch decodes the batch and maps every event's disposition to a
// consumer verdict. Malformed events are rejected on their own; the rest of
// the batch is processed in order.
func (h *ConsumerHandler) HandleBatch(ctx context.Context, events []*pkgkafka.Event) []pkgkafka.Outcome {
	outcomes := make([]pkgkafka.Outcome, len(events))
	decoded := make([]domain.EscalationEvent, 0, len(events))
	index := make([]int, 0, len(events))

	for i, e := range events {
		escalation, err := decode(e)
		if err != nil {
			h.logger.WarnContext(ctx, "rejecting malformed escalation event",
				slog.String("event_id", e.EventID),
				slog.String("error", err.Error()),
			)
			outcomes[i] = pkgkafka.Outcome{Verdict: pkgkafka.Reject, Err: err}
			continue
		}
		decoded = append(decoded, escalation)
		index = append(index, i)
	}

	if len(decoded) == 0 {
		return outcomes
	}

	res := h.processor.ProcessBatch(ctx, decoded)
	for j, d := range res.Dispositions() {
		var err error
		if j < len(res.Results) {
			err = res.Results[j].Err
		}
		outcomes[index[j]] = pkgkafka.Outcome{Verdict: verdictFor(d), Err: err}
	}
	return outcomes
}

func decode(e *pkgkafka.Event) (domain.EscalationEvent, error) {
	var escalation domain.EscalationEvent
	if e.EventType != EventTypeEscalated {
		return escalation, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if err := e.UnmarshalData(&escalation); err != nil {
		return escalation, fmt.Errorf("decode escalation payload: %w", err)
	}
	if escalation.FeedbackID == "" {
		return escalation, fmt.Errorf("escalation payload has no feedbackId")
	}
	return escalation, nil
}

func verdictFor(o domain.Outcome) pkgkafka.Verdict {
	switch o {
	case domain.OutcomeSuccess:
		return pkgkafka.Ack
	case domain.OutcomeFatal:
		return pkgkafka.Reject
	default:
		return pkgkafka.Retry
	}
}

// NewConsumer creates the batch consumer of the critical escalation topic.
func NewConsumer(cfg pkgkafka.ConsumerConfig, handler *ConsumerHandler, dlq *pkgkafka.DLQProducer, logger *slog.Logger) *pkgkafka.BatchConsumer {
	cfg.GroupID = ConsumerGroupID
	cfg.Topic = TopicEscalationCritical
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	return pkgkafka.NewBatchConsumer(cfg, handler.HandleBatch, dlq, logger)
}
