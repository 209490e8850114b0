package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Verdict is a handler's decision for one message of a batch.
type Verdict int

const (
	// Ack marks the message as processed.
	Ack Verdict = iota
	// Retry asks for the message to be delivered again.
	Retry
	// Reject dead-letters the message without further attempts.
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Outcome pairs a verdict with the error that caused it.
type Outcome struct {
	Verdict Verdict
	Err     error
}

// BatchHandler processes events in delivery order and returns exactly one
// Outcome per event, index-aligned with the input.
type BatchHandler func(ctx context.Context, events []*Event) []Outcome

// ConsumerConfig holds Kafka batch consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// BatchSize caps how many messages are handed to the handler at once.
	BatchSize int
	// BatchWait bounds how long the consumer waits to fill a batch once the
	// first message has arrived.
	BatchWait time.Duration
	// MaxDeliveries is how many times a message is handed to the handler
	// before it is dead-lettered.
	MaxDeliveries int
	// RetryBackoff is multiplied by the attempt number between redeliveries.
	RetryBackoff time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BatchWait <= 0 {
		c.BatchWait = 250 * time.Millisecond
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10e6
	}
}

// messageReader is the part of kafka.Reader the consumer depends on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// deadLetterer receives messages that will not be delivered again.
type deadLetterer interface {
	Publish(ctx context.Context, original kafka.Message, lastErr error, consumerGroup string, attempts int) error
}

// BatchConsumer fetches bounded batches from a consumer group and hands them
// to a BatchHandler. Offsets are committed only after every message of the
// batch has been acknowledged or dead-lettered, so a crash mid-batch leads to
// redelivery of the whole batch.
type BatchConsumer struct {
	reader    messageReader
	dlq       deadLetterer
	handler   BatchHandler
	cfg       ConsumerConfig
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewBatchConsumer creates a consumer for cfg.Topic. A nil dlq drops messages
// that exhaust their deliveries after logging them.
func NewBatchConsumer(cfg ConsumerConfig, handler BatchHandler, dlq *DLQProducer, logger *slog.Logger) *BatchConsumer {
	cfg.applyDefaults()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	var dl deadLetterer
	if dlq != nil {
		dl = dlq
	}
	return newBatchConsumer(r, dl, handler, cfg, logger)
}

func newBatchConsumer(r messageReader, dlq deadLetterer, handler BatchHandler, cfg ConsumerConfig, logger *slog.Logger) *BatchConsumer {
	cfg.applyDefaults()
	return &BatchConsumer{
		reader:  r,
		dlq:     dlq,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("group", cfg.GroupID)),
	}
}

// Start consumes batches until ctx is canceled.
func (c *BatchConsumer) Start(ctx context.Context) error {
	c.logger.Info("batch consumer started",
		slog.Int("batch_size", c.cfg.BatchSize),
		slog.Int("max_deliveries", c.cfg.MaxDeliveries),
	)

	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("batch consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		if err := c.settle(ctx, batch); err != nil {
			c.logger.Info("batch consumer stopping with uncommitted batch", slog.Int("messages", len(batch)))
			return nil
		}
	}
}

// maxSettleBackoff caps the wait between attempts to settle the same batch.
const maxSettleBackoff = 5 * time.Second

// settle processes batch until it is committed. Nothing past the batch is
// fetched while it is unsettled, so a failing dead-letter write or commit
// stalls the partition instead of losing the message. It only returns an
// error once ctx is done.
func (c *BatchConsumer) settle(ctx context.Context, batch []kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := c.processBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := time.Duration(attempt) * c.cfg.RetryBackoff
		if wait > maxSettleBackoff {
			wait = maxSettleBackoff
		}
		c.logger.Error("batch left uncommitted, retrying",
			slog.Int("attempt", attempt),
			slog.Int("messages", len(batch)),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		ConsumerBatchRedeliveries.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// fetchBatch blocks for the first message, then collects more until the
// batch is full or BatchWait elapses.
func (c *BatchConsumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	fillCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchWait)
	defer cancel()
	for len(batch) < c.cfg.BatchSize {
		msg, err := c.reader.FetchMessage(fillCtx)
		if err != nil {
			break
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

type pendingMessage struct {
	msg     kafka.Message
	event   *Event
	lastErr error
}

// processBatch drives one fetched batch to completion: every message ends up
// acknowledged or dead-lettered before the offsets are committed.
func (c *BatchConsumer) processBatch(ctx context.Context, msgs []kafka.Message) error {
	topic, group := c.cfg.Topic, c.cfg.GroupID
	ConsumerMessagesReceived.WithLabelValues(topic, group).Add(float64(len(msgs)))
	ConsumerBatchSize.WithLabelValues(topic, group).Observe(float64(len(msgs)))

	links := make([]trace.Link, 0, len(msgs))
	work := make([]pendingMessage, 0, len(msgs))
	for _, m := range msgs {
		headers := m.Headers
		links = append(links, trace.LinkFromContext(otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&headers))))

		event, err := UnmarshalEvent(m.Value)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to unmarshal event",
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			if err := c.deadLetter(ctx, m, err, 1); err != nil {
				return err
			}
			continue
		}
		work = append(work, pendingMessage{msg: m, event: event})
	}

	ctx, span := otel.Tracer("github.com/utafrali/FeedbackGo/pkg/kafka").Start(ctx, "kafka.consume_batch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithLinks(links...),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.Int("messaging.batch.message_count", len(msgs)),
		),
	)
	defer span.End()

	for attempt := 1; len(work) > 0; attempt++ {
		if attempt > 1 {
			ConsumerBatchRedeliveries.WithLabelValues(topic, group).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.cfg.RetryBackoff):
			}
		}

		work = c.deliver(ctx, work, attempt)
		if len(work) > 0 && attempt >= c.cfg.MaxDeliveries {
			for _, p := range work {
				if err := c.deadLetter(ctx, p.msg, p.lastErr, attempt); err != nil {
					return err
				}
			}
			work = nil
		}
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// deliver runs one handler attempt and returns the messages that asked for a retry.
func (c *BatchConsumer) deliver(ctx context.Context, work []pendingMessage, attempt int) []pendingMessage {
	topic, group := c.cfg.Topic, c.cfg.GroupID

	events := make([]*Event, len(work))
	for i, p := range work {
		events[i] = p.event
	}

	start := time.Now()
	outcomes := c.handler(ctx, events)
	ConsumerProcessingDuration.WithLabelValues(topic, group).Observe(time.Since(start).Seconds())

	if len(outcomes) != len(work) {
		err := fmt.Errorf("handler returned %d outcomes for %d events", len(outcomes), len(work))
		c.logger.ErrorContext(ctx, "invalid batch handler result", slog.String("error", err.Error()))
		outcomes = make([]Outcome, len(work))
		for i := range outcomes {
			outcomes[i] = Outcome{Verdict: Retry, Err: err}
		}
	}

	var retry []pendingMessage
	for i, o := range outcomes {
		p := work[i]
		switch o.Verdict {
		case Ack:
			ConsumerMessagesProcessed.WithLabelValues(topic, group).Inc()
		case Reject:
			if err := c.deadLetter(ctx, p.msg, o.Err, attempt); err != nil {
				// Keep it pending so the batch is not committed past it.
				p.lastErr = errors.Join(o.Err, err)
				retry = append(retry, p)
			}
		default:
			p.lastErr = o.Err
			retry = append(retry, p)
		}
	}

	if len(retry) > 0 {
		c.logger.WarnContext(ctx, "batch attempt incomplete",
			slog.Int("attempt", attempt),
			slog.Int("max_deliveries", c.cfg.MaxDeliveries),
			slog.Int("pending", len(retry)),
			slog.Int("batch", len(work)),
		)
	}
	return retry
}

func (c *BatchConsumer) deadLetter(ctx context.Context, m kafka.Message, cause error, attempts int) error {
	ConsumerMessagesFailed.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()
	if c.dlq == nil {
		c.logger.ErrorContext(ctx, "dropping message with no DLQ configured",
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Int("attempts", attempts),
			slog.Any("error", cause),
		)
		return nil
	}
	return c.dlq.Publish(ctx, m, cause, c.cfg.GroupID, attempts)
}

// Close closes the consumer. It is safe to call multiple times.
func (c *BatchConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
