package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/service"
)

// BatchProcessor handles a batch of escalation events.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []domain.EscalationEvent) service.BatchResult
}

// Consumer claims batches from the queue and settles every claimed item
// according to its disposition.
type Consumer struct {
	queue     *Queue
	processor BatchProcessor
	logger    *slog.Logger
}

// NewConsumer creates a consumer of q.
func NewConsumer(q *Queue, processor BatchProcessor, logger *slog.Logger) *Consumer {
	return &Consumer{queue: q, processor: processor, logger: logger}
}

type claimed struct {
	raw      string
	env      envelope
	receives int
}

// Start consumes until ctx is cancelled. Items left in this consumer's
// processing list by a previous run are put back first. Other consumers'
// lists are never touched.
func (c *Consumer) Start(ctx context.Context) error {
	n, err := c.recoverClaimed(ctx)
	if err != nil {
		return fmt.Errorf("recover claimed escalations: %w", err)
	}
	if n > 0 {
		c.logger.WarnContext(ctx, "requeued escalations claimed by a previous run", slog.Int("count", n))
	}

	c.logger.InfoContext(ctx, "redis escalation consumer started",
		slog.String("key", c.queue.cfg.Key),
		slog.String("consumer_id", c.queue.cfg.ConsumerID),
		slog.Int("batch_size", c.queue.cfg.BatchSize),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		requeued, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.ErrorContext(ctx, "escalation poll failed", slog.String("error", err.Error()))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if requeued > 0 && !sleep(ctx, c.queue.cfg.RetryBackoff) {
			return nil
		}
	}
}

// poll claims and processes one batch. It returns how many items went back
// to the pending list.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	raws, err := c.claim(ctx)
	if err != nil || len(raws) == 0 {
		return 0, err
	}

	items := make([]claimed, 0, len(raws))
	for _, raw := range raws {
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Event.FeedbackID == "" {
			if err == nil {
				err = errors.New("escalation has no feedbackId")
			}
			c.logger.WarnContext(ctx, "dead-lettering malformed escalation", slog.String("error", err.Error()))
			if err := c.deadLetter(ctx, raw, err, 1); err != nil {
				return 0, err
			}
			continue
		}
		items = append(items, claimed{raw: raw, env: env, receives: env.Receives + 1})
	}
	if len(items) == 0 {
		return 0, nil
	}

	events := make([]domain.EscalationEvent, len(items))
	for i, it := range items {
		events[i] = it.env.Event
	}

	res := c.processor.ProcessBatch(ctx, events)
	return c.settle(ctx, items, res)
}

// claim atomically moves up to BatchSize items into the processing list.
func (c *Consumer) claim(ctx context.Context) ([]string, error) {
	cfg := c.queue.cfg
	first, err := c.queue.client.BLMove(ctx, cfg.Key, cfg.processingKey(), "RIGHT", "LEFT", cfg.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	raws := []string{first}
	for len(raws) < cfg.BatchSize {
		raw, err := c.queue.client.LMove(ctx, cfg.Key, cfg.processingKey(), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return raws, err
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (c *Consumer) settle(ctx context.Context, items []claimed, res service.BatchResult) (int, error) {
	dispositions := res.Dispositions()
	requeue := make([]claimed, 0, len(items))

	for i, it := range items {
		var cause error
		if i < len(res.Results) {
			cause = res.Results[i].Err
		}

		switch dispositions[i] {
		case domain.OutcomeSuccess:
			if err := c.queue.client.LRem(ctx, c.queue.cfg.processingKey(), 1, it.raw).Err(); err != nil {
				return 0, fmt.Errorf("ack escalation: %w", err)
			}
		case domain.OutcomeFatal:
			if err := c.deadLetter(ctx, it.raw, cause, it.receives); err != nil {
				return 0, err
			}
		default:
			if it.receives >= c.queue.cfg.MaxReceives {
				if cause == nil {
					cause = errors.New("batch aborted")
				}
				if err := c.deadLetter(ctx, it.raw, fmt.Errorf("max receives reached: %w", cause), it.receives); err != nil {
					return 0, err
				}
				continue
			}
			requeue = append(requeue, it)
		}
	}

	// Requeued items go back to the consuming end, first item of the batch
	// outermost, so redelivery keeps the original order.
	for i := len(requeue) - 1; i >= 0; i-- {
		if err := c.requeue(ctx, requeue[i]); err != nil {
			return 0, err
		}
	}
	return len(requeue), nil
}

func (c *Consumer) requeue(ctx context.Context, it claimed) error {
	env := it.env
	env.Receives = it.receives
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}

	cfg := c.queue.cfg
	_, err = c.queue.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, cfg.processingKey(), 1, it.raw)
		pipe.RPush(ctx, cfg.Key, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue escalation: %w", err)
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, raw string, cause error, receives int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	payload := json.RawMessage(raw)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(raw)
		payload = quoted
	}

	entry, err := json.Marshal(deadLetter{
		Payload:  payload,
		Error:    msg,
		Receives: receives,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	cfg := c.queue.cfg
	_, err = c.queue.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, cfg.processingKey(), 1, raw)
		pipe.LPush(ctx, cfg.deadLetterKey(), entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter escalation: %w", err)
	}

	c.logger.ErrorContext(ctx, "escalation dead-lettered",
		slog.Int("receives", receives),
		slog.String("error", msg),
	)
	return nil
}

// recoverClaimed moves everything in this consumer's processing list back to
// the consuming end of the pending list.
func (c *Consumer) recoverClaimed(ctx context.Context) (int, error) {
	cfg := c.queue.cfg
	n := 0
	for {
		err := c.queue.client.LMove(ctx, cfg.processingKey(), cfg.Key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
