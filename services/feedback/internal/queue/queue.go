package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// DefaultKey is the list that holds pending escalation events.
const DefaultKey = "feedback:escalations"

// Config holds Redis queue configuration.
type Config struct {
	// Key is the pending list. Claimed items live in
	// Key+":processing:"+ConsumerID and dead letters in Key+":dlq".
	Key string
	// ConsumerID names this consumer's processing list. It must be unique
	// per running consumer and stable across its restarts; it defaults to
	// the host name.
	ConsumerID string
	// BatchSize caps how many events are claimed at once.
	BatchSize int
	// MaxReceives is how many times an event is delivered before it is
	// dead-lettered.
	MaxReceives int
	// PollTimeout bounds one blocking wait for the first event of a batch.
	PollTimeout time.Duration
	// RetryBackoff is slept after a batch that requeued events.
	RetryBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.ConsumerID == "" {
		c.ConsumerID = defaultConsumerID()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxReceives <= 0 {
		c.MaxReceives = 3
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
}

func defaultConsumerID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "default"
}

func (c Config) processingKey() string { return c.Key + ":processing:" + c.ConsumerID }
func (c Config) deadLetterKey() string { return c.Key + ":dlq" }

// envelope is the stored form of a queued event.
type envelope struct {
	Event    domain.EscalationEvent `json:"event"`
	Receives int                    `json:"receives"`
}

// deadLetter is the stored form of an event that exhausted its deliveries or
// could not be processed at all.
type deadLetter struct {
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	Receives int             `json:"receives"`
	FailedAt time.Time       `json:"failedAt"`
}

// Queue is an escalation queue backed by Redis lists. Producers push on the
// left; consumers claim from the right.
type Queue struct {
	client redis.Cmdable
	cfg    Config
	logger *slog.Logger
}

// New creates a Redis escalation queue.
func New(client redis.Cmdable, cfg Config, logger *slog.Logger) *Queue {
	cfg.applyDefaults()
	return &Queue{client: client, cfg: cfg, logger: logger}
}

// Publish enqueues an escalation event.
func (q *Queue) Publish(ctx context.Context, event domain.EscalationEvent) error {
	payload, err := json.Marshal(envelope{Event: event})
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	if err := q.client.LPush(ctx, q.cfg.Key, payload).Err(); err != nil {
		return fmt.Errorf("push escalation: %w", err)
	}
	return nil
}

// Len returns the number of pending events.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.cfg.Key).Result()
}

// DeadLetters returns the number of dead-lettered events.
func (q *Queue) DeadLetters(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.cfg.deadLetterKey()).Result()
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
