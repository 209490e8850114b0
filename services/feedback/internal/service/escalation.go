package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/pkg/logger"
	"github.com/utafrali/FeedbackGo/pkg/tracing"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/repository"
)

// BatchPolicy decides what happens to a batch when one event fails.
type BatchPolicy string

const (
	// BatchAbort stops at the first failure and redelivers the whole batch.
	BatchAbort BatchPolicy = "abort"
	// BatchIsolate processes every event and redelivers only the failures.
	BatchIsolate BatchPolicy = "isolate"
)

// ParseBatchPolicy parses a configured batch policy.
func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch p := BatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case BatchAbort, BatchIsolate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q", s)
	}
}

// DuplicatePolicy decides whether an already-notified record is alerted again.
type DuplicatePolicy string

const (
	// DuplicateAllow dispatches every delivered event (at-least-once alerts).
	DuplicateAllow DuplicatePolicy = "allow"
	// DuplicateSkipNotified checks the stored flag first and skips records
	// that were already notified.
	DuplicateSkipNotified DuplicatePolicy = "skip_notified"
)

// ParseDuplicatePolicy parses a configured duplicate policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DuplicateAllow, DuplicateSkipNotified:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// EscalationService consumes escalation events: it notifies and then marks
// the record as notified.
type EscalationService struct {
	store       repository.FeedbackStore
	dispatcher  Dispatcher
	duplicates  DuplicatePolicy
	batchPolicy BatchPolicy
	logger      *slog.Logger
}

// NewEscalationService creates a new escalation service.
func NewEscalationService(
	store repository.FeedbackStore,
	dispatcher Dispatcher,
	duplicates DuplicatePolicy,
	batchPolicy BatchPolicy,
	logger *slog.Logger,
) *EscalationService {
	return &EscalationService{
		store:       store,
		dispatcher:  dispatcher,
		duplicates:  duplicates,
		batchPolicy: batchPolicy,
		logger:      logger,
	}
}

// HandleEvent processes one event and reports whether it may be retried.
func (s *EscalationService) HandleEvent(ctx context.Context, event domain.EscalationEvent) domain.Result {
	ctx, span := tracing.Start(ctx, tracerName, "escalation.handle",
		attribute.String("feedback.id", event.FeedbackID),
		attribute.Int("feedback.score", event.Score),
	)
	defer span.End()

	ctx = logger.WithFeedbackID(ctx, event.FeedbackID)
	log := logger.WithContext(ctx, s.logger)

	result := s.handle(ctx, log, event)
	span.SetAttributes(attribute.String("escalation.outcome", result.Outcome.String()))
	tracing.RecordError(span, result.Err)
	return result
}

func (s *EscalationService) handle(ctx context.Context, log *slog.Logger, event domain.EscalationEvent) domain.Result {
	if s.duplicates == DuplicateSkipNotified {
		f, err := s.store.FindByID(ctx, event.FeedbackID)
		if err != nil {
			log.ErrorContext(ctx, "failed to load feedback before dispatch", slog.String("error", err.Error()))
			return storeResult(err)
		}
		if f.Notified {
			log.InfoContext(ctx, "feedback already notified, skipping dispatch")
			return domain.Success()
		}
	}

	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		log.ErrorContext(ctx, "escalation dispatch failed", slog.String("error", err.Error()))
		return domain.Retry(err)
	}

	if err := s.store.MarkNotified(ctx, event.FeedbackID); err != nil {
		log.ErrorContext(ctx, "failed to mark feedback notified", slog.String("error", err.Error()))
		return storeResult(err)
	}

	log.InfoContext(ctx, "escalation delivered")
	return domain.Success()
}

// storeResult maps a store failure: a vanished record cannot be fixed by
// redelivery, an outage can.
func storeResult(err error) domain.Result {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return domain.Fatal(err)
	case apperrors.IsRetryable(err):
		return domain.Retry(err)
	default:
		return domain.Fatal(err)
	}
}

// BatchResult reports how a batch was processed.
type BatchResult struct {
	// Processed is the number of events that were attempted.
	Processed int
	// Failed is the index of the first failed event, or -1.
	Failed int
	// Results holds one entry per attempted event, in order.
	Results []domain.Result
	// Outcome summarizes the batch.
	Outcome domain.Outcome

	policy BatchPolicy
	size   int
}

// Dispositions tells the transport what to do with every event of the batch:
// acknowledge it (success), deliver it again (retryable) or dead-letter it
// (fatal). Under BatchAbort a failed batch is redelivered as a whole, except
// for a fatal event which is dead-lettered on its own.
func (b BatchResult) Dispositions() []domain.Outcome {
	out := make([]domain.Outcome, b.size)

	if b.policy == BatchIsolate {
		for i := range out {
			if i < len(b.Results) {
				out[i] = b.Results[i].Outcome
			} else {
				out[i] = domain.OutcomeRetryable
			}
		}
		return out
	}

	if b.Failed < 0 {
		return out
	}
	for i := range out {
		out[i] = domain.OutcomeRetryable
	}
	if b.Results[b.Failed].Outcome == domain.OutcomeFatal {
		out[b.Failed] = domain.OutcomeFatal
	}
	return out
}

// ProcessBatch handles events sequentially in delivery order under the
// configured batch policy.
func (s *EscalationService) ProcessBatch(ctx context.Context, events []domain.EscalationEvent) BatchResult {
	res := BatchResult{
		Failed:  -1,
		Results: make([]domain.Result, 0, len(events)),
		policy:  s.batchPolicy,
		size:    len(events),
	}

	for i, event := range events {
		r := s.HandleEvent(ctx, event)
		res.Results = append(res.Results, r)
		res.Processed++

		if r.IsSuccess() {
			continue
		}
		if res.Failed < 0 {
			res.Failed = i
		}
		if s.batchPolicy == BatchAbort {
			break
		}
	}

	res.Outcome = summarize(res.Results)
	if res.Outcome != domain.OutcomeSuccess {
		s.logger.WarnContext(ctx, "escalation batch failed",
			slog.String("policy", string(s.batchPolicy)),
			slog.Int("batch_size", len(events)),
			slog.Int("processed", res.Processed),
			slog.Int("failed_index", res.Failed),
			slog.String("outcome", res.Outcome.String()),
		)
	}
	return res
}

func summarize(results []domain.Result) domain.Outcome {
	outcome := domain.OutcomeSuccess
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeRetryable:
			return domain.OutcomeRetryable
		case domain.OutcomeFatal:
			outcome = domain.OutcomeFatal
		}
	}
	return outcome
}
