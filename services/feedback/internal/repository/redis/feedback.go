package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FeedbackGo/pkg/database"
	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

const (
	keyPrefix       = "feedback:"
	bySubmittedKey  = "feedback:by_submitted"
	pendingKey      = "feedback:pending"
	enqueuedKey     = "feedback:enqueued"
	storeName       = "feedback store"
	defaultScanPage = 500
)

// saveScript writes the record and maintains both indexes in one step. When
// the stored copy is already notified, the notified variant (ARGV[2]) is
// written instead so the flag never reverts. A record already marked
// enqueued is not put back in the pending index.
//
// KEYS: record, by_submitted, pending, enqueued
// ARGV: doc, notified doc, id, submitted score, critical flag, notified flag
var saveScript = redis.NewScript(`
local notified = ARGV[6] == '1'
local cur = redis.call('GET', KEYS[1])
if cur and not notified then
  local ok, old = pcall(cjson.decode, cur)
  if ok and old.notified then notified = true end
end
if notified then
  redis.call('SET', KEYS[1], ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[3])
if ARGV[5] == '1' and not notified and not redis.call('ZSCORE', KEYS[4], ARGV[3]) then
  redis.call('ZADD', KEYS[3], ARGV[4], ARGV[3])
else
  redis.call('ZREM', KEYS[3], ARGV[3])
end
if notified then return 1 end
return 0
`)

// markNotifiedScript sets the flag and drops the id from the pending index.
// It returns 0 when the record does not exist.
//
// KEYS: record, pending
// ARGV: id
var markNotifiedScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local doc = cjson.decode(cur)
if not doc.notified then
  doc.notified = true
  redis.call('SET', KEYS[1], cjson.encode(doc))
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// markEnqueuedScript moves the id from the pending index to the enqueued
// index, keeping the first enqueue time. It returns 0 when the record does
// not exist.
//
// KEYS: record, pending, enqueued
// ARGV: id, enqueued score
var markEnqueuedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('ZADD', KEYS[3], 'NX', ARGV[2], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// FeedbackRepository implements repository.FeedbackStore on Redis. Each
// record is a JSON string; sorted sets scored by submission time in
// microseconds index it by time and by pending escalation.
type FeedbackRepository struct {
	client redis.Cmdable
}

// NewFeedbackRepository creates a new Redis-backed feedback store.
func NewFeedbackRepository(client redis.Cmdable) *FeedbackRepository {
	return &FeedbackRepository{client: client}
}

func recordKey(id string) string {
	return keyPrefix + id
}

func timeScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

// Save upserts a feedback record and its index entries atomically.
func (r *FeedbackRepository) Save(ctx context.Context, f *domain.Feedback) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "Save", "EVALSHA save")
	defer func() { end(err) }()

	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	notifiedCopy := *f
	notifiedCopy.Notified = true
	notifiedDoc, err := json.Marshal(notifiedCopy)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	stored, err := saveScript.Run(ctx, r.client,
		[]string{recordKey(f.ID), bySubmittedKey, pendingKey, enqueuedKey},
		doc, notifiedDoc, f.ID, timeScore(f.SubmittedAt), flag(f.IsCritical()), flag(f.Notified),
	).Int()
	if err != nil {
		return storeError("save feedback", err)
	}
	f.Notified = stored == 1
	return nil
}

// FindByID retrieves a feedback record by its ID.
func (r *FeedbackRepository) FindByID(ctx context.Context, id string) (_ *domain.Feedback, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return nil, apperrors.NotFound("feedback", id)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "FindByID", "GET")
	defer func() { end(err) }()

	raw, err := r.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("feedback", id)
		}
		return nil, storeError("get feedback", err)
	}

	f, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FindBySubmittedRange returns the records submitted in [start, end].
func (r *FeedbackRepository) FindBySubmittedRange(ctx context.Context, start, end time.Time) (_ []domain.Feedback, err error) {
	ctx, endSpan := database.TraceQuery(ctx, database.SystemRedis, "FindBySubmittedRange", "ZRANGEBYSCORE")
	defer func() { endSpan(err) }()

	var out []domain.Feedback
	for offset := int64(0); ; offset += defaultScanPage {
		ids, err := r.client.ZRangeByScore(ctx, bySubmittedKey, &redis.ZRangeBy{
			Min:    timeScore(start),
			Max:    timeScore(end),
			Offset: offset,
			Count:  defaultScanPage,
		}).Result()
		if err != nil {
			return nil, storeError("list feedback by range", err)
		}

		page, err := r.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			// Scores have microsecond resolution; the bounds are exact.
			if f.SubmittedAt.Before(start) || f.SubmittedAt.After(end) {
				continue
			}
			out = append(out, f)
		}
		if len(ids) < defaultScanPage {
			return out, nil
		}
	}
}

// MarkNotified flips the notified flag inside a Lua script so concurrent
// callers cannot lose the update.
func (r *FeedbackRepository) MarkNotified(ctx context.Context, id string) (err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return apperrors.NotFound("feedback", id)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "MarkNotified", "EVALSHA mark_notified")
	defer func() { end(err) }()

	found, err := markNotifiedScript.Run(ctx, r.client, []string{recordKey(id), pendingKey}, id).Int()
	if err != nil {
		return storeError("mark feedback notified", err)
	}
	if found == 0 {
		return apperrors.NotFound("feedback", id)
	}
	return nil
}

// MarkEnqueued drops id from the pending index so reconciliation skips it.
func (r *FeedbackRepository) MarkEnqueued(ctx context.Context, id string, at time.Time) (err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return apperrors.NotFound("feedback", id)
	}

	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "MarkEnqueued", "EVALSHA mark_enqueued")
	defer func() { end(err) }()

	found, err := markEnqueuedScript.Run(ctx, r.client,
		[]string{recordKey(id), pendingKey, enqueuedKey},
		id, timeScore(at),
	).Int()
	if err != nil {
		return storeError("mark feedback enqueued", err)
	}
	if found == 0 {
		return apperrors.NotFound("feedback", id)
	}
	return nil
}

// FindPendingEscalations lists critical records still awaiting notification
// whose escalation never reached the queue.
func (r *FeedbackRepository) FindPendingEscalations(ctx context.Context, olderThan time.Time, limit int) (_ []domain.Feedback, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "FindPendingEscalations", "ZRANGEBYSCORE")
	defer func() { end(err) }()

	ids, err := r.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + timeScore(olderThan),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, storeError("list pending escalations", err)
	}

	records, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	pending := records[:0]
	for _, f := range records {
		if f.IsCritical() && !f.Notified {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// load fetches records in id order, skipping index entries whose record is gone.
func (r *FeedbackRepository) load(ctx context.Context, ids []string) ([]domain.Feedback, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("load feedback", err)
	}

	out := make([]domain.Feedback, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		f, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

func decode(raw []byte) (*domain.Feedback, error) {
	var f domain.Feedback
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("decode feedback: %w", err))
	}
	if !f.Urgency.Valid() {
		return nil, apperrors.Internal(fmt.Errorf("feedback %s: unknown urgency %q", f.ID, f.Urgency))
	}
	f.SubmittedAt = f.SubmittedAt.UTC()
	return &f, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// storeError treats server-side script or command errors as internal and
// everything else as a retryable outage.
func storeError(op string, err error) error {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.Unavailable(storeName, fmt.Errorf("%s: %w", op, err))
}
