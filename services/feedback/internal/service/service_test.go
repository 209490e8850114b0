package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// --- Mock Store ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, f *domain.Feedback) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *mockStore) FindByID(ctx context.Context, id string) (*domain.Feedback, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Feedback), args.Error(1)
}

func (m *mockStore) FindBySubmittedRange(ctx context.Context, start, end time.Time) ([]domain.Feedback, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]domain.Feedback), args.Error(1)
}

func (m *mockStore) MarkNotified(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) MarkEnqueued(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockStore) FindPendingEscalations(ctx context.Context, olderThan time.Time, limit int) ([]domain.Feedback, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Get(0).([]domain.Feedback), args.Error(1)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.EscalationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Mock Dispatcher ---

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event domain.EscalationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Mock Report Generator ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Compute(ctx context.Context, now time.Time) (domain.Report, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(domain.Report), args.Error(1)
}

func (m *mockGenerator) Dispatch(ctx context.Context, report domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// --- Recording Sink ---

type recordingSink struct {
	mu            sync.Mutex
	received      map[domain.Urgency]int
	published     int
	notifications map[string]int
	reports       int
	errors        map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		received:      map[domain.Urgency]int{},
		notifications: map[string]int{},
		errors:        map[string]int{},
	}
}

func (s *recordingSink) FeedbackReceived(u domain.Urgency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received[u]++
}

func (s *recordingSink) EscalationPublished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published++
}

func (s *recordingSink) NotificationSent(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[kind]++
}

func (s *recordingSink) ReportGenerated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports++
}

func (s *recordingSink) Error(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[kind]++
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func criticalEvent(id string) domain.EscalationEvent {
	return domain.EscalationEvent{
		FeedbackID:  id,
		Description: "checkout is broken",
		Urgency:     domain.UrgencyCritical,
		SubmittedAt: fixedNow,
		Score:       1,
	}
}
