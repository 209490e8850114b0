package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/FeedbackGo/pkg/errors"
	"github.com/utafrali/FeedbackGo/pkg/health"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/service"
)

// ---------------------------------------------------------------------------
// Mock feedback service
// ---------------------------------------------------------------------------

type mockFeedbackService struct {
	mock.Mock
}

func (m *mockFeedbackService) Submit(ctx context.Context, input service.SubmitInput) (*domain.Feedback, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Feedback), args.Error(1)
}

func (m *mockFeedbackService) Get(ctx context.Context, id string) (*domain.Feedback, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Feedback), args.Error(1)
}

// ---------------------------------------------------------------------------
// Mock report runner
// ---------------------------------------------------------------------------

type mockReportRunner struct {
	mock.Mock
}

func (m *mockReportRunner) Run(ctx context.Context) (domain.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Report), args.Error(1)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func setupRouter(svc *mockFeedbackService, reports *mockReportRunner) http.Handler {
	h := NewFeedbackHandler(svc, reports, newTestLogger())
	return NewRouter(h, health.NewHandler(), prometheus.NewRegistry(), newTestLogger())
}

func do(t *testing.T, router http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

var submittedAt = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// POST /api/v1/feedback
// ---------------------------------------------------------------------------

func TestSubmitFeedback_Created(t *testing.T) {
	svc := new(mockFeedbackService)
	router := setupRouter(svc, new(mockReportRunner))

	f := domain.NewFeedback("Great course", 9, submittedAt)
	svc.On("Submit", mock.Anything, service.SubmitInput{Description: "Great course", Score: 9}).Return(&f, nil)

	rec, env := do(t, router, http.MethodPost, "/api/v1/feedback", []byte(`{"description":"Great course","score":9}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got FeedbackResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "LOW", got.Urgency)
	assert.Equal(t, 9, got.Score)
	assert.Equal(t, "Feedback received successfully", got.Message)
	assert.True(t, submittedAt.Equal(got.SubmittedAt))
}

func TestSubmitFeedback_ScoreZeroIsAccepted(t *testing.T) {
	svc := new(mockFeedbackService)
	router := setupRouter(svc, new(mockReportRunner))

	f := domain.NewFeedback("Terrible", 0, submittedAt)
	svc.On("Submit", mock.Anything, service.SubmitInput{Description: "Terrible", Score: 0}).Return(&f, nil)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/feedback", []byte(`{"description":"Terrible","score":0}`))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSubmitFeedback_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing score", `{"description":"ok"}`, "score"},
		{"score too high", `{"description":"ok","score":11}`, "score"},
		{"negative score", `{"description":"ok","score":-1}`, "score"},
		{"missing description", `{"score":5}`, "description"},
		{"blank description", `{"description":"   ","score":5}`, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockFeedbackService)
			router := setupRouter(svc, new(mockReportRunner))

			rec, env := do(t, router, http.MethodPost, "/api/v1/feedback", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
			assert.Contains(t, env.Error.Fields, tt.field)
			svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitFeedback_MalformedBody(t *testing.T) {
	router := setupRouter(new(mockFeedbackService), new(mockReportRunner))

	rec, env := do(t, router, http.MethodPost, "/api/v1/feedback", []byte(`{"description":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestSubmitFeedback_ServiceError(t *testing.T) {
	svc := new(mockFeedbackService)
	router := setupRouter(svc, new(mockReportRunner))

	svc.On("Submit", mock.Anything, mock.Anything).Return(nil, apperrors.Internal(errors.New("pool closed")))

	rec, env := do(t, router, http.MethodPost, "/api/v1/feedback", []byte(`{"description":"x","score":2}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "pool closed")
}

// ---------------------------------------------------------------------------
// GET /api/v1/feedback/{id}
// ---------------------------------------------------------------------------

func TestGetFeedback(t *testing.T) {
	svc := new(mockFeedbackService)
	router := setupRouter(svc, new(mockReportRunner))

	f := domain.NewFeedback("Slow video", 2, submittedAt)
	f.Notified = true
	svc.On("Get", mock.Anything, f.ID).Return(&f, nil)

	rec, env := do(t, router, http.MethodGet, "/api/v1/feedback/"+f.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got FeedbackResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "CRITICAL", got.Urgency)
	assert.True(t, got.Notified)
}

func TestGetFeedback_NotFound(t *testing.T) {
	svc := new(mockFeedbackService)
	router := setupRouter(svc, new(mockReportRunner))

	id := "6b0f5a9e-2c1d-4e8f-9a3b-7c6d5e4f3a2b"
	svc.On("Get", mock.Anything, id).Return(nil, apperrors.NotFound("feedback", id))

	rec, env := do(t, router, http.MethodGet, "/api/v1/feedback/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestGetFeedback_InvalidID(t *testing.T) {
	router := setupRouter(new(mockFeedbackService), new(mockReportRunner))

	rec, env := do(t, router, http.MethodGet, "/api/v1/feedback/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)
}

// ---------------------------------------------------------------------------
// POST /api/v1/reports/weekly
// ---------------------------------------------------------------------------

func TestRunReport(t *testing.T) {
	reports := new(mockReportRunner)
	router := setupRouter(new(mockFeedbackService), reports)

	reports.On("Run", mock.Anything).Return(domain.Report{
		TotalCount:     7,
		AverageScore:   8.5,
		CountByDay:     map[string]int{"2024-03-15": 7},
		CountByUrgency: map[domain.Urgency]int{domain.UrgencyLow: 7},
	}, nil)

	rec, env := do(t, router, http.MethodPost, "/api/v1/reports/weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, float64(7), got["totalCount"])
	assert.Equal(t, "excellent", got["label"])
	assert.Equal(t, float64(1), got["dailyRate"])
}

func TestRunReport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"already running", apperrors.Conflict("a report run is already in progress"), http.StatusConflict},
		{"mail failed", apperrors.DispatchFailed("smtp", errors.New("550")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := new(mockReportRunner)
			router := setupRouter(new(mockFeedbackService), reports)
			reports.On("Run", mock.Anything).Return(domain.Report{}, tt.err)

			rec, _ := do(t, router, http.MethodPost, "/api/v1/reports/weekly", nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

// ---------------------------------------------------------------------------
// Infrastructure routes
// ---------------------------------------------------------------------------

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := setupRouter(new(mockFeedbackService), new(mockReportRunner))

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
