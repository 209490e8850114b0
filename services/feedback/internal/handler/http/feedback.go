package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/FeedbackGo/pkg/httputil"
	"github.com/utafrali/FeedbackGo/pkg/validator"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
	"github.com/utafrali/FeedbackGo/services/feedback/internal/service"
)

// FeedbackService is the ingestion surface used by the handlers.
type FeedbackService interface {
	Submit(ctx context.Context, input service.SubmitInput) (*domain.Feedback, error)
	Get(ctx context.Context, id string) (*domain.Feedback, error)
}

// ReportRunner runs the weekly report on demand.
type ReportRunner interface {
	Run(ctx context.Context) (domain.Report, error)
}

// FeedbackHandler handles HTTP requests for feedback endpoints.
type FeedbackHandler struct {
	service FeedbackService
	reports ReportRunner
	logger  *slog.Logger
}

// NewFeedbackHandler creates a new feedback HTTP handler.
func NewFeedbackHandler(svc FeedbackService, reports ReportRunner, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		service: svc,
		reports: reports,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SubmitFeedbackRequest is the JSON request body for submitting feedback.
type SubmitFeedbackRequest struct {
	Description string `json:"description" validate:"required,notblank,max=2000"`
	Score       *int   `json:"score" validate:"required,min=0,max=10"`
}

// --- Response DTOs ---

// FeedbackResponse is returned for a stored feedback record.
type FeedbackResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
	Urgency     string    `json:"urgency"`
	Notified    bool      `json:"notified"`
	Message     string    `json:"message,omitempty"`
}

func toResponse(f *domain.Feedback) FeedbackResponse {
	return FeedbackResponse{
		ID:          f.ID,
		Description: f.Description,
		Score:       f.Score,
		SubmittedAt: f.SubmittedAt,
		Urgency:     f.Urgency.String(),
		Notified:    f.Notified,
	}
}

// ReportResponse is returned by an on-demand report run.
type ReportResponse struct {
	domain.Report
	Label     string  `json:"label"`
	DailyRate float64 `json:"dailyRate"`
}

// --- Handlers ---

// SubmitFeedback handles POST /api/v1/feedback
func (h *FeedbackHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	f, err := h.service.Submit(r.Context(), service.SubmitInput{
		Description: req.Description,
		Score:       *req.Score,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := toResponse(f)
	resp.Message = "Feedback received successfully"
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: resp})
}

// GetFeedback handles GET /api/v1/feedback/{id}
func (h *FeedbackHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	f, err := h.service.Get(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toResponse(f)})
}

// RunReport handles POST /api/v1/reports/weekly
func (h *FeedbackHandler) RunReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Run(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ReportResponse{
		Report:    report,
		Label:     report.Label(),
		DailyRate: report.DailyRate(),
	}})
}
