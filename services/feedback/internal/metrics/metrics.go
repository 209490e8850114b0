package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/FeedbackGo/services/feedback/internal/domain"
)

// Notification kinds.
const (
	NotificationAlert  = "alert"
	NotificationMail   = "mail"
	NotificationReport = "report"
)

// Error kinds.
const (
	ErrorEscalationPublish = "escalation_publish"
	ErrorAlertDispatch     = "alert_dispatch"
	ErrorMailDispatch      = "mail_dispatch"
	ErrorReportDispatch    = "report_dispatch"
	ErrorMetrics           = "metrics"
)

// Sink records business counters. Implementations are fire-and-forget: they
// never return errors and never panic into the caller.
type Sink interface {
	FeedbackReceived(urgency domain.Urgency)
	EscalationPublished()
	NotificationSent(kind string)
	ReportGenerated()
	Error(kind string)
}

// Prometheus is a Sink backed by Prometheus counters.
type Prometheus struct {
	received     *prometheus.CounterVec
	published    prometheus.Counter
	notification *prometheus.CounterVec
	reports      prometheus.Counter
	errors       *prometheus.CounterVec
	logger       *slog.Logger
}

// NewPrometheus registers the feedback counters on reg.
func NewPrometheus(reg prometheus.Registerer, logger *slog.Logger) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "received_total",
			Help:      "Total number of feedback records accepted, by urgency",
		}, []string{"urgency"}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "escalations_published_total",
			Help:      "Total number of escalation events published",
		}),
		notification: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "notifications_sent_total",
			Help:      "Total number of notifications delivered, by kind",
		}, []string{"kind"}),
		reports: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated and dispatched",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "errors_total",
			Help:      "Total number of non-fatal pipeline errors, by kind",
		}, []string{"kind"}),
		logger: logger,
	}
}

func (p *Prometheus) FeedbackReceived(urgency domain.Urgency) {
	defer p.recover("feedback_received")
	p.received.WithLabelValues(urgency.String()).Inc()
}

func (p *Prometheus) EscalationPublished() {
	defer p.recover("escalation_published")
	p.published.Inc()
}

func (p *Prometheus) NotificationSent(kind string) {
	defer p.recover("notification_sent")
	p.notification.WithLabelValues(kind).Inc()
}

func (p *Prometheus) ReportGenerated() {
	defer p.recover("report_generated")
	p.reports.Inc()
}

func (p *Prometheus) Error(kind string) {
	defer p.recover("error")
	p.errors.WithLabelValues(kind).Inc()
}

func (p *Prometheus) recover(op string) {
	r := recover()
	if r == nil {
		return
	}
	if p.logger != nil {
		p.logger.Error("metrics sink failed",
			slog.String("operation", op),
			slog.Any("panic", r),
		)
	}
	func() {
		defer func() { _ = recover() }()
		p.errors.WithLabelValues(ErrorMetrics).Inc()
	}()
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) FeedbackReceived(domain.Urgency) {}
func (Noop) EscalationPublished()            {}
func (Noop) NotificationSent(string)         {}
func (Noop) ReportGenerated()                {}
func (Noop) Error(string)                    {}
