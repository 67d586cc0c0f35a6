package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	Sends            *prometheus.CounterVec
	SendRejections   *prometheus.CounterVec
	Replies          *prometheus.CounterVec
	AnalysisFailures *prometheus.CounterVec
	AnalysisLatency  prometheus.Histogram
	Handoffs         prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active triage chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		Sends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Turns sent to the classifier by trigger (user, sentinel) and attachment presence.",
		}, []string{"trigger", "attachment"}),
		SendRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_rejections_total",
			Help:      "Sends refused by the router by reason.",
		}, []string{"reason"}),
		Replies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Classifier replies by intent.",
		}, []string{"intent"}),
		AnalysisFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Analysis failures by kind.",
		}, []string{"kind"}),
		AnalysisLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_ms",
			Help:      "Classifier round-trip latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}),
		Handoffs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "complaint_handoffs_total",
			Help:      "Complaint drafts handed off to the submission form.",
		}),
	}
}

func (m *Metrics) ObserveSend(trigger string, withAttachment bool) {
	if m == nil {
		return
	}
	att := "no"
	if withAttachment {
		att = "yes"
	}
	m.Sends.WithLabelValues(trigger, att).Inc()
}

func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.SendRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveReply(intent string, d time.Duration) {
	if m == nil {
		return
	}
	m.Replies.WithLabelValues(intent).Inc()
	m.AnalysisLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveFailure(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisFailures.WithLabelValues(kind).Inc()
	if d > 0 {
		m.AnalysisLatency.Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) ObserveHandoff() {
	if m == nil {
		return
	}
	m.Handoffs.Inc()
}

func (m *Metrics) ObserveSessionEvent(event string, active int) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
