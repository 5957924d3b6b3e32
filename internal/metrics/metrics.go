// Package metrics exposes Prometheus collectors for the audit workflow.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storeaudit"

type Metrics struct {
	auditsCreated   *prometheus.CounterVec
	auditsFinalized prometheus.Counter
	finalScore      prometheus.Histogram
	responseWrites  *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	notifyFailures  prometheus.Counter
	openSessions    prometheus.Gauge
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		auditsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_created_total",
			Help:      "Audits created, by origin (catalog or template).",
		}, []string{"origin"}),
		auditsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_finalized_total",
			Help:      "Finalize calls that persisted a score.",
		}),
		finalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_score",
			Help:      "Weighted compliance score recorded on finalize.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		responseWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_writes_total",
			Help:      "Durable response writes, by mode (immediate or debounced).",
		}, []string{"mode"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed calls to the data layer, by operation.",
		}, []string{"op"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Finalize notifications that could not be published.",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Audit editing sessions currently held in memory.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.auditsCreated, m.auditsFinalized, m.finalScore, m.responseWrites,
			m.storeErrors, m.notifyFailures, m.openSessions, m.httpRequests,
		)
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) AuditCreated(origin string) {
	if m == nil {
		return
	}
	m.auditsCreated.WithLabelValues(origin).Inc()
}

func (m *Metrics) AuditFinalized(score int) {
	if m == nil {
		return
	}
	m.auditsFinalized.Inc()
	m.finalScore.Observe(float64(score))
}

func (m *Metrics) ResponseWritten(mode string) {
	if m == nil {
		return
	}
	m.responseWrites.WithLabelValues(mode).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.openSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.openSessions.Dec()
}

func (m *Metrics) HTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
}
