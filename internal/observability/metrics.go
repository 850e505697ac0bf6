package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on a private
// registry.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	violations      *prometheus.GaugeVec
	atRisk          prometheus.Gauge
	escalations     *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	timerOps        *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	snapshotLookups *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sla_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_http_errors_total",
			Help: "HTTP errors by route, method and domain error code.",
		}, []string{"route", "method", "code"}),
		violations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sla_violations",
			Help: "Violations in the last computed report by severity.",
		}, []string{"severity"}),
		atRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sla_at_risk_items",
			Help: "At-risk items in the last computed report.",
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_escalation_transitions_total",
			Help: "Escalation state transitions by rule and resulting status.",
		}, []string{"rule", "status"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_assignments_total",
			Help: "Assignment decisions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		timerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_timer_operations_total",
			Help: "Time tracker operations.",
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_notifications_total",
			Help: "Notification delivery attempts by result.",
		}, []string{"result"}),
		snapshotLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_snapshot_cache_lookups_total",
			Help: "Read model cache lookups by report and result.",
		}, []string{"report", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.violations, m.atRisk, m.escalations, m.assignments,
		m.timerOps, m.notifications, m.snapshotLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// SetViolations publishes the per-severity violation counts of a report.
func (m *Metrics) SetViolations(bySeverity map[string]int) {
	if m == nil {
		return
	}
	m.violations.Reset()
	for severity, n := range bySeverity {
		m.violations.WithLabelValues(severity).Set(float64(n))
	}
}

// SetAtRisk publishes the size of the last at-risk report.
func (m *Metrics) SetAtRisk(n int) {
	if m == nil {
		return
	}
	m.atRisk.Set(float64(n))
}

// RecordEscalation counts an escalation transition.
func (m *Metrics) RecordEscalation(rule, status string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(rule, status).Inc()
}

// RecordAssignment counts an assignment decision.
func (m *Metrics) RecordAssignment(mode, outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(mode, outcome).Inc()
}

// RecordTimer counts a time tracker operation.
func (m *Metrics) RecordTimer(operation string) {
	if m == nil {
		return
	}
	m.timerOps.WithLabelValues(operation).Inc()
}

// RecordNotification counts a notification attempt.
func (m *Metrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordSnapshotLookup counts a cache hit or miss.
func (m *Metrics) RecordSnapshotLookup(report string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.snapshotLookups.WithLabelValues(report, result).Inc()
}
