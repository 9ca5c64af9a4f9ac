package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	connections     prometheus.Gauge
	deliveries      *prometheus.CounterVec
	checkins        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	workflowCalls   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_channels_open",
			Help: "Number of open notification channels",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Event deliveries to notification channels by result",
		}, []string{"result"}),
		checkins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Daily check-ins by result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Committed student status transitions by trigger and new status",
		}, []string{"trigger", "status"}),
		workflowCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_notifications_total",
			Help: "External workflow calls by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.requestTotal,
		m.connections,
		m.deliveries,
		m.checkins,
		m.transitions,
		m.workflowCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

func (m *Metrics) ChannelOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ChannelClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) Checkin(result string) {
	if m != nil {
		m.checkins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Transition(trigger, status string) {
	if m != nil {
		m.transitions.WithLabelValues(trigger, status).Inc()
	}
}

// WorkflowCall records "ok", "failed" or "skipped".
func (m *Metrics) WorkflowCall(result string) {
	if m != nil {
		m.workflowCalls.WithLabelValues(result).Inc()
	}
}
