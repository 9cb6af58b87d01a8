// Package metrics exposes Prometheus counters for API client traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the API client and session layer report to.
type Recorder interface {
	RecordRequest(op string, statusCode int, duration time.Duration)
	RecordTransportError(op string)
	RecordSessionTransition(state string)
}

type Collector struct {
	requests        *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	sessions        *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazytodo_api_requests_total",
			Help: "API requests by operation and HTTP status.",
		}, []string{"op", "status"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazytodo_api_transport_errors_total",
			Help: "API requests that never received a response.",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lazytodo_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazytodo_session_transitions_total",
			Help: "Session state transitions by target state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		c.requests,
		c.transportErrors,
		c.latency,
		c.sessions,
	)

	return c
}

func (c *Collector) RecordRequest(op string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (c *Collector) RecordTransportError(op string) {
	c.transportErrors.WithLabelValues(op).Inc()
}

func (c *Collector) RecordSessionTransition(state string) {
	c.sessions.WithLabelValues(state).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRequest(string, int, time.Duration) {}
func (Nop) RecordTransportError(string)              {}
func (Nop) RecordSessionTransition(string)           {}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute serves /metrics for a local scraper.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
