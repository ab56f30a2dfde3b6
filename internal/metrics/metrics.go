// Package metrics wires the service's HTTP request counter and latency
// histogram into Prometheus, served at GET /metrics/prometheus. The JSON
// job/cache summary at GET /metrics is assembled by the handler layer
// from internal/jobs and internal/cache, not from these collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors registered against the
// default registry, which promhttp.Handler() serves.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers and returns the service's Prometheus collectors.
func New() *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lintsvc_http_requests_total",
			Help: "Total HTTP requests by endpoint, method, and status code.",
		}, []string{"endpoint", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lintsvc_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
	}
	prometheus.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

// Observe records one completed HTTP request.
func (m *Metrics) Observe(endpoint, method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(endpoint, method).Observe(elapsed.Seconds())
}
