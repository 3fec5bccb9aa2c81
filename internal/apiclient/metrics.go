package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marutisridharjob/cucumber-rest-api-testing/pkg/metrics"
)

type requestMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

func newRequestMetrics(reg *metrics.Registry) *requestMetrics {
	return &requestMetrics{
		requests: reg.CounterVec("http_requests_total",
			"Requests sent to the API under test labelled by status code or error.", "code"),
		duration: reg.Histogram("http_request_duration_seconds",
			"Round-trip latency of requests sent to the API under test.", nil),
	}
}

func (m *requestMetrics) observe(code string, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(code).Inc()
	m.duration.Observe(latency.Seconds())
}
