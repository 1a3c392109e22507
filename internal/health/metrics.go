package health

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for netask. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RetriesTotal     prometheus.Counter
	ActiveWorkers    prometheus.Gauge
	QueuedRequests   prometheus.Gauge
	DispatchResults  *prometheus.CounterVec
	DownloadsTotal   *prometheus.CounterVec
	DownloadedBytes  prometheus.Counter
	EndpointHealth   *prometheus.GaugeVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netask",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "netask",
				Name:      "request_duration_seconds",
				Help:      "Request latency histogram, retries included",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netask",
				Name:      "requests_in_flight",
				Help:      "Current number of requests being processed",
			},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "netask",
				Name:      "retries_total",
				Help:      "Total number of request retries",
			},
		),
		ActiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netask",
				Name:      "active_workers",
				Help:      "Number of queue workers executing a request",
			},
		),
		QueuedRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netask",
				Name:      "queued_requests",
				Help:      "Number of requests waiting in queue",
			},
		),
		DispatchResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netask",
				Name:      "dispatch_results_total",
				Help:      "Dispatch outcomes by kind (success, transport, application, parse)",
			},
			[]string{"kind"},
		),
		DownloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netask",
				Name:      "downloads_total",
				Help:      "Total number of file downloads by result",
			},
			[]string{"result"},
		),
		DownloadedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "netask",
				Name:      "downloaded_bytes_total",
				Help:      "Total number of bytes written by file downloads",
			},
		),
		EndpointHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "netask",
				Name:      "endpoint_health",
				Help:      "Health status of each endpoint (1=healthy, 0=unhealthy)",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(method string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}

	m.RequestsTotal.WithLabelValues(method, code).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// IncRetries counts one retry attempt.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// SetActiveWorkers updates the active workers metric.
func (m *Metrics) SetActiveWorkers(count int) {
	if m == nil {
		return
	}
	m.ActiveWorkers.Set(float64(count))
}

// SetQueuedRequests updates the queued requests metric.
func (m *Metrics) SetQueuedRequests(count int) {
	if m == nil {
		return
	}
	m.QueuedRequests.Set(float64(count))
}

// IncRequestsInFlight increments the in-flight requests counter.
func (m *Metrics) IncRequestsInFlight() {
	if m == nil {
		return
	}
	m.RequestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter.
func (m *Metrics) DecRequestsInFlight() {
	if m == nil {
		return
	}
	m.RequestsInFlight.Dec()
}

// RecordDispatch counts a dispatch outcome.
func (m *Metrics) RecordDispatch(kind string) {
	if m == nil {
		return
	}
	m.DispatchResults.WithLabelValues(kind).Inc()
}

// RecordDownload counts a finished download and the bytes it wrote.
func (m *Metrics) RecordDownload(ok bool, bytes int64) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.DownloadsTotal.WithLabelValues(result).Inc()
	m.DownloadedBytes.Add(float64(bytes))
}

// SetEndpointHealth updates the health status for an endpoint.
func (m *Metrics) SetEndpointHealth(endpoint string, healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.EndpointHealth.WithLabelValues(endpoint).Set(1)
	} else {
		m.EndpointHealth.WithLabelValues(endpoint).Set(0)
	}
}
