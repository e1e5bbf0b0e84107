package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photovoice/internal/jobs"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	dubberRequestsTotal *prometheus.CounterVec
	dubberDuration      *prometheus.HistogramVec
	jobOutcomesTotal    *prometheus.CounterVec
	jobPollAttempts     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photovoice_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photovoice_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		dubberRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photovoice_dubber_requests_total",
				Help: "Total requests to the remote dubbing service.",
			},
			[]string{"endpoint", "status"},
		),
		dubberDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photovoice_dubber_request_duration_seconds",
				Help:    "Dubbing service request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		jobOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photovoice_job_outcomes_total",
				Help: "Terminal outcomes of speech-synthesis and video-render jobs.",
			},
			[]string{"kind", "outcome"},
		),
		jobPollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photovoice_job_poll_attempts",
				Help:    "Number of status polls a job needed to reach a terminal state.",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 150},
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dubberRequestsTotal,
		m.dubberDuration,
		m.jobOutcomesTotal,
		m.jobPollAttempts,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveDubber(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.dubberRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.dubberDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

// ObserveJob records a job's terminal outcome; it satisfies the controller
// observer hook.
func (m *Metrics) ObserveJob(kind jobs.Kind, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.jobOutcomesTotal.WithLabelValues(string(kind), outcome).Inc()
	m.jobPollAttempts.WithLabelValues(string(kind)).Observe(float64(attempts))
}
