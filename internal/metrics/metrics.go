// Package metrics records run statistics in a private Prometheus registry.
// A batch CLI has no scrape endpoint, so the registry can be written to a
// node-exporter textfile at the end of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	files           *prometheus.CounterVec
	substitutions   *prometheus.CounterVec
	malformed       prometheus.Counter
	fileDuration    prometheus.Histogram
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		files: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veil_files_total",
				Help: "Files processed, by result (success, failure, skipped)",
			},
			[]string{"result"},
		),
		substitutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veil_substitutions_total",
				Help: "Substitutions applied, by entity type and operator",
			},
			[]string{"entity_type", "operator"},
		),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Name: "veil_malformed_spans_total",
			Help: "Detected spans discarded because their offsets did not fit the text",
		}),
		fileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "veil_file_duration_seconds",
			Help:    "Time spent on one file",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		}),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veil_service_requests_total",
				Help: "Requests to the analyzer and anonymizer services, by result",
			},
			[]string{"service", "endpoint", "result"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veil_service_request_duration_seconds",
				Help:    "Latency of service requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "endpoint"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveFile records a processed file. result is success, failure or skipped.
func (m *Metrics) ObserveFile(result string, d time.Duration) {
	m.files.WithLabelValues(result).Inc()
	m.fileDuration.Observe(d.Seconds())
}

// ObserveSubstitution records one applied substitution.
func (m *Metrics) ObserveSubstitution(entityType, operator string) {
	m.substitutions.WithLabelValues(entityType, operator).Inc()
}

// ObserveMalformed adds n discarded spans.
func (m *Metrics) ObserveMalformed(n int) {
	if n > 0 {
		m.malformed.Add(float64(n))
	}
}

// ObserveRequest matches presidio.Observer.
func (m *Metrics) ObserveRequest(service, endpoint string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.requests.WithLabelValues(service, endpoint, result).Inc()
	m.requestDuration.WithLabelValues(service, endpoint).Observe(d.Seconds())
}

// WriteTextfile writes every metric in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
