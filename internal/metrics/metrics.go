// Package metrics exposes Prometheus metrics for the render pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Render outcomes
	RendersWritten *prometheus.CounterVec
	RendersSkipped *prometheus.CounterVec
	RendersFailed  *prometheus.CounterVec

	// Timing
	RenderDuration  *prometheus.HistogramVec
	PublishDuration *prometheus.HistogramVec

	// Output size
	ArtifactBytes *prometheus.HistogramVec

	// Pipeline state
	QueueDepth      prometheus.Gauge
	InFlightRenders prometheus.Gauge

	// Collaborator errors
	SourceErrors  *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
	FactsErrors   *prometheus.CounterVec
	CatalogErrors prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mandalagen"
	}

	m := &Metrics{
		RendersWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_written_total",
				Help:      "Total number of renders committed to storage",
			},
			[]string{"image"},
		),
		RendersSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_skipped_total",
				Help:      "Total number of renders skipped (already exist)",
			},
			[]string{"image"},
		),
		RendersFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_failed_total",
				Help:      "Total number of renders that failed",
			},
			[]string{"image", "reason"},
		),
		RenderDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Time to derive one collage (crop, filter, compose, encode)",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"image"},
		),
		PublishDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Time to publish an artifact (upload + finalize + catalog)",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
			},
			[]string{"image"},
		),
		ArtifactBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "artifact_bytes",
				Help:      "Size of encoded collages in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~16MB
			},
			[]string{"image"},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of pending render tasks",
			},
		),
		InFlightRenders: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_renders",
				Help:      "Number of renders currently being processed",
			},
		),
		SourceErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of source image load errors",
			},
			[]string{"image"},
		),
		StorageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage write errors",
			},
			[]string{"backend"},
		),
		FactsErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "facts_errors_total",
				Help:      "Total number of daily facts lookup errors",
			},
			[]string{"image"},
		),
		CatalogErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of render catalog errors",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncWritten increments the committed render counter.
func (m *Metrics) IncWritten(image string) {
	m.RendersWritten.WithLabelValues(image).Inc()
}

// IncSkipped increments the skipped render counter.
func (m *Metrics) IncSkipped(image string) {
	m.RendersSkipped.WithLabelValues(image).Inc()
}

// IncFailed increments the failed render counter.
func (m *Metrics) IncFailed(image, reason string) {
	m.RendersFailed.WithLabelValues(image, reason).Inc()
}

// ObserveRenderDuration records the time taken to derive one collage.
func (m *Metrics) ObserveRenderDuration(image string, seconds float64) {
	m.RenderDuration.WithLabelValues(image).Observe(seconds)
}

// ObservePublishDuration records the time taken to publish one artifact.
func (m *Metrics) ObservePublishDuration(image string, seconds float64) {
	m.PublishDuration.WithLabelValues(image).Observe(seconds)
}

// ObserveArtifactBytes records the encoded collage size.
func (m *Metrics) ObserveArtifactBytes(image string, bytes float64) {
	m.ArtifactBytes.WithLabelValues(image).Observe(bytes)
}
