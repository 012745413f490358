package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for request counters
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeTimeout    = "timeout"
	OutcomeOverloaded = "overloaded"
)

// Metrics contains all Prometheus metrics for the SenseVoice API service
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestCount   *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	ActiveRequests prometheus.Gauge

	// Pipeline metrics
	TranscriptionDuration prometheus.Histogram
	AudioDuration         prometheus.Histogram
	OverflowDetected      prometheus.Counter

	// Startup metrics
	ModelLoadTime prometheus.Histogram
}

// New creates all collectors and registers them on the given registry
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sensevoice_requests_total",
			Help: "Total requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensevoice_request_duration_seconds",
			Help:    "Request latency by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensevoice_active_requests",
			Help: "Number of transcription requests currently in flight",
		}),

		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensevoice_transcription_duration_seconds",
			Help:    "End-to-end transcription processing time per file",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensevoice_audio_duration_seconds",
			Help:    "Duration of audio processed",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8 minutes
		}),
		OverflowDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensevoice_scale_overflow_total",
			Help: "Samples saturating the accelerator range after scaling",
		}),

		ModelLoadTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensevoice_model_load_time_seconds",
			Help:    "Model loading time at startup",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}
}

// Handler returns the pull-based text snapshot handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one request outcome with its latency
func (m *Metrics) RecordRequest(endpoint, outcome string, durationSeconds float64) {
	m.RequestCount.WithLabelValues(endpoint, outcome).Inc()
	m.RequestLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordTranscription records one completed file transcription
func (m *Metrics) RecordTranscription(processingSeconds, audioSeconds float64) {
	m.TranscriptionDuration.Observe(processingSeconds)
	m.AudioDuration.Observe(audioSeconds)
}

// RecordOverflow increments the post-scale saturation counter
func (m *Metrics) RecordOverflow() {
	m.OverflowDetected.Inc()
}

// ObserveModelLoad records the startup model load duration
func (m *Metrics) ObserveModelLoad(seconds float64) {
	m.ModelLoadTime.Observe(seconds)
}
