// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_practice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionsCompleted *prometheus.CounterVec
	SessionsAborted   *prometheus.CounterVec
	SessionDuration   prometheus.Histogram

	// Capture metrics
	CaptureFrames  prometheus.Counter
	CaptureSamples prometheus.Counter

	// Transcript metrics
	Fragments          *prometheus.CounterVec
	FragmentsDropped   prometheus.Counter
	ReconcileDecisions *prometheus.CounterVec
	RecognizerErrors   *prometheus.CounterVec

	// Scoring metrics
	RateMethods     *prometheus.CounterVec
	ContentAccuracy prometheus.Histogram
	WordsPerMinute  prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
	SchemaRejected      prometheus.Counter

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of practice sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently recording or finalizing",
		}),
		SessionsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions that produced a result, by level",
		}, []string{"level"}),
		SessionsAborted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_aborted_total",
			Help:      "Total number of sessions aborted without a result",
		}, []string{"reason"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Recording duration of completed sessions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 60},
		}),

		// Capture metrics
		CaptureFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_total",
			Help:      "Total audio frames captured",
		}),
		CaptureSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_samples_total",
			Help:      "Total audio samples captured",
		}),

		// Transcript metrics
		Fragments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Total recognizer fragments received",
		}, []string{"kind"}),
		FragmentsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_dropped_total",
			Help:      "Fragments dropped because the session queue was full or closed",
		}),
		ReconcileDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_decisions_total",
			Help:      "Transcript reconciliation decisions by rule",
		}, []string{"rule"}),
		RecognizerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Total number of recognizer errors",
		}, []string{"provider", "code"}),

		// Scoring metrics
		RateMethods: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_methods_total",
			Help:      "Speaking-rate duration calculation methods used",
		}, []string{"method"}),
		ContentAccuracy: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "content_accuracy",
			Help:      "Content accuracy of completed sessions",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		WordsPerMinute: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "words_per_minute",
			Help:      "Speaking rate of completed sessions",
			Buckets:   []float64{40, 60, 80, 100, 130, 150, 180, 220, 300},
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
		SchemaRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_rejected_total",
			Help:      "Results rejected by schema validation before publish",
		}),

		// gRPC metrics
		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_latency_seconds",
			Help:      "gRPC request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionCompleted records a session producing its result.
func (m *Metrics) RecordSessionCompleted(level string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsCompleted.WithLabelValues(level).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionAborted records a session ending without a result.
func (m *Metrics) RecordSessionAborted(reason string) {
	m.SessionsActive.Dec()
	m.SessionsAborted.WithLabelValues(reason).Inc()
}

// RecordFrame records a captured audio frame.
func (m *Metrics) RecordFrame(samples int) {
	m.CaptureFrames.Inc()
	m.CaptureSamples.Add(float64(samples))
}

// RecordFragment records a recognizer fragment and the rule that decided it.
func (m *Metrics) RecordFragment(final bool, rule string) {
	kind := "interim"
	if final {
		kind = "final"
	}
	m.Fragments.WithLabelValues(kind).Inc()
	m.ReconcileDecisions.WithLabelValues(rule).Inc()
}

// RecordFragmentDropped records a fragment that never reached the reconciler.
func (m *Metrics) RecordFragmentDropped() {
	m.FragmentsDropped.Inc()
}

// RecordRecognizerError records a recognizer error.
func (m *Metrics) RecordRecognizerError(provider, code string) {
	m.RecognizerErrors.WithLabelValues(provider, code).Inc()
}

// RecordScore records the scoring outcome of a session.
func (m *Metrics) RecordScore(method string, accuracy, wpm float64) {
	m.RateMethods.WithLabelValues(method).Inc()
	m.ContentAccuracy.Observe(accuracy)
	m.WordsPerMinute.Observe(wpm)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSchemaRejected records a result that failed schema validation.
func (m *Metrics) RecordSchemaRejected() {
	m.SchemaRejected.Inc()
}

// RecordGRPC records a completed gRPC call.
func (m *Metrics) RecordGRPC(method, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}
