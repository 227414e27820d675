package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func TestSessionLifecycleMetrics(t *testing.T) {
	m := newTestMetrics()

	m.RecordSessionStart()
	m.RecordSessionStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsActive))

	m.RecordSessionCompleted("intermediate", 3.2)
	m.RecordSessionAborted("capture_unavailable")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCompleted.WithLabelValues("intermediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsAborted.WithLabelValues("capture_unavailable")))
}

func TestRecordFragment(t *testing.T) {
	m := newTestMetrics()

	m.RecordFragment(false, "interim")
	m.RecordFragment(true, "append")
	m.RecordFragment(true, "tail_overlap")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fragments.WithLabelValues("interim")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fragments.WithLabelValues("final")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileDecisions.WithLabelValues("tail_overlap")))
}

func TestRecordFrame(t *testing.T) {
	m := newTestMetrics()

	m.RecordFrame(4096)
	m.RecordFrame(100)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CaptureFrames))
	assert.Equal(t, 4196.0, testutil.ToFloat64(m.CaptureSamples))
}

func TestRecordKafkaPublish(t *testing.T) {
	m := newTestMetrics()

	m.RecordKafkaPublish("results", "evaluation", nil, 0.01)
	m.RecordKafkaPublish("results", "evaluation", errors.New("boom"), 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("results", "evaluation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("results", "evaluation")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic.
	assert.NotPanics(t, func() {
		newTestMetrics()
		newTestMetrics()
	})
}
