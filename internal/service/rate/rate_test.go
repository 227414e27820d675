package rate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func stamps(offsets ...time.Duration) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, o := range offsets {
		out[i] = t0.Add(o)
	}
	return out
}

func TestEstimate_TimestampBased(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	est := e.Estimate(Input{
		WordCount:  6,
		Timestamps: stamps(0, 1500*time.Millisecond, 3*time.Second),
	})

	assert.Equal(t, MethodTimestamp, est.Method)
	assert.InDelta(t, 3.0, est.DurationSeconds, 1e-9)
	assert.InDelta(t, 120.0, est.WordsPerMinute, 1e-9)
	assert.Equal(t, 6, est.WordCount)
}

func TestEstimate_AnomalyFallback(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	est := e.Estimate(Input{
		WordCount:  10,
		Timestamps: stamps(0, 200*time.Millisecond),
	})

	assert.Equal(t, MethodAnomaly, est.Method)
	assert.InDelta(t, 10.0/3.0, est.DurationSeconds, 1e-9)
	assert.InDelta(t, 180.0, est.WordsPerMinute, 1e-9)
}

func TestEstimate_AnomalyOnImplausibleRate(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	// 4 words in 0.6s is 400 wpm; too few words for the short-span rule.
	est := e.Estimate(Input{
		WordCount:  4,
		Timestamps: stamps(0, 600*time.Millisecond),
	})

	assert.Equal(t, MethodAnomaly, est.Method)
	assert.InDelta(t, 4.0/3.0, est.DurationSeconds, 1e-9)
}

func TestEstimate_SingleTimestampUsesMinimumDuration(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	// One word over the 0.1s floor is 600 wpm, so the anomaly guard applies.
	est := e.Estimate(Input{WordCount: 1, Timestamps: stamps(time.Second)})
	assert.Equal(t, MethodAnomaly, est.Method)

	// No words: the floor keeps the duration positive and the rate is zero.
	est = e.Estimate(Input{WordCount: 0, Timestamps: stamps(time.Second)})
	assert.Equal(t, MethodTimestamp, est.Method)
	assert.InDelta(t, 0.1, est.DurationSeconds, 1e-9)
	assert.Zero(t, est.WordsPerMinute)
}

func TestEstimate_AudioEnergy(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	const rate = 1000
	samples := make([]float32, 4000)
	for i := 1000; i < 3000; i++ {
		samples[i] = float32(0.5 * math.Sin(float64(i)*0.3))
	}

	est := e.Estimate(Input{WordCount: 4, Samples: samples, SampleRate: rate})

	assert.Equal(t, MethodAudioEnergy, est.Method)
	assert.InDelta(t, 2.0, est.DurationSeconds, 1e-9)
	assert.InDelta(t, 120.0, est.WordsPerMinute, 1e-9)
}

func TestEstimate_Heuristic(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	est := e.Estimate(Input{WordCount: 9})

	assert.Equal(t, MethodHeuristic, est.Method)
	assert.InDelta(t, 3.0, est.DurationSeconds, 1e-9)
	assert.InDelta(t, 180.0, est.WordsPerMinute, 1e-9)
}

func TestEstimate_NoWordsNoAudio(t *testing.T) {
	est := NewEstimator(DefaultConfig()).Estimate(Input{})

	assert.Equal(t, MethodHeuristic, est.Method)
	assert.Zero(t, est.DurationSeconds)
	assert.Zero(t, est.WordsPerMinute)
}

func TestEstimate_ConfigurableCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlausibleWPM = 1000

	est := NewEstimator(cfg).Estimate(Input{
		WordCount:  4,
		Timestamps: stamps(0, 600*time.Millisecond),
	})
	assert.Equal(t, MethodTimestamp, est.Method)
	assert.InDelta(t, 400.0, est.WordsPerMinute, 1e-9)
}
