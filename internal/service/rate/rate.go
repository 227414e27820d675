// Package rate estimates speaking rate in words per minute from fragment
// timestamps, falling back to audio energy or a fixed speaking pace.
package rate

import (
	"time"

	"speech-practice-evaluator/internal/service/energy"
)

// Duration calculation methods reported with an Estimate.
const (
	MethodTimestamp   = "timestamp-based"
	MethodAnomaly     = "fallback (anomaly)"
	MethodAudioEnergy = "audio-energy"
	MethodHeuristic   = "heuristic"
)

// Methods lists every method, for metrics.
var Methods = []string{MethodTimestamp, MethodAnomaly, MethodAudioEnergy, MethodHeuristic}

// Config holds the estimator heuristics.
type Config struct {
	MaxPlausibleWPM        float64       `yaml:"max_plausible_wpm"`
	MinReliableSeconds     float64       `yaml:"min_reliable_seconds"`
	AnomalyWordCount       int           `yaml:"anomaly_word_count"`
	FallbackWordsPerSecond float64       `yaml:"fallback_words_per_second"`
	MinDurationSeconds     float64       `yaml:"min_duration_seconds"`
	Energy                 energy.Config `yaml:"energy"`
}

// DefaultConfig returns the estimator defaults.
func DefaultConfig() Config {
	return Config{
		MaxPlausibleWPM:        300,
		MinReliableSeconds:     0.5,
		AnomalyWordCount:       5,
		FallbackWordsPerSecond: 3,
		MinDurationSeconds:     0.1,
		Energy:                 energy.DefaultConfig(),
	}
}

// Input is what the estimator measures.
type Input struct {
	WordCount int
	// Timestamps of accepted final fragments, in arrival order.
	Timestamps []time.Time
	// Samples and SampleRate describe the decoded recording, if any.
	Samples    []float32
	SampleRate int
}

// Estimate is the estimator's result.
type Estimate struct {
	DurationSeconds float64
	WordsPerMinute  float64
	Method          string
	WordCount       int
}

// Estimator computes speaking rate.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an Estimator.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate derives speech duration and words per minute from in.
//
// With timestamps the duration is the span between the first and last
// accepted fragment, at least MinDurationSeconds. A rate above
// MaxPlausibleWPM, or a span shorter than MinReliableSeconds covering more
// than AnomalyWordCount words, is treated as an anomaly and replaced by the
// fixed-pace estimate. Without timestamps the speech-energy detector measures
// the recording; with no recording either, the fixed pace is used.
func (e *Estimator) Estimate(in Input) Estimate {
	est := Estimate{WordCount: in.WordCount}

	switch {
	case len(in.Timestamps) > 0:
		first, last := in.Timestamps[0], in.Timestamps[len(in.Timestamps)-1]
		est.DurationSeconds = max(last.Sub(first).Seconds(), e.cfg.MinDurationSeconds)
		est.Method = MethodTimestamp
		if e.anomalous(in.WordCount, est.DurationSeconds) {
			est.DurationSeconds = e.paced(in.WordCount)
			est.Method = MethodAnomaly
		}
	case len(in.Samples) > 0 && in.SampleRate > 0:
		est.DurationSeconds = energy.DetectSpeech(in.Samples, in.SampleRate, e.cfg.Energy).Seconds
		est.Method = MethodAudioEnergy
	default:
		est.DurationSeconds = e.paced(in.WordCount)
		est.Method = MethodHeuristic
	}

	if est.DurationSeconds > 0 {
		est.WordsPerMinute = float64(in.WordCount) / est.DurationSeconds * 60
	}
	return est
}

func (e *Estimator) anomalous(words int, seconds float64) bool {
	wpm := float64(words) / seconds * 60
	if wpm > e.cfg.MaxPlausibleWPM {
		return true
	}
	return seconds < e.cfg.MinReliableSeconds && words > e.cfg.AnomalyWordCount
}

func (e *Estimator) paced(words int) float64 {
	if e.cfg.FallbackWordsPerSecond <= 0 {
		return 0
	}
	return float64(words) / e.cfg.FallbackWordsPerSecond
}
