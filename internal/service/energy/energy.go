// Package energy analyses decoded recordings: it locates the span of actual
// speech by windowed amplitude (silence trimming) and gates unusable
// recordings before they are scored.
package energy

import (
	"math"
	"time"
)

// Config tunes the speech-energy duration detector.
type Config struct {
	// Window is the analysis window length.
	Window time.Duration `yaml:"window"`
	// SilenceThreshold is the mean absolute amplitude at or below which a
	// window counts as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`
	// MinFraction is the smallest share of the total recording the detected
	// duration may be.
	MinFraction float64 `yaml:"min_fraction"`
}

// DefaultConfig returns the detector defaults: 100ms windows, a 0.01
// amplitude threshold and a 30% floor.
func DefaultConfig() Config {
	return Config{
		Window:           100 * time.Millisecond,
		SilenceThreshold: 0.01,
		MinFraction:      0.3,
	}
}

// Detection is the outcome of DetectSpeech.
type Detection struct {
	// Seconds is the speech duration reported to callers.
	Seconds float64
	// TotalSeconds is the length of the whole recording.
	TotalSeconds float64
	// FirstWindow and LastWindow index the first and last speech windows;
	// both are -1 when no window exceeded the threshold.
	FirstWindow int
	LastWindow  int
	// Floored is set when the 30% floor replaced the measured span.
	Floored bool
}

// DetectSpeech finds the first and last windows whose mean absolute amplitude
// exceeds the silence threshold and returns the span between them.
func DetectSpeech(samples []float32, sampleRate int, cfg Config) Detection {
	d := Detection{FirstWindow: -1, LastWindow: -1}
	if sampleRate <= 0 || len(samples) == 0 {
		return d
	}
	d.TotalSeconds = float64(len(samples)) / float64(sampleRate)

	size := int(float64(sampleRate) * cfg.Window.Seconds())
	if size <= 0 {
		size = len(samples)
	}

	var firstStart, lastEnd int
	for w, start := 0, 0; start < len(samples); w, start = w+1, start+size {
		end := min(start+size, len(samples))
		if MeanAbs(samples[start:end]) <= cfg.SilenceThreshold {
			continue
		}
		if d.FirstWindow < 0 {
			d.FirstWindow = w
			firstStart = start
		}
		d.LastWindow = w
		lastEnd = end
	}

	if d.FirstWindow >= 0 {
		d.Seconds = float64(lastEnd-firstStart) / float64(sampleRate)
	}
	if floor := d.TotalSeconds * cfg.MinFraction; d.Seconds < floor {
		d.Seconds = floor
		d.Floored = true
	}
	return d
}

// MeanAbs returns the mean absolute amplitude of samples.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// RMS returns the root-mean-square level of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > p {
			p = a
		}
	}
	return p
}
