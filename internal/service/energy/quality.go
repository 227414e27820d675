package energy

import "fmt"

// QualityConfig holds the audio quality guard thresholds.
type QualityConfig struct {
	MinDurationSeconds float64 `yaml:"min_duration_seconds"`
	MinRMS             float64 `yaml:"min_rms"`
}

// DefaultQualityConfig rejects recordings shorter than 0.3s or quieter than
// an RMS of 0.005.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinDurationSeconds: 0.3,
		MinRMS:             0.005,
	}
}

// Quality reasons reported when the guard fails.
const (
	ReasonNoSignal = "no signal detected"
	ReasonTooShort = "recording too short"
	ReasonTooQuiet = "volume below audible threshold"
)

// Quality is the audio quality guard result.
type Quality struct {
	Passed          bool    `json:"passed"`
	Reason          string  `json:"reason,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	RMS             float64 `json:"rms"`
	Peak            float64 `json:"peak"`
}

// CheckQuality applies the guard to a recording. A missing or silent
// recording, one shorter than MinDurationSeconds, or one whose RMS is below
// MinRMS fails.
func CheckQuality(samples []float32, sampleRate int, cfg QualityConfig) Quality {
	q := Quality{
		RMS:  RMS(samples),
		Peak: Peak(samples),
	}
	if sampleRate > 0 {
		q.DurationSeconds = float64(len(samples)) / float64(sampleRate)
	}

	switch {
	case len(samples) == 0 || sampleRate <= 0 || q.Peak == 0:
		q.Reason = ReasonNoSignal
	case q.DurationSeconds < cfg.MinDurationSeconds:
		q.Reason = fmt.Sprintf("%s (%.2fs < %.2fs)", ReasonTooShort, q.DurationSeconds, cfg.MinDurationSeconds)
	case q.RMS < cfg.MinRMS:
		q.Reason = fmt.Sprintf("%s (rms %.4f < %.4f)", ReasonTooQuiet, q.RMS, cfg.MinRMS)
	default:
		q.Passed = true
	}
	return q
}
