// Package proficiency maps content accuracy, speaking rate and audio quality
// to a proficiency level.
package proficiency

import (
	"fmt"
	"strings"
)

// Levels.
const (
	LevelPoorAudio        = "poor audio quality"
	LevelNoSpeech         = "no speech detected"
	LevelContentMismatch  = "content mismatch"
	LevelNeedsImprovement = "needs improvement"
	LevelBeginner         = "beginner"
	LevelIntermediate     = "intermediate"
	LevelAdvanced         = "advanced"
	LevelExpert           = "expert"
)

// Levels lists every level, for metrics.
var Levels = []string{
	LevelPoorAudio, LevelNoSpeech, LevelContentMismatch, LevelNeedsImprovement,
	LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert,
}

// Verification statuses.
const (
	StatusAudioRejected   = "audio-rejected"
	StatusNoSpeech        = "no-speech"
	StatusContentMismatch = "content-mismatch"
	StatusPartialMatch    = "partial-match"
	StatusVerified        = "verified"
)

// Bands holds the accuracy and rate thresholds.
type Bands struct {
	MismatchAccuracy    float64 `yaml:"mismatch_accuracy"`
	ImprovementAccuracy float64 `yaml:"improvement_accuracy"`
	IntermediateWPM     float64 `yaml:"intermediate_wpm"`
	AdvancedWPM         float64 `yaml:"advanced_wpm"`
	ExpertWPM           float64 `yaml:"expert_wpm"`
}

// DefaultBands returns accuracy bands 0.3/0.6 and rate bands 80/130/150.
func DefaultBands() Bands {
	return Bands{
		MismatchAccuracy:    0.3,
		ImprovementAccuracy: 0.6,
		IntermediateWPM:     80,
		AdvancedWPM:         130,
		ExpertWPM:           150,
	}
}

// Input is what the classifier judges.
type Input struct {
	ContentAccuracy float64
	WordsPerMinute  float64
	Transcript      string
	QualityPassed   bool
	QualityReason   string
}

// Assessment is the classifier's verdict.
type Assessment struct {
	Level       string
	Explanation string
	Status      string
}

// Classifier assigns proficiency levels.
type Classifier struct {
	bands Bands
}

// NewClassifier creates a Classifier.
func NewClassifier(bands Bands) *Classifier {
	return &Classifier{bands: bands}
}

// Classify applies, in order: the audio quality guard, the empty-transcript
// check, the accuracy bands and finally the speaking-rate bands.
func (c *Classifier) Classify(in Input) Assessment {
	b := c.bands
	switch {
	case !in.QualityPassed:
		reason := in.QualityReason
		if reason == "" {
			reason = "audio could not be analysed"
		}
		return Assessment{
			Level:       LevelPoorAudio,
			Explanation: fmt.Sprintf("The recording was not usable: %s. Please check your microphone and try again.", reason),
			Status:      StatusAudioRejected,
		}
	case strings.TrimSpace(in.Transcript) == "":
		return Assessment{
			Level:       LevelNoSpeech,
			Explanation: "No speech was recognized in the recording. Speak clearly and try again.",
			Status:      StatusNoSpeech,
		}
	case in.ContentAccuracy < b.MismatchAccuracy:
		return Assessment{
			Level:       LevelContentMismatch,
			Explanation: fmt.Sprintf("What you said matched the target sentence only %.0f%%. Read the sentence again and repeat it.", in.ContentAccuracy*100),
			Status:      StatusContentMismatch,
		}
	case in.ContentAccuracy < b.ImprovementAccuracy:
		return Assessment{
			Level:       LevelNeedsImprovement,
			Explanation: fmt.Sprintf("Content accuracy was %.0f%%. Several words were missing or different.", in.ContentAccuracy*100),
			Status:      StatusPartialMatch,
		}
	}

	a := Assessment{Status: StatusVerified}
	switch wpm := in.WordsPerMinute; {
	case wpm < b.IntermediateWPM:
		a.Level = LevelBeginner
		a.Explanation = fmt.Sprintf("Accurate, but slow at %.0f words per minute. Aim for at least %.0f.", wpm, b.IntermediateWPM)
	case wpm < b.AdvancedWPM:
		a.Level = LevelIntermediate
		a.Explanation = fmt.Sprintf("Accurate at a steady %.0f words per minute.", wpm)
	case wpm < b.ExpertWPM:
		a.Level = LevelAdvanced
		a.Explanation = fmt.Sprintf("Accurate and fluent at %.0f words per minute.", wpm)
	default:
		a.Level = LevelExpert
		a.Explanation = fmt.Sprintf("Accurate at a native-like %.0f words per minute.", wpm)
	}
	return a
}
