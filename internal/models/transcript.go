// Package models defines the data structures for evaluation results and
// published events.
package models

// Event types carried in the eventType field.
const (
	EventEvaluationCompleted = "evaluation.completed"
	EventTranscriptFinal     = "transcript.final"
)

// SimilarityReport holds the individual similarity metrics and the combined
// score. All values are in [0, 1].
type SimilarityReport struct {
	Jaccard        float64 `json:"jaccard"`
	LCS            float64 `json:"lcs"`
	EditDistance   float64 `json:"editDistance"`
	SubstringMatch float64 `json:"substringMatch"`
	Weighted       float64 `json:"weighted"`
	LengthPenalty  float64 `json:"lengthPenalty"`
	Final          float64 `json:"final"`
}

// AudioQuality summarizes the audio quality guard.
type AudioQuality struct {
	Passed          bool    `json:"passed"`
	Reason          string  `json:"reason,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	RMS             float64 `json:"rms"`
	Peak            float64 `json:"peak"`
}

// EvaluationResult is produced exactly once per practice session.
type EvaluationResult struct {
	EventType                 string           `json:"eventType"`
	SessionID                 string           `json:"sessionId"`
	LearnerID                 string           `json:"learnerId"`
	Level                     string           `json:"level"`
	LevelExplanation          string           `json:"levelExplanation"`
	ExpectedSentence          string           `json:"expectedSentence"`
	RecognizedText            string           `json:"recognizedText"`
	ContentAccuracy           float64          `json:"contentAccuracy"`
	WordsPerMinute            float64          `json:"wordsPerMinute"`
	WordCount                 int              `json:"wordCount"`
	SpeechDurationSeconds     float64          `json:"speechDurationSeconds"`
	DurationCalculationMethod string           `json:"durationCalculationMethod"`
	VerificationStatus        string           `json:"verificationStatus"`
	Similarity                SimilarityReport `json:"similarity"`
	AudioQuality              AudioQuality     `json:"audioQuality"`
	CompletedAt               int64            `json:"completedAt"`
}

// TranscriptFinal is the reconciled transcript of a session together with
// the accepted fragments it was built from.
type TranscriptFinal struct {
	EventType  string           `json:"eventType"`
	SessionID  string           `json:"sessionId"`
	LearnerID  string           `json:"learnerId"`
	Timestamp  int64            `json:"timestamp"`
	Text       string           `json:"text"`
	Segments   []TranscriptPart `json:"segments"`
	RuleCounts map[string]int   `json:"ruleCounts"`
}

// TranscriptPart is one accepted final fragment.
type TranscriptPart struct {
	Text     string `json:"text"`
	OffsetMs int64  `json:"offsetMs"`
}
