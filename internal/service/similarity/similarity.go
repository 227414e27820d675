// Package similarity scores how closely a recognized attempt matches the
// target sentence, combining four word and character metrics.
package similarity

import (
	"math"

	"speech-practice-evaluator/internal/models"
	"speech-practice-evaluator/internal/service/textnorm"
)

// Weights of the individual metrics in the combined score.
type Weights struct {
	Jaccard   float64 `yaml:"jaccard"`
	LCS       float64 `yaml:"lcs"`
	Edit      float64 `yaml:"edit"`
	Substring float64 `yaml:"substring"`
}

// Config tunes the scorer.
type Config struct {
	Weights Weights `yaml:"weights"`
	// LengthPenaltyFactor scales the penalty for word-count mismatch.
	LengthPenaltyFactor float64 `yaml:"length_penalty_factor"`
}

// DefaultConfig returns weights 0.30/0.25/0.25/0.20 and a 0.3 length
// penalty factor.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Jaccard:   0.30,
			LCS:       0.25,
			Edit:      0.25,
			Substring: 0.20,
		},
		LengthPenaltyFactor: 0.3,
	}
}

// Scorer computes similarity reports.
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score compares attempt against target. Both are normalized first; an empty
// side scores zero on every metric.
func (s *Scorer) Score(attempt, target string) models.SimilarityReport {
	na, nt := textnorm.Normalize(attempt), textnorm.Normalize(target)
	wa, wt := textnorm.Words(attempt), textnorm.Words(target)
	if len(wa) == 0 || len(wt) == 0 {
		return models.SimilarityReport{}
	}

	r := models.SimilarityReport{
		Jaccard:        Jaccard(wa, wt),
		LCS:            LCSRatio(wa, wt),
		EditDistance:   EditSimilarity(na, nt),
		SubstringMatch: SubstringMatch(wa, wt),
	}
	w := s.cfg.Weights
	r.Weighted = w.Jaccard*r.Jaccard + w.LCS*r.LCS + w.Edit*r.EditDistance + w.Substring*r.SubstringMatch
	r.LengthPenalty = LengthPenalty(len(wa), len(wt), s.cfg.LengthPenaltyFactor)
	r.Final = clamp(r.Weighted * r.LengthPenalty)
	return r
}

// LengthPenalty returns 1 - |1 - min/max| * factor for two word counts.
func LengthPenalty(a, b int, factor float64) float64 {
	if a == 0 || b == 0 {
		return 1 - factor
	}
	ratio := float64(min(a, b)) / float64(max(a, b))
	return 1 - math.Abs(1-ratio)*factor
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
