// Package reconcile merges a stream of overlapping, duplicated incremental
// recognizer fragments into one stable, append-only transcript.
package reconcile

import (
	"strings"
	"sync"
	"time"

	"speech-practice-evaluator/internal/service/stt"
	"speech-practice-evaluator/internal/service/textnorm"
)

// Config tunes the reconciler.
type Config struct {
	// DebounceWindow discards a final fragment whose normalized text was seen
	// less than this long ago.
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// MinInteriorRun is the shortest word run that counts as an interior overlap.
	MinInteriorRun int `yaml:"min_interior_run"`
}

// DefaultConfig returns a 500ms debounce window and 3-word interior runs.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 500 * time.Millisecond,
		MinInteriorRun: 3,
	}
}

// Decision reports what Accept did with a fragment.
type Decision struct {
	Rule     Rule
	Appended []string
}

// Accepted reports whether the fragment added words to the transcript.
func (d Decision) Accepted() bool {
	return len(d.Appended) > 0
}

// TimestampEntry records when a final fragment that added words arrived.
type TimestampEntry struct {
	Text   string        `json:"text"`
	At     time.Time     `json:"at"`
	Offset time.Duration `json:"offset"`
}

// Reconciler owns the transcript of one session. It is safe for concurrent use.
type Reconciler struct {
	cfg   Config
	start time.Time
	now   func() time.Time

	mu          sync.Mutex
	tokens      []textnorm.Token
	provisional string
	sawFinal    bool
	recent      map[string]time.Time
	log         []TimestampEntry
	counts      map[Rule]int
}

// New creates a reconciler for a session that started at sessionStart.
func New(cfg Config, sessionStart time.Time) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		start:  sessionStart,
		now:    time.Now,
		recent: make(map[string]time.Time),
		counts: make(map[Rule]int),
	}
}

// step is one entry of the ordered rule list. It returns the index of the
// first fragment token to append, or -1 to discard the fragment.
type step struct {
	rule  Rule
	match func(r *Reconciler, transcript, fragment []string) (from int, ok bool)
}

var finalRules = []step{
	{RuleTailOverlap, func(_ *Reconciler, t, f []string) (int, bool) {
		k := TailOverlap(t, f)
		return k, k > 0
	}},
	{RuleContainment, func(_ *Reconciler, t, f []string) (int, bool) {
		return -1, Contains(t, f)
	}},
	{RuleInteriorOverlap, func(r *Reconciler, t, f []string) (int, bool) {
		end := InteriorOverlap(t, f, r.cfg.MinInteriorRun)
		return end, end > 0
	}},
	{RuleAppend, func(_ *Reconciler, _, _ []string) (int, bool) {
		return 0, true
	}},
}

// Accept folds one fragment into the transcript. Empty fragments are ignored.
// Interim fragments only seed a provisional transcript until the first final
// arrives.
func (r *Reconciler) Accept(f stt.Fragment) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := textnorm.Tokenize(f.Text)
	if len(tokens) == 0 {
		return r.decide(Decision{Rule: RuleEmpty})
	}

	if !f.IsFinal {
		if !r.sawFinal && len(r.tokens) == 0 {
			r.provisional = strings.Join(strings.Fields(f.Text), " ")
		}
		return r.decide(Decision{Rule: RuleInterim})
	}

	if !r.sawFinal {
		r.sawFinal = true
		r.provisional = ""
	}

	at := f.Timestamp
	if at.IsZero() {
		at = r.now()
	}
	fragment := norms(tokens)
	key := strings.Join(fragment, " ")
	if r.debounced(key, at) {
		return r.decide(Decision{Rule: RuleDebounce})
	}

	transcript := norms(r.tokens)
	for _, s := range finalRules {
		from, ok := s.match(r, transcript, fragment)
		if !ok {
			continue
		}
		d := Decision{Rule: s.rule}
		// A match that ends at the fragment's last word repeats what the
		// transcript already holds and must not stretch the timing log.
		if from >= 0 && from < len(tokens) {
			for _, t := range tokens[from:] {
				d.Appended = append(d.Appended, t.Raw)
			}
			r.tokens = append(r.tokens, tokens[from:]...)
			r.log = append(r.log, TimestampEntry{
				Text:   strings.Join(strings.Fields(f.Text), " "),
				At:     at,
				Offset: at.Sub(r.start),
			})
		}
		return r.decide(d)
	}
	return r.decide(Decision{Rule: RuleAppend})
}

// debounced reports whether key was seen within the debounce window of at and
// records the arrival. Must be called with r.mu held.
func (r *Reconciler) debounced(key string, at time.Time) bool {
	for k, seen := range r.recent {
		if at.Sub(seen) >= r.cfg.DebounceWindow {
			delete(r.recent, k)
		}
	}
	last, ok := r.recent[key]
	r.recent[key] = at
	if !ok {
		return false
	}
	d := at.Sub(last)
	return d > -r.cfg.DebounceWindow && d < r.cfg.DebounceWindow
}

func (r *Reconciler) decide(d Decision) Decision {
	r.counts[d.Rule]++
	return d
}

// Text returns the current transcript, or the provisional interim text when
// no final fragment has been accepted yet.
func (r *Reconciler) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tokens) == 0 {
		return r.provisional
	}
	raw := make([]string, len(r.tokens))
	for i, t := range r.tokens {
		raw[i] = t.Raw
	}
	return strings.Join(raw, " ")
}

// WordCount returns the number of words in Text.
func (r *Reconciler) WordCount() int {
	return len(textnorm.Words(r.Text()))
}

// TimestampLog returns a copy of the accepted-final log.
func (r *Reconciler) TimestampLog() []TimestampEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TimestampEntry, len(r.log))
	copy(out, r.log)
	return out
}

// RuleCounts returns how many fragments each rule decided, keyed by rule name.
func (r *Reconciler) RuleCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for rule, n := range r.counts {
		out[rule.String()] = n
	}
	return out
}

func norms(tokens []textnorm.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Norm
	}
	return out
}
