// Package mock provides a scripted recognizer for local runs and tests
// without cloud credentials. It replays progressive interim fragments and
// restart-style overlapping finals, one event per received audio frame, and
// flushes any remaining finals when closed.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"speech-practice-evaluator/internal/service/stt"
)

// Utterance is one scripted stretch of speech.
type Utterance struct {
	Partials   []string // Progressive interim transcripts
	Finals     []string // Final transcripts, possibly overlapping each other
	Confidence float64  // Confidence reported with finals
}

// DefaultFragmentInterval spaces scripted fragments at a conversational pace.
const DefaultFragmentInterval = 2500 * time.Millisecond

// DefaultScript cycles drill sentences for the "mock" provider. Every
// utterance ends in two overlapping finals so timestamp-based rates apply.
var DefaultScript = []Utterance{
	{
		Partials:   []string{"the quick", "the quick brown"},
		Finals:     []string{"the quick brown fox", "brown fox jumps over the lazy dog"},
		Confidence: 0.94,
	},
	{
		Partials:   []string{"I would", "I would like"},
		Finals:     []string{"I would like a cup", "a cup of coffee"},
		Confidence: 0.97,
	},
	{
		Partials:   []string{"where is", "where is the"},
		Finals:     []string{"where is the train", "is the train station"},
		Confidence: 0.91,
	},
	{
		Partials:   []string{"she sells"},
		Finals:     []string{"she sells sea shells", "sea shells by the sea shore"},
		Confidence: 0.89,
	},
	{
		Partials:   []string{"thank you"},
		Finals:     []string{"thank you", "you very much"},
		Confidence: 0.98,
	},
}

// Say builds a script that speaks sentence: growing interim prefixes, then two
// finals overlapping by a third of the words, as an engine restart would.
func Say(sentence string, confidence float64) []Utterance {
	words := strings.Fields(sentence)
	if len(words) == 0 {
		return nil
	}
	u := Utterance{Confidence: confidence}
	for i := 1; i < len(words); i++ {
		u.Partials = append(u.Partials, join(words[:i]))
	}
	n := len(words)
	if n < 4 {
		u.Finals = []string{join(words)}
		return []Utterance{u}
	}
	split := (2*n + 2) / 3
	u.Finals = []string{join(words[:split]), join(words[n/3:])}
	return []Utterance{u}
}

func join(words []string) string {
	return strings.Join(words, " ")
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithFramesPerEvent emits one fragment every n audio frames.
func WithFramesPerEvent(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.framesPerEvent = n
		}
	}
}

// WithFragmentInterval stamps fragments at fixed intervals from the session
// start instead of the wall clock, so unpaced replays still carry realistic
// timing.
func WithFragmentInterval(d time.Duration) Option {
	return func(a *Adapter) {
		a.interval = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

type event struct {
	text       string
	final      bool
	confidence float64
}

// Adapter implements stt.Recognizer and stt.AudioSink with scripted output.
type Adapter struct {
	framesPerEvent int
	interval       time.Duration
	now            func() time.Time

	mu      sync.Mutex
	cb      stt.Callback
	events  []event
	next    int
	frames  int
	emitted int
	started time.Time
	closed  bool
}

// New creates a scripted recognizer.
func New(script []Utterance, opts ...Option) *Adapter {
	a := &Adapter{
		framesPerEvent: 1,
		now:            time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	for _, u := range script {
		for _, p := range u.Partials {
			a.events = append(a.events, event{text: p})
		}
		for _, f := range u.Finals {
			a.events = append(a.events, event{text: f, final: true, confidence: u.Confidence})
		}
	}
	return a
}

// NewFactory returns a factory that hands each session the next utterance
// of script, cycling.
func NewFactory(script []Utterance, opts ...Option) stt.Factory {
	var (
		mu  sync.Mutex
		idx int
	)
	return func(context.Context, stt.StreamFormat) (stt.Recognizer, error) {
		if len(script) == 0 {
			return New(nil, opts...), nil
		}
		mu.Lock()
		u := script[idx%len(script)]
		idx++
		mu.Unlock()
		return New([]Utterance{u}, opts...), nil
	}
}

// Start binds the session callback.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	a.started = a.now()
	return nil
}

// SendAudio advances the script by one frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}
	a.frames++
	if a.frames%a.framesPerEvent == 0 && a.next < len(a.events) {
		a.emit(a.events[a.next])
		a.next++
	}
	return nil
}

// Close flushes the remaining finals and signals end of stream.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.cb == nil {
		return nil
	}
	for ; a.next < len(a.events); a.next++ {
		if e := a.events[a.next]; e.final {
			a.emit(e)
		}
	}
	a.cb.OnClosed()
	return nil
}

// emit must be called with a.mu held.
func (a *Adapter) emit(e event) {
	ts := a.now()
	if a.interval > 0 {
		a.emitted++
		ts = a.started.Add(time.Duration(a.emitted) * a.interval)
	}
	a.cb.OnFragment(stt.Fragment{
		Text:       e.text,
		IsFinal:    e.final,
		Confidence: e.confidence,
		Timestamp:  ts,
	})
}
