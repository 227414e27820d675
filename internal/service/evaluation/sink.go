package evaluation

import (
	"sync"

	"github.com/rs/zerolog"

	"speech-practice-evaluator/internal/observability/metrics"
	"speech-practice-evaluator/internal/service/stt"
)

// sink receives recognizer callbacks for exactly one session. Once sealed it
// drops everything, so a stale stream cannot leak fragments into a later
// session.
type sink struct {
	provider string
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu        sync.Mutex
	sealed    bool
	fragments chan stt.Fragment

	endOnce sync.Once
	ended   chan struct{}
}

func newSink(size int, provider string, m *metrics.Metrics, log zerolog.Logger) *sink {
	return &sink{
		provider:  provider,
		metrics:   m,
		log:       log,
		fragments: make(chan stt.Fragment, size),
		ended:     make(chan struct{}),
	}
}

// OnFragment queues f without blocking the recognizer.
func (s *sink) OnFragment(f stt.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		s.metrics.RecordFragmentDropped()
		return
	}
	select {
	case s.fragments <- f:
	default:
		s.metrics.RecordFragmentDropped()
		s.log.Warn().Str("text", f.Text).Msg("Fragment queue full, dropping fragment")
	}
}

// OnError logs and counts recognition errors. They never end the session.
func (s *sink) OnError(err error) {
	code := stt.CodeOf(err)
	s.metrics.RecordRecognizerError(s.provider, string(code))
	s.log.Warn().Err(err).Str("code", string(code)).Msg("Recognizer error")
}

// OnClosed marks the end of the recognizer stream.
func (s *sink) OnClosed() {
	s.endOnce.Do(func() { close(s.ended) })
}

// seal stops accepting fragments and closes the queue.
func (s *sink) seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.sealed = true
	close(s.fragments)
}
