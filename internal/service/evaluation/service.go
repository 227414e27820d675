package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"speech-practice-evaluator/internal/models"
	"speech-practice-evaluator/internal/observability/logging"
	"speech-practice-evaluator/internal/observability/metrics"
	"speech-practice-evaluator/internal/service/capture"
	"speech-practice-evaluator/internal/service/session"
	"speech-practice-evaluator/internal/service/stt"
	"speech-practice-evaluator/internal/service/wav"
)

// Service errors.
var (
	ErrInvalidAudio   = errors.New("invalid audio")
	ErrEmptyTarget    = errors.New("target sentence is required")
	ErrMissingLearner = errors.New("learner id is required")
	ErrUnknownSession = errors.New("unknown session")
)

const (
	publishTimeout     = 10 * time.Second
	defaultRecentLimit = 1000
)

// Publisher delivers completed sessions to the progress store.
type Publisher interface {
	PublishResult(ctx context.Context, key string, result models.EvaluationResult) error
	PublishTranscript(ctx context.Context, key string, ev models.TranscriptFinal) error
}

// Validator checks a result before it is published.
type Validator interface {
	ValidateResult(result models.EvaluationResult) error
}

// ServiceConfig configures the Service.
type ServiceConfig struct {
	Orchestrator Config
	// RecentResults bounds how many outcomes Lookup can find.
	RecentResults int
	// FrameSize is the replay frame size for uploaded recordings.
	FrameSize int
	// Realtime paces uploaded recordings like a live microphone.
	Realtime bool
}

// Service evaluates uploaded attempts. Each learner gets an Orchestrator, so
// a learner can have at most one session in flight.
type Service struct {
	cfg         ServiceConfig
	recognizers stt.Factory
	publisher   Publisher
	validator   Validator
	metrics     *metrics.Metrics
	ids         *session.Generator

	mu       sync.Mutex
	learners map[string]*Orchestrator
	recent   map[string]Outcome
	order    []string
}

// NewService creates a Service. publisher and validator may be nil.
func NewService(cfg ServiceConfig, recognizers stt.Factory, publisher Publisher, validator Validator, m *metrics.Metrics) *Service {
	if cfg.RecentResults <= 0 {
		cfg.RecentResults = defaultRecentLimit
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = capture.DefaultFrameSize
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Service{
		cfg:         cfg,
		recognizers: recognizers,
		publisher:   publisher,
		validator:   validator,
		metrics:     m,
		ids:         session.NewGenerator(),
		learners:    make(map[string]*Orchestrator),
		recent:      make(map[string]Outcome),
	}
}

// Evaluate decodes a WAV upload, replays it through a session for learnerID
// and scores it against target.
func (s *Service) Evaluate(ctx context.Context, learnerID, target string, audio []byte) (Outcome, error) {
	if strings.TrimSpace(learnerID) == "" {
		return Outcome{}, ErrMissingLearner
	}
	if strings.TrimSpace(target) == "" {
		return Outcome{}, ErrEmptyTarget
	}
	samples, sampleRate, err := wav.Decode(audio)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	opts := []capture.ReplayOption{capture.WithFrameSize(s.cfg.FrameSize)}
	if s.cfg.Realtime {
		opts = append(opts, capture.WithRealtimePacing())
	}
	device := capture.NewReplayDevice(samples, sampleRate, opts...)

	o := s.orchestrator(learnerID)
	out, err := o.RunOutcome(ctx, device, target)
	if err != nil {
		return Outcome{}, err
	}

	s.remember(out)
	s.publish(ctx, out)
	return out, nil
}

// Lookup returns a recent outcome by session ID.
func (s *Service) Lookup(sessionID string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.recent[sessionID]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return out, nil
}

// Shutdown aborts every open session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	orchestrators := make([]*Orchestrator, 0, len(s.learners))
	for _, o := range s.learners {
		orchestrators = append(orchestrators, o)
	}
	s.mu.Unlock()

	for _, o := range orchestrators {
		o.Abort()
	}
}

func (s *Service) orchestrator(learnerID string) *Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.learners[learnerID]
	if !ok {
		o = NewOrchestrator(s.cfg.Orchestrator, learnerID, s.recognizers,
			WithMetrics(s.metrics), WithIDs(s.ids))
		s.learners[learnerID] = o
	}
	return o
}

func (s *Service) remember(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := out.Result.SessionID
	if _, ok := s.recent[id]; !ok {
		s.order = append(s.order, id)
	}
	s.recent[id] = out
	for len(s.order) > s.cfg.RecentResults {
		delete(s.recent, s.order[0])
		s.order = s.order[1:]
	}
}

// publish validates and publishes an outcome. Failures are logged; the
// learner still gets the result.
func (s *Service) publish(ctx context.Context, out Outcome) {
	logger := logging.WithSession(out.Result.SessionID, out.Result.LearnerID)

	if s.validator != nil {
		if err := s.validator.ValidateResult(out.Result); err != nil {
			s.metrics.RecordSchemaRejected()
			logger.Error().Err(err).Msg("Result failed schema validation, not publishing")
			return
		}
	}
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	key := out.Result.LearnerID
	if err := s.publisher.PublishTranscript(ctx, key, out.Transcript); err != nil {
		logger.Error().Err(err).Msg("Failed to publish transcript")
	}
	if err := s.publisher.PublishResult(ctx, key, out.Result); err != nil {
		logger.Error().Err(err).Msg("Failed to publish result")
	}
}
