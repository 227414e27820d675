// Package evaluation runs practice sessions: it captures an attempt, feeds
// the recognizer's fragments through the reconciler and turns the result into
// a proficiency assessment.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"speech-practice-evaluator/internal/models"
	"speech-practice-evaluator/internal/observability/logging"
	"speech-practice-evaluator/internal/observability/metrics"
	"speech-practice-evaluator/internal/service/capture"
	"speech-practice-evaluator/internal/service/energy"
	"speech-practice-evaluator/internal/service/proficiency"
	"speech-practice-evaluator/internal/service/rate"
	"speech-practice-evaluator/internal/service/reconcile"
	"speech-practice-evaluator/internal/service/session"
	"speech-practice-evaluator/internal/service/similarity"
	"speech-practice-evaluator/internal/service/stt"
	"speech-practice-evaluator/internal/service/textnorm"
	"speech-practice-evaluator/internal/service/wav"
)

// ErrCaptureUnavailable is returned by Start when the capture device cannot
// be opened.
var ErrCaptureUnavailable = errors.New("capture device unavailable")

// Config holds the orchestrator settings and the scoring heuristics.
type Config struct {
	// GraceWindow bounds how long Stop waits for trailing fragments.
	GraceWindow time.Duration
	// MaxSessionDuration stops a Run that is still recording. Zero disables it.
	MaxSessionDuration time.Duration
	// FragmentQueue is the capacity of the per-session fragment queue.
	FragmentQueue int
	// Provider names the recognizer in metrics and logs.
	Provider string

	Reconcile  reconcile.Config
	Rate       rate.Config
	Similarity similarity.Config
	Quality    energy.QualityConfig
	Bands      proficiency.Bands
}

// DefaultConfig returns a 2s grace window and a 30s session limit.
func DefaultConfig() Config {
	return Config{
		GraceWindow:        2 * time.Second,
		MaxSessionDuration: 30 * time.Second,
		FragmentQueue:      256,
		Provider:           "mock",
		Reconcile:          reconcile.DefaultConfig(),
		Rate:               rate.DefaultConfig(),
		Similarity:         similarity.DefaultConfig(),
		Quality:            energy.DefaultQualityConfig(),
		Bands:              proficiency.DefaultBands(),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics overrides the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDs sets the session ID generator, shared between orchestrators.
func WithIDs(g *session.Generator) Option {
	return func(o *Orchestrator) {
		o.ids = g
	}
}

// Outcome is everything a finished session produced.
type Outcome struct {
	Result     models.EvaluationResult
	Transcript models.TranscriptFinal
	Recording  []byte
}

// run holds the resources of one open session.
type run struct {
	id          string
	started     time.Time
	device      capture.Device
	buffer      *capture.Buffer
	reconciler  *reconcile.Reconciler
	recognizer  stt.Recognizer
	sink        *sink
	group       *errgroup.Group
	cancel      context.CancelFunc
	captureDone chan struct{}
	streamEnded <-chan struct{}
	released    bool
	log         zerolog.Logger
}

// Orchestrator runs one practice session at a time for one learner.
// It is safe for concurrent use.
//
// Session lifecycle:
//
//	Start → (frames + fragments) → Stop → Finalize
//
// Start opens the device and the recognizer, Stop releases the device and
// waits briefly for trailing fragments, Finalize scores the attempt once.
type Orchestrator struct {
	cfg         Config
	learnerID   string
	recognizers stt.Factory
	metrics     *metrics.Metrics
	now         func() time.Time
	ids         *session.Generator

	estimator  *rate.Estimator
	scorer     *similarity.Scorer
	classifier *proficiency.Classifier

	lifecycle *session.Lifecycle

	// ops serializes state-changing operations.
	ops sync.Mutex

	mu        sync.RWMutex
	active    *run
	recording *capture.Recording
	wav       []byte
	result    *models.EvaluationResult
}

// NewOrchestrator creates an orchestrator for learnerID. recognizers creates
// a recognizer per session; nil means recognition is unsupported.
func NewOrchestrator(cfg Config, learnerID string, recognizers stt.Factory, opts ...Option) *Orchestrator {
	if recognizers == nil {
		recognizers = func(context.Context, stt.StreamFormat) (stt.Recognizer, error) {
			return stt.Unsupported{}, nil
		}
	}
	if cfg.FragmentQueue <= 0 {
		cfg.FragmentQueue = DefaultConfig().FragmentQueue
	}
	o := &Orchestrator{
		cfg:         cfg,
		learnerID:   learnerID,
		recognizers: recognizers,
		metrics:     metrics.DefaultMetrics,
		now:         time.Now,
		estimator:   rate.NewEstimator(cfg.Rate),
		scorer:      similarity.NewScorer(cfg.Similarity),
		classifier:  proficiency.NewClassifier(cfg.Bands),
		lifecycle:   session.NewLifecycle(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ids == nil {
		o.ids = session.NewGenerator()
	}
	return o
}

// State returns the current session state.
func (o *Orchestrator) State() session.State {
	return o.lifecycle.State()
}

// SessionID returns the current or most recent session ID.
func (o *Orchestrator) SessionID() string {
	return o.lifecycle.SessionID()
}

// Start opens a new session on device. It fails with
// session.ErrAlreadyRecording while another session is open and with
// ErrCaptureUnavailable when the device cannot be opened. A recognizer that
// cannot start leaves the session running with an empty transcript.
func (o *Orchestrator) Start(ctx context.Context, device capture.Device) error {
	o.ops.Lock()
	defer o.ops.Unlock()

	if o.lifecycle.State().IsOpen() {
		return session.ErrAlreadyRecording
	}
	id := o.ids.Next(o.learnerID)
	if err := o.lifecycle.Begin(id); err != nil {
		return err
	}
	o.metrics.RecordSessionStart()
	logger := logging.WithSession(id, o.learnerID)

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, err := device.Open(sessCtx)
	if err != nil {
		cancel()
		_ = device.Close()
		o.lifecycle.Abort()
		o.discard()
		o.metrics.RecordSessionAborted("capture_unavailable")
		logger.Error().Err(err).Msg("Failed to open capture device")
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	started := o.now()
	r := &run{
		id:          id,
		started:     started,
		device:      device,
		buffer:      capture.NewBuffer(device.SampleRate()),
		reconciler:  reconcile.New(o.cfg.Reconcile, started),
		cancel:      cancel,
		captureDone: make(chan struct{}),
		log:         logger,
	}
	r.sink = newSink(o.cfg.FragmentQueue, o.cfg.Provider, o.metrics, logger)
	r.recognizer = o.startRecognizer(sessCtx, r, stt.StreamFormat{SampleRate: device.SampleRate()})
	if r.recognizer == nil {
		r.sink.OnClosed()
	} else {
		r.streamEnded = r.sink.ended
	}

	g, gctx := errgroup.WithContext(sessCtx)
	g.Go(func() error { return o.pumpAudio(gctx, r, frames) })
	g.Go(func() error { return o.pumpFragments(r) })
	r.group = g

	o.mu.Lock()
	o.active = r
	o.recording = nil
	o.wav = nil
	o.result = nil
	o.mu.Unlock()

	logger.Info().
		Int("sampleRate", device.SampleRate()).
		Bool("recognizer", r.recognizer != nil).
		Msg("Session started")
	return nil
}

// discard drops the artifacts of the previous session after a failed start.
func (o *Orchestrator) discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = nil
	o.recording = nil
	o.wav = nil
	o.result = nil
}

func (o *Orchestrator) startRecognizer(ctx context.Context, r *run, format stt.StreamFormat) stt.Recognizer {
	rec, err := o.recognizers(ctx, format)
	if err != nil {
		r.log.Warn().Err(err).Msg("Recognizer unavailable, continuing without transcript")
		o.metrics.RecordRecognizerError(o.cfg.Provider, string(stt.CodeUnknown))
		return nil
	}
	if err := rec.Start(ctx, r.sink); err != nil {
		_ = rec.Close()
		if errors.Is(err, stt.ErrRecognitionUnsupported) {
			r.log.Info().Msg("Speech recognition not supported, continuing without transcript")
			return nil
		}
		r.log.Warn().Err(err).Msg("Recognizer failed to start, continuing without transcript")
		o.metrics.RecordRecognizerError(o.cfg.Provider, string(stt.CodeOf(err)))
		return nil
	}
	return rec
}

// pumpAudio appends every delivered frame to the capture buffer and forwards
// it to recognizers that consume audio.
func (o *Orchestrator) pumpAudio(ctx context.Context, r *run, frames <-chan capture.Frame) error {
	defer close(r.captureDone)

	audioSink, _ := r.recognizer.(stt.AudioSink)
	for f := range frames {
		if err := r.buffer.Append(f.Samples); err != nil {
			return fmt.Errorf("append frame %d: %w", f.Seq, err)
		}
		o.metrics.RecordFrame(len(f.Samples))
		if audioSink != nil {
			if err := audioSink.SendAudio(ctx, wav.EncodePCM16(f.Samples)); err != nil {
				r.log.Debug().Err(err).Uint64("seq", f.Seq).Msg("Failed to forward audio to recognizer")
			}
		}
	}
	return nil
}

// pumpFragments feeds queued fragments to the reconciler until the sink is
// sealed.
func (o *Orchestrator) pumpFragments(r *run) error {
	for f := range r.sink.fragments {
		d := r.reconciler.Accept(f)
		o.metrics.RecordFragment(f.IsFinal, d.Rule.String())
		r.log.Debug().
			Str("text", f.Text).
			Bool("final", f.IsFinal).
			Str("rule", d.Rule.String()).
			Strs("appended", d.Appended).
			Msg("Fragment reconciled")
	}
	return nil
}

// Stop ends capture for the recording session. It releases the device,
// finalizes the capture buffer, closes the recognizer and waits up to the
// grace window for trailing fragments, returning early when the recognizer
// reports the end of its stream.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.ops.Lock()
	defer o.ops.Unlock()

	if err := o.lifecycle.Stop(); err != nil {
		return err
	}

	o.mu.RLock()
	r := o.active
	o.mu.RUnlock()

	rec := o.release(ctx, r, true)

	o.mu.Lock()
	o.recording = rec
	o.mu.Unlock()

	r.log.Info().
		Int("frames", rec.FrameCount).
		Float64("durationSeconds", rec.DurationSeconds).
		Msg("Session stopped")
	return nil
}

// release tears down the session resources exactly once and returns the
// finalized recording. With grace it waits for the recognizer to drain.
func (o *Orchestrator) release(ctx context.Context, r *run, grace bool) *capture.Recording {
	if r.released {
		return r.buffer.Finalize()
	}
	r.released = true

	if err := r.device.Close(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to close capture device")
	}
	<-r.captureDone
	rec := r.buffer.Finalize()

	if r.recognizer != nil {
		if err := r.recognizer.Close(); err != nil {
			r.log.Warn().Err(err).Msg("Failed to close recognizer")
		}
	}
	if grace {
		timer := time.NewTimer(o.cfg.GraceWindow)
		select {
		case <-r.sink.ended:
		case <-timer.C:
			r.log.Debug().Dur("grace", o.cfg.GraceWindow).Msg("Grace window elapsed before recognizer closed")
		case <-ctx.Done():
		}
		timer.Stop()
	}
	r.sink.seal()

	if err := r.group.Wait(); err != nil {
		r.log.Error().Err(err).Msg("Session pump failed")
	}
	r.cancel()
	return rec
}

// Finalize scores the stopped session against target and completes it.
// The result is computed once; later calls return the same value. It fails
// with session.ErrNoSession when no session exists and with
// session.ErrStillRecording while recording.
func (o *Orchestrator) Finalize(ctx context.Context, target string) (models.EvaluationResult, error) {
	out, err := o.finalize(target)
	return out.Result, err
}

// finalize scores the stopped session and returns its result, transcript and
// recording taken together under ops.
func (o *Orchestrator) finalize(target string) (Outcome, error) {
	o.ops.Lock()
	defer o.ops.Unlock()

	switch o.lifecycle.State() {
	case session.StateIdle:
		return Outcome{}, session.ErrNoSession
	case session.StateRecording:
		return Outcome{}, session.ErrStillRecording
	case session.StateCompleted:
		o.mu.RLock()
		defer o.mu.RUnlock()
		if o.result == nil {
			return Outcome{}, session.ErrNoSession
		}
		return o.outcome(*o.result), nil
	}

	o.mu.RLock()
	r, rec := o.active, o.recording
	o.mu.RUnlock()

	encoded := wav.Encode(rec.Samples, rec.SampleRate)
	result := o.score(r, rec, encoded, target)

	if err := o.lifecycle.Complete(); err != nil {
		return Outcome{}, fmt.Errorf("complete session: %w", err)
	}

	o.mu.Lock()
	o.wav = encoded
	o.result = &result
	out := o.outcome(result)
	o.mu.Unlock()

	o.metrics.RecordScore(result.DurationCalculationMethod, result.ContentAccuracy, result.WordsPerMinute)
	o.metrics.RecordSessionCompleted(result.Level, rec.DurationSeconds)
	r.log.Info().
		Str("level", result.Level).
		Float64("accuracy", result.ContentAccuracy).
		Float64("wpm", result.WordsPerMinute).
		Str("method", result.DurationCalculationMethod).
		Str("status", result.VerificationStatus).
		Msg("Session completed")
	return out, nil
}

// outcome must be called with o.mu held.
func (o *Orchestrator) outcome(result models.EvaluationResult) Outcome {
	return Outcome{
		Result:     result,
		Transcript: o.transcriptEvent(o.active),
		Recording:  o.wav,
	}
}

func (o *Orchestrator) score(r *run, rec *capture.Recording, encoded []byte, target string) models.EvaluationResult {
	text := r.reconciler.Text()
	words := len(textnorm.Words(text))

	in := rate.Input{WordCount: words}
	for _, e := range r.reconciler.TimestampLog() {
		in.Timestamps = append(in.Timestamps, e.At)
	}
	if samples, sampleRate, err := wav.Decode(encoded); err == nil {
		in.Samples, in.SampleRate = samples, sampleRate
	} else {
		r.log.Warn().Err(err).Msg("Recording could not be decoded for energy analysis")
	}
	est := o.estimator.Estimate(in)

	sim := o.scorer.Score(text, target)
	quality := energy.CheckQuality(rec.Samples, rec.SampleRate, o.cfg.Quality)
	verdict := o.classifier.Classify(proficiency.Input{
		ContentAccuracy: sim.Final,
		WordsPerMinute:  est.WordsPerMinute,
		Transcript:      text,
		QualityPassed:   quality.Passed,
		QualityReason:   quality.Reason,
	})

	return models.EvaluationResult{
		EventType:                 models.EventEvaluationCompleted,
		SessionID:                 r.id,
		LearnerID:                 o.learnerID,
		Level:                     verdict.Level,
		LevelExplanation:          verdict.Explanation,
		ExpectedSentence:          target,
		RecognizedText:            text,
		ContentAccuracy:           sim.Final,
		WordsPerMinute:            est.WordsPerMinute,
		WordCount:                 est.WordCount,
		SpeechDurationSeconds:     est.DurationSeconds,
		DurationCalculationMethod: est.Method,
		VerificationStatus:        verdict.Status,
		Similarity:                sim,
		AudioQuality:              models.AudioQuality(quality),
		CompletedAt:               o.now().UnixMilli(),
	}
}

// Abort discards the open session without producing a result. It returns
// false when no session was open.
func (o *Orchestrator) Abort() bool {
	o.ops.Lock()
	defer o.ops.Unlock()
	return o.abort("aborted")
}

func (o *Orchestrator) abort(reason string) bool {
	if !o.lifecycle.Abort() {
		return false
	}
	o.mu.Lock()
	r := o.active
	o.recording = nil
	o.mu.Unlock()

	o.release(context.Background(), r, false)
	o.metrics.RecordSessionAborted(reason)
	r.log.Info().Str("reason", reason).Msg("Session aborted")
	return true
}

// Run records one complete attempt: it starts a session on device and stops
// it when the device runs out of frames, the recognizer ends its stream or
// MaxSessionDuration elapses, then finalizes against target. Cancelling ctx
// aborts the session.
func (o *Orchestrator) Run(ctx context.Context, device capture.Device, target string) (models.EvaluationResult, error) {
	out, err := o.RunOutcome(ctx, device, target)
	return out.Result, err
}

// RunOutcome is Run returning the session's transcript and recording with
// the result. All three belong to the same session even when another session
// starts right after.
func (o *Orchestrator) RunOutcome(ctx context.Context, device capture.Device, target string) (Outcome, error) {
	if err := o.Start(ctx, device); err != nil {
		return Outcome{}, err
	}

	o.mu.RLock()
	r := o.active
	o.mu.RUnlock()

	var timeout <-chan time.Time
	if o.cfg.MaxSessionDuration > 0 {
		timer := time.NewTimer(o.cfg.MaxSessionDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-r.captureDone:
	case <-r.streamEnded:
		r.log.Debug().Msg("Recognizer ended stream before capture")
	case <-timeout:
		r.log.Info().Dur("limit", o.cfg.MaxSessionDuration).Msg("Session duration limit reached")
	case <-ctx.Done():
		o.ops.Lock()
		o.abort("cancelled")
		o.ops.Unlock()
		return Outcome{}, ctx.Err()
	}

	if err := o.Stop(ctx); err != nil {
		return Outcome{}, fmt.Errorf("stop session: %w", err)
	}
	return o.finalize(target)
}

// Transcript returns the reconciled transcript of the current or most recent
// session.
func (o *Orchestrator) Transcript() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.active == nil {
		return ""
	}
	return o.active.reconciler.Text()
}

// TranscriptEvent snapshots the reconciled transcript as a publishable event.
func (o *Orchestrator) TranscriptEvent() (models.TranscriptFinal, bool) {
	o.mu.RLock()
	r := o.active
	o.mu.RUnlock()
	if r == nil {
		return models.TranscriptFinal{}, false
	}
	return o.transcriptEvent(r), true
}

func (o *Orchestrator) transcriptEvent(r *run) models.TranscriptFinal {
	if r == nil {
		return models.TranscriptFinal{}
	}
	ev := models.TranscriptFinal{
		EventType:  models.EventTranscriptFinal,
		SessionID:  r.id,
		LearnerID:  o.learnerID,
		Timestamp:  o.now().UnixMilli(),
		Text:       r.reconciler.Text(),
		RuleCounts: r.reconciler.RuleCounts(),
	}
	for _, e := range r.reconciler.TimestampLog() {
		ev.Segments = append(ev.Segments, models.TranscriptPart{
			Text:     e.Text,
			OffsetMs: e.Offset.Milliseconds(),
		})
	}
	return ev
}

// Recording returns the WAV encoding of the most recent stopped session.
func (o *Orchestrator) Recording() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.wav != nil {
		return o.wav, nil
	}
	if o.recording != nil {
		return wav.Encode(o.recording.Samples, o.recording.SampleRate), nil
	}
	return nil, session.ErrNoSession
}
