package evaluation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-practice-evaluator/internal/models"
	"speech-practice-evaluator/internal/observability/metrics"
	"speech-practice-evaluator/internal/service/proficiency"
	"speech-practice-evaluator/internal/service/session"
	"speech-practice-evaluator/internal/service/stt/mock"
	"speech-practice-evaluator/internal/service/wav"
)

type recordingPublisher struct {
	mu          sync.Mutex
	err         error
	keys        []string
	results     []models.EvaluationResult
	transcripts []models.TranscriptFinal
}

func (p *recordingPublisher) PublishResult(ctx context.Context, key string, result models.EvaluationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.results = append(p.results, result)
	return p.err
}

func (p *recordingPublisher) PublishTranscript(ctx context.Context, key string, ev models.TranscriptFinal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, ev)
	return p.err
}

type validatorFunc func(models.EvaluationResult) error

func (f validatorFunc) ValidateResult(r models.EvaluationResult) error { return f(r) }

const drillSentence = "I would like a cup of coffee"

func newTestService(t *testing.T, pub Publisher, v Validator) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	cfg := ServiceConfig{Orchestrator: testConfig(), FrameSize: 1600}
	return NewService(cfg, mock.NewFactory(mock.Say(drillSentence, 0.95)), pub, v, m), m
}

func drillAudio() []byte {
	return wav.Encode(tone(32000, 0.3), 16000)
}

func TestService_Evaluate(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, pub, nil)

	out, err := svc.Evaluate(context.Background(), "learner-a", drillSentence, drillAudio())
	require.NoError(t, err)

	assert.Equal(t, drillSentence, out.Result.RecognizedText)
	assert.InDelta(t, 1.0, out.Result.ContentAccuracy, 1e-9)
	assert.Equal(t, proficiency.StatusVerified, out.Result.VerificationStatus)
	assert.Equal(t, drillSentence, out.Transcript.Text)
	assert.Len(t, out.Recording, len(drillAudio()))

	require.Len(t, pub.results, 1)
	require.Len(t, pub.transcripts, 1)
	assert.Equal(t, []string{"learner-a"}, pub.keys)
	assert.Equal(t, out.Result, pub.results[0])

	found, err := svc.Lookup(out.Result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, out.Result, found.Result)
}

func TestService_EvaluateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, " ", drillSentence, drillAudio())
	assert.ErrorIs(t, err, ErrMissingLearner)

	_, err = svc.Evaluate(ctx, "learner-a", "  ", drillAudio())
	assert.ErrorIs(t, err, ErrEmptyTarget)

	_, err = svc.Evaluate(ctx, "learner-a", drillSentence, []byte("not a wav file"))
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestService_SchemaRejectionSkipsPublish(t *testing.T) {
	pub := &recordingPublisher{}
	reject := validatorFunc(func(models.EvaluationResult) error { return errors.New("missing level") })
	svc, m := newTestService(t, pub, reject)

	out, err := svc.Evaluate(context.Background(), "learner-a", drillSentence, drillAudio())
	require.NoError(t, err)

	assert.NotEmpty(t, out.Result.Level)
	assert.Empty(t, pub.results)
	assert.Empty(t, pub.transcripts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemaRejected))
}

func TestService_PublishFailureStillReturnsResult(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newTestService(t, pub, nil)

	out, err := svc.Evaluate(context.Background(), "learner-a", drillSentence, drillAudio())
	require.NoError(t, err)
	assert.Equal(t, drillSentence, out.Result.RecognizedText)
	assert.Len(t, pub.results, 1)
}

func TestService_LookupUnknown(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	_, err := svc.Lookup("nobody-drill-1")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestService_RecentResultsBounded(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	cfg := ServiceConfig{Orchestrator: testConfig(), RecentResults: 1}
	svc := NewService(cfg, nil, nil, nil, m)
	ctx := context.Background()

	first, err := svc.Evaluate(ctx, "learner-a", drillSentence, drillAudio())
	require.NoError(t, err)
	second, err := svc.Evaluate(ctx, "learner-a", drillSentence, drillAudio())
	require.NoError(t, err)
	assert.NotEqual(t, first.Result.SessionID, second.Result.SessionID)

	_, err = svc.Lookup(first.Result.SessionID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = svc.Lookup(second.Result.SessionID)
	assert.NoError(t, err)
}

func TestService_LearnersAreIndependent(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]models.EvaluationResult, 2)
	errs := make([]error, 2)
	for i, learner := range []string{"learner-a", "learner-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.Evaluate(ctx, learner, drillSentence, drillAudio())
			results[i], errs[i] = out.Result, err
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "learner-a", results[0].LearnerID)
	assert.Equal(t, "learner-b", results[1].LearnerID)
	assert.NotEqual(t, results[0].SessionID, results[1].SessionID)
}

func TestService_SameLearnerOutcomesStayConsistent(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, pub, nil)
	ctx := context.Background()

	const uploads = 8
	var wg sync.WaitGroup
	outs := make([]Outcome, uploads)
	errs := make([]error, uploads)
	for i := range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = svc.Evaluate(ctx, "learner-a", drillSentence, drillAudio())
		}()
	}
	wg.Wait()

	succeeded := 0
	for i := range uploads {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], session.ErrAlreadyRecording)
			continue
		}
		succeeded++
		out := outs[i]
		assert.Equal(t, out.Result.SessionID, out.Transcript.SessionID)
		assert.Equal(t, out.Result.RecognizedText, out.Transcript.Text)
		assert.Len(t, out.Recording, len(drillAudio()))
	}
	require.Positive(t, succeeded)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.results, succeeded)
	var resultIDs, transcriptIDs []string
	for i := range pub.results {
		resultIDs = append(resultIDs, pub.results[i].SessionID)
		transcriptIDs = append(transcriptIDs, pub.transcripts[i].SessionID)
	}
	assert.ElementsMatch(t, resultIDs, transcriptIDs)
}
