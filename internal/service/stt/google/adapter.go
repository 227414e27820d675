// Package google provides a Google Cloud Speech-to-Text streaming recognizer.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-practice-evaluator/internal/service/stt"
)

// Config holds the streaming recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns settings for 16kHz LINEAR16 English.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Adapter implements stt.Recognizer and stt.AudioSink using Google Cloud
// Speech-to-Text. Each Adapter serves a single session.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu      sync.Mutex
	stream  speechpb.Speech_StreamingRecognizeClient
	cb      stt.Callback
	started time.Time
	closed  bool
}

// New creates a new Google recognizer.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// NewFactory returns a factory creating one Adapter per session. The stream
// declares the session's sample rate; cfg.SampleRateHz applies only when the
// session does not report one.
func NewFactory(cfg Config) stt.Factory {
	return func(ctx context.Context, format stt.StreamFormat) (stt.Recognizer, error) {
		return New(ctx, forFormat(cfg, format))
	}
}

func forFormat(cfg Config, format stt.StreamFormat) Config {
	if format.SampleRate > 0 {
		cfg.SampleRateHz = format.SampleRate
	}
	return cfg
}

// streamingConfig builds the first request of a recognize stream.
func streamingConfig(cfg Config) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:          parseAudioEncoding(cfg.AudioEncoding),
					SampleRateHertz:   int32(cfg.SampleRateHz),
					AudioChannelCount: 1,
					LanguageCode:      cfg.LanguageCode,
				},
				InterimResults: cfg.InterimResults,
			},
		},
	}
}

// Start opens the stream, sends the streaming config and starts listening.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("open recognize stream: %w", err)
	}

	if err := stream.Send(streamingConfig(a.cfg)); err != nil {
		return fmt.Errorf("send streaming config: %w", err)
	}

	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.started = time.Now()
	a.mu.Unlock()

	go a.listen(stream, cb)
	return nil
}

// SendAudio sends LINEAR16 audio to the stream.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream, closed := a.stream, a.closed
	a.mu.Unlock()
	if stream == nil || closed {
		return nil
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream. Trailing results are still delivered until
// the server ends the stream.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.stream != nil {
		return a.stream.CloseSend()
	}
	return a.client.Close()
}

func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	defer a.client.Close()
	defer cb.OnClosed()

	var received int
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if received == 0 {
				cb.OnError(&stt.RecognitionError{Code: stt.CodeNoSpeech})
			}
			return
		}
		if err != nil {
			cb.OnError(classify(err))
			return
		}
		if e := resp.GetError(); e != nil {
			cb.OnError(&stt.RecognitionError{Code: stt.CodeUnknown, Err: errors.New(e.GetMessage())})
			continue
		}

		for _, f := range fragmentsFrom(resp, a.started, time.Now()) {
			received++
			cb.OnFragment(f)
		}
	}
}

// fragmentsFrom converts a streaming response into fragments. Results that
// carry an end offset are stamped relative to start, others with now.
func fragmentsFrom(resp *speechpb.StreamingRecognizeResponse, start, now time.Time) []stt.Fragment {
	var out []stt.Fragment
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		ts := now
		if r.ResultEndTime != nil && !start.IsZero() {
			ts = start.Add(r.ResultEndTime.AsDuration())
		}
		out = append(out, stt.Fragment{
			Text:       alt.Transcript,
			IsFinal:    r.IsFinal,
			Confidence: float64(alt.Confidence),
			Timestamp:  ts,
		})
	}
	return out
}

// classify maps gRPC stream errors onto recognition error codes.
func classify(err error) *stt.RecognitionError {
	var code stt.Code
	switch status.Code(err) {
	case codes.Canceled:
		code = stt.CodeAborted
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		code = stt.CodeNetwork
	case codes.PermissionDenied, codes.Unauthenticated:
		code = stt.CodeNotAllowed
	default:
		code = stt.CodeUnknown
	}
	return &stt.RecognitionError{Code: code, Err: err}
}
