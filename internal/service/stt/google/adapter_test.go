package google

import (
	"errors"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"speech-practice-evaluator/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFragmentsFrom(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Second)

	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				Alternatives:  []*speechpb.SpeechRecognitionAlternative{{Transcript: "the quick brown", Confidence: 0.5}},
				IsFinal:       true,
				ResultEndTime: durationpb.New(1500 * time.Millisecond),
			},
			{Alternatives: nil},
			{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "fox"}},
			},
		},
	}

	got := fragmentsFrom(resp, start, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(got))
	}
	if !got[0].IsFinal || got[0].Text != "the quick brown" || got[0].Confidence != 0.5 {
		t.Errorf("unexpected first fragment %+v", got[0])
	}
	if !got[0].Timestamp.Equal(start.Add(1500 * time.Millisecond)) {
		t.Errorf("expected offset timestamp, got %v", got[0].Timestamp)
	}
	if got[1].IsFinal || !got[1].Timestamp.Equal(now) {
		t.Errorf("unexpected interim fragment %+v", got[1])
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code codes.Code
		want stt.Code
	}{
		{codes.Canceled, stt.CodeAborted},
		{codes.Unavailable, stt.CodeNetwork},
		{codes.DeadlineExceeded, stt.CodeNetwork},
		{codes.PermissionDenied, stt.CodeNotAllowed},
		{codes.Unauthenticated, stt.CodeNotAllowed},
		{codes.Internal, stt.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			src := status.Error(tt.code, "boom")
			err := classify(src)
			if err.Code != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.code, err.Code, tt.want)
			}
			if !errors.Is(err, src) {
				t.Error("expected classified error to wrap the gRPC error")
			}
		})
	}
}

func TestStreamingConfig_UsesSessionSampleRate(t *testing.T) {
	tests := []struct {
		name   string
		format stt.StreamFormat
		want   int32
	}{
		{"upload at 44.1kHz", stt.StreamFormat{SampleRate: 44100}, 44100},
		{"upload at 8kHz", stt.StreamFormat{SampleRate: 8000}, 8000},
		{"unknown rate keeps configured", stt.StreamFormat{}, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := streamingConfig(forFormat(DefaultConfig(), tt.format))
			rc := req.GetStreamingConfig().GetConfig()
			if rc.GetSampleRateHertz() != tt.want {
				t.Errorf("expected sample rate %d, got %d", tt.want, rc.GetSampleRateHertz())
			}
			if rc.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
				t.Errorf("expected LINEAR16, got %v", rc.GetEncoding())
			}
			if rc.GetAudioChannelCount() != 1 {
				t.Errorf("expected mono, got %d channels", rc.GetAudioChannelCount())
			}
			if !req.GetStreamingConfig().GetInterimResults() {
				t.Error("expected interim results")
			}
		})
	}
}
