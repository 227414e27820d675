// Package stt defines the contract between the evaluator and speech-to-text
// engines. Engines deliver incremental transcript fragments through a
// Callback; the evaluator never depends on a specific provider.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRecognitionUnsupported is returned by Start when no recognizer is
// available. The session continues with an empty transcript.
var ErrRecognitionUnsupported = errors.New("speech recognition not supported")

// Fragment is one incremental recognizer result. Fragments arrive in order
// but may overlap or repeat earlier text.
type Fragment struct {
	Text    string
	IsFinal bool
	// Confidence is 0 when the engine does not report one.
	Confidence float64
	Timestamp  time.Time
}

// Callback receives recognizer output for a single session.
type Callback interface {
	// OnFragment is called for each interim or final fragment.
	OnFragment(f Fragment)

	// OnError is called when the engine reports a recognition error.
	// Errors are non-fatal to the session.
	OnError(err error)

	// OnClosed is called once when the engine has delivered its last fragment.
	OnClosed()
}

// Recognizer is a streaming speech-to-text engine.
type Recognizer interface {
	// Start begins a recognition session bound to cb.
	Start(ctx context.Context, cb Callback) error

	// Close stops listening. Engines may still deliver trailing fragments
	// until OnClosed.
	Close() error
}

// AudioSink is implemented by recognizers that consume the captured audio
// themselves rather than listening to their own microphone.
type AudioSink interface {
	SendAudio(ctx context.Context, audio []byte) error
}

// StreamFormat describes the audio a session forwards to an AudioSink.
// Audio is always mono LINEAR16.
type StreamFormat struct {
	SampleRate int
}

// Factory creates a fresh Recognizer for each session, configured for the
// session's audio format.
type Factory func(ctx context.Context, format StreamFormat) (Recognizer, error)

// Code classifies recognition errors.
type Code string

// Recognition error codes.
const (
	CodeNoSpeech   Code = "no-speech"
	CodeNetwork    Code = "network"
	CodeNotAllowed Code = "not-allowed"
	CodeAborted    Code = "aborted"
	CodeUnknown    Code = "unknown"
)

// RecognitionError is reported through Callback.OnError.
type RecognitionError struct {
	Code Code
	Err  error
}

func (e *RecognitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("recognition error: %s", e.Code)
	}
	return fmt.Sprintf("recognition error (%s): %v", e.Code, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// CodeOf returns the recognition code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var re *RecognitionError
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeUnknown
}

// Unsupported is the recognizer used when no engine is configured.
type Unsupported struct{}

// Start always fails with ErrRecognitionUnsupported.
func (Unsupported) Start(context.Context, Callback) error {
	return ErrRecognitionUnsupported
}

// Close is a no-op.
func (Unsupported) Close() error {
	return nil
}
