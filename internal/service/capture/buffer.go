// Package capture accumulates the raw sample frames of a practice session and
// defines the audio device contract the evaluator consumes frames from.
package capture

import (
	"errors"
	"sync"
)

// ErrSessionClosed is returned when a frame is appended after Finalize.
var ErrSessionClosed = errors.New("capture session is closed")

// DefaultFrameSize is the number of samples per frame delivered by devices
// that do not specify their own.
const DefaultFrameSize = 4096

// Frame is a fixed-length block of normalized samples in [-1, 1].
// Seq is the frame's position in the session, starting at 0.
type Frame struct {
	Seq     uint64
	Samples []float32
}

// Recording is the concatenation of every frame of a session.
// It is read-only once produced by Buffer.Finalize.
type Recording struct {
	Samples         []float32
	SampleRate      int
	FrameCount      int
	DurationSeconds float64
}

// Empty reports whether the recording holds no samples.
func (r *Recording) Empty() bool {
	return r == nil || len(r.Samples) == 0
}

// Buffer accumulates frames while a session is open.
// Safe for concurrent use; appends are strictly ordered.
type Buffer struct {
	mu         sync.Mutex
	sampleRate int
	frames     [][]float32
	total      int
	recording  *Recording
}

// NewBuffer creates an open buffer for audio at sampleRate.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{sampleRate: sampleRate}
}

// Append copies samples into the buffer as the next frame.
func (b *Buffer) Append(samples []float32) error {
	frame := make([]float32, len(samples))
	copy(frame, samples)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recording != nil {
		return ErrSessionClosed
	}
	b.frames = append(b.frames, frame)
	b.total += len(frame)
	return nil
}

// FrameCount returns the number of frames appended so far.
func (b *Buffer) FrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Closed reports whether Finalize has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording != nil
}

// Finalize closes the buffer and concatenates all frames into a Recording.
// The duration is total samples / sample rate, which for fixed-size frames is
// frameCount * frameSize / sampleRate. Idempotent.
func (b *Buffer) Finalize() *Recording {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recording != nil {
		return b.recording
	}

	samples := make([]float32, 0, b.total)
	for _, f := range b.frames {
		samples = append(samples, f...)
	}
	rec := &Recording{
		Samples:    samples,
		SampleRate: b.sampleRate,
		FrameCount: len(b.frames),
	}
	if b.sampleRate > 0 {
		rec.DurationSeconds = float64(len(samples)) / float64(b.sampleRate)
	}

	b.recording = rec
	b.frames = nil
	return rec
}
