package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDeviceBusy is returned by Open while the device is held by another session.
var ErrDeviceBusy = errors.New("capture device is already open")

// Device is an exclusive audio source. Open starts frame delivery on the
// returned channel; Close stops delivery, closes the channel and releases the
// device. Close must be idempotent.
type Device interface {
	Open(ctx context.Context) (<-chan Frame, error)
	SampleRate() int
	Close() error
}

// ReplayDevice plays back pre-recorded samples as fixed-size frames. It backs
// uploaded recordings and tests. With a non-zero pace each frame is delivered
// after frameSize/sampleRate of wall time, like a live microphone.
type ReplayDevice struct {
	samples    []float32
	sampleRate int
	frameSize  int
	paced      bool

	mu     sync.Mutex
	open   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// ReplayOption configures a ReplayDevice.
type ReplayOption func(*ReplayDevice)

// WithFrameSize sets the number of samples per frame.
func WithFrameSize(n int) ReplayOption {
	return func(d *ReplayDevice) {
		if n > 0 {
			d.frameSize = n
		}
	}
}

// WithRealtimePacing delivers frames at the rate a live device would.
func WithRealtimePacing() ReplayOption {
	return func(d *ReplayDevice) {
		d.paced = true
	}
}

// NewReplayDevice creates a device that replays samples recorded at sampleRate.
func NewReplayDevice(samples []float32, sampleRate int, opts ...ReplayOption) *ReplayDevice {
	d := &ReplayDevice{
		samples:    samples,
		sampleRate: sampleRate,
		frameSize:  DefaultFrameSize,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SampleRate returns the sample rate of the replayed audio.
func (d *ReplayDevice) SampleRate() int {
	return d.sampleRate
}

// Open starts replaying. The returned channel is closed once every frame has
// been delivered, or earlier when ctx is done or Close is called.
func (d *ReplayDevice) Open(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, ErrDeviceBusy
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Frame)
	done := make(chan struct{})
	d.open = true
	d.cancel = cancel
	d.done = done

	go func() {
		defer close(done)
		defer close(out)

		var interval time.Duration
		if d.paced && d.sampleRate > 0 {
			interval = time.Duration(d.frameSize) * time.Second / time.Duration(d.sampleRate)
		}

		var seq uint64
		for start := 0; start < len(d.samples); start += d.frameSize {
			end := min(start+d.frameSize, len(d.samples))
			frame := Frame{Seq: seq, Samples: d.samples[start:end]}
			seq++

			if interval > 0 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close stops replay and waits for the delivery goroutine to exit.
func (d *ReplayDevice) Close() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil
	}
	cancel, done := d.cancel, d.done
	d.open = false
	d.mu.Unlock()

	cancel()
	<-done
	return nil
}
