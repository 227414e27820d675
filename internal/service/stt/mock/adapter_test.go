package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"speech-practice-evaluator/internal/service/stt"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu        sync.Mutex
	fragments []stt.Fragment
	errors    []error
	closed    int
}

func (c *testCallback) OnFragment(f stt.Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = append(c.fragments, f)
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) OnClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

func (c *testCallback) texts(final bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.fragments {
		if f.IsFinal == final {
			out = append(out, f.Text)
		}
	}
	return out
}

func sendFrames(t *testing.T, a *Adapter, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := a.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestAdapter_EmitsOneEventPerFrame(t *testing.T) {
	a := New(DefaultScript[:1])
	cb := &testCallback{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sendFrames(t, a, 2)
	if got := cb.texts(false); len(got) != 2 || got[1] != "the quick brown" {
		t.Errorf("unexpected interim fragments %v", got)
	}
	if got := cb.texts(true); len(got) != 0 {
		t.Errorf("expected no finals yet, got %v", got)
	}

	sendFrames(t, a, 10)
	finals := cb.texts(true)
	if len(finals) != 2 {
		t.Fatalf("expected 2 finals, got %v", finals)
	}
	if finals[1] != "brown fox jumps over the lazy dog" {
		t.Errorf("unexpected second final %q", finals[1])
	}
}

func TestAdapter_FramesPerEvent(t *testing.T) {
	a := New(DefaultScript[:1], WithFramesPerEvent(3))
	cb := &testCallback{}
	a.Start(context.Background(), cb)

	sendFrames(t, a, 5)
	if got := cb.texts(false); len(got) != 1 {
		t.Errorf("expected 1 interim after 5 frames, got %v", got)
	}
}

func TestAdapter_CloseFlushesFinals(t *testing.T) {
	a := New(DefaultScript[:1])
	cb := &testCallback{}
	a.Start(context.Background(), cb)

	sendFrames(t, a, 1)
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cb.texts(true); len(got) != 2 {
		t.Errorf("expected both finals flushed on close, got %v", got)
	}
	if got := cb.texts(false); len(got) != 1 {
		t.Errorf("expected pending interims to be dropped, got %v", got)
	}
	if cb.closed != 1 {
		t.Errorf("expected OnClosed once, got %d", cb.closed)
	}
}

func TestAdapter_Close_Idempotent(t *testing.T) {
	a := New(DefaultScript[:1])
	cb := &testCallback{}
	a.Start(context.Background(), cb)

	a.Close()
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if cb.closed != 1 {
		t.Errorf("expected OnClosed once, got %d", cb.closed)
	}
}

func TestAdapter_SendAudio_AfterClose(t *testing.T) {
	a := New(DefaultScript[:1])
	cb := &testCallback{}
	a.Start(context.Background(), cb)
	a.Close()
	before := len(cb.texts(true))

	sendFrames(t, a, 3)
	if got := len(cb.texts(true)); got != before {
		t.Errorf("expected no fragments after close, got %d more", got-before)
	}
}

func TestAdapter_NoCallbackSet(t *testing.T) {
	a := New(DefaultScript)

	// Should not panic
	sendFrames(t, a, 3)
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_FragmentInterval(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := New(DefaultScript[:1],
		WithClock(func() time.Time { return start }),
		WithFragmentInterval(500*time.Millisecond),
	)
	cb := &testCallback{}
	a.Start(context.Background(), cb)
	sendFrames(t, a, 4)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	for i, f := range cb.fragments {
		want := start.Add(time.Duration(i+1) * 500 * time.Millisecond)
		if !f.Timestamp.Equal(want) {
			t.Errorf("fragment %d at %v, want %v", i, f.Timestamp, want)
		}
	}
}

func TestSay(t *testing.T) {
	script := Say("the cat sat on the mat", 0.9)
	if len(script) != 1 {
		t.Fatalf("expected one utterance, got %d", len(script))
	}
	u := script[0]
	if len(u.Partials) != 5 {
		t.Errorf("expected 5 partials, got %v", u.Partials)
	}
	if len(u.Finals) != 2 || u.Finals[0] != "the cat sat on" || u.Finals[1] != "sat on the mat" {
		t.Errorf("unexpected finals %v", u.Finals)
	}

	short := Say("hello there", 0.9)
	if len(short[0].Finals) != 1 || short[0].Finals[0] != "hello there" {
		t.Errorf("unexpected finals for short sentence %v", short[0].Finals)
	}

	if Say("   ", 0.9) != nil {
		t.Error("expected nil script for blank sentence")
	}
}

func TestNewFactory_CyclesThroughScript(t *testing.T) {
	factory := NewFactory(DefaultScript)

	first, err := factory(context.Background(), stt.StreamFormat{SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := factory(context.Background(), stt.StreamFormat{SampleRate: 16000})

	a1, a2 := first.(*Adapter), second.(*Adapter)
	if a1.events[0].text == a2.events[0].text {
		t.Errorf("expected different utterances, both start with %q", a1.events[0].text)
	}

	for range len(DefaultScript) - 2 {
		factory(context.Background(), stt.StreamFormat{SampleRate: 16000})
	}
	again, _ := factory(context.Background(), stt.StreamFormat{SampleRate: 16000})
	if again.(*Adapter).events[0].text != a1.events[0].text {
		t.Error("expected factory to cycle back to the first utterance")
	}
}

func TestDefaultScript(t *testing.T) {
	for i, u := range DefaultScript {
		if len(u.Finals) == 0 {
			t.Errorf("utterance %d has no finals", i)
		}
		if u.Confidence <= 0 || u.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, u.Confidence)
		}
	}
}
