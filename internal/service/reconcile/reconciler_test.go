package reconcile

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-practice-evaluator/internal/service/stt"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func final(text string, at time.Duration) stt.Fragment {
	return stt.Fragment{Text: text, IsFinal: true, Timestamp: t0.Add(at)}
}

func interim(text string) stt.Fragment {
	return stt.Fragment{Text: text}
}

func TestAccept_TailOverlap(t *testing.T) {
	r := New(DefaultConfig(), t0)

	assert.Equal(t, RuleAppend, r.Accept(final("the cat sat", time.Second)).Rule)
	d := r.Accept(final("cat sat on the mat", 2*time.Second))

	assert.Equal(t, RuleTailOverlap, d.Rule)
	assert.Equal(t, []string{"on", "the", "mat"}, d.Appended)
	assert.Equal(t, "the cat sat on the mat", r.Text())
}

func TestAccept_TailOverlapIgnoresCaseAndPunctuation(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("The Cat sat,", time.Second))
	r.Accept(final("cat SAT on the mat.", 2*time.Second))

	assert.Equal(t, "The Cat sat, on the mat.", r.Text())
	assert.Equal(t, 6, r.WordCount())
}

func TestAccept_Debounce(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("hello world", time.Second))
	d := r.Accept(final("Hello, world!", time.Second+200*time.Millisecond))

	assert.Equal(t, RuleDebounce, d.Rule)
	assert.False(t, d.Accepted())
	assert.Equal(t, "hello world", r.Text())
	assert.Len(t, r.TimestampLog(), 1)
}

func TestAccept_DebounceWindowExpires(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("hello world", time.Second))
	d := r.Accept(final("hello world", 2*time.Second))

	assert.NotEqual(t, RuleDebounce, d.Rule)
	assert.Equal(t, "hello world", r.Text())
}

func TestAccept_Containment(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("i like blue cars", time.Second))
	d := r.Accept(final("like blue", 2*time.Second))

	assert.Equal(t, RuleContainment, d.Rule)
	assert.Empty(t, d.Appended)
	assert.Equal(t, "i like blue cars", r.Text())
	assert.Len(t, r.TimestampLog(), 1)
}

func TestAccept_InteriorOverlap(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("the quick brown fox jumps over", time.Second))
	d := r.Accept(final("quick brown fox and the dog", 2*time.Second))

	assert.Equal(t, RuleInteriorOverlap, d.Rule)
	assert.Equal(t, []string{"and", "the", "dog"}, d.Appended)
	assert.Equal(t, "the quick brown fox jumps over and the dog", r.Text())
}

func TestAccept_ShortInteriorRunAppendsAll(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("the quick brown fox jumps", time.Second))
	d := r.Accept(final("brown fox sleeps", 2*time.Second))

	assert.Equal(t, RuleAppend, d.Rule)
	assert.Equal(t, "the quick brown fox jumps brown fox sleeps", r.Text())
}

func TestAccept_InterimSeedsUntilFirstFinal(t *testing.T) {
	r := New(DefaultConfig(), t0)

	assert.Equal(t, RuleInterim, r.Accept(interim("the cat")).Rule)
	r.Accept(interim("the cat sat"))
	assert.Equal(t, "the cat sat", r.Text())

	r.Accept(final("a dog ran", time.Second))
	assert.Equal(t, "a dog ran", r.Text())

	r.Accept(interim("a dog ran fast"))
	assert.Equal(t, "a dog ran", r.Text())
}

func TestAccept_EmptyFragmentsIgnored(t *testing.T) {
	r := New(DefaultConfig(), t0)

	for _, text := range []string{"", "   ", "...", " - "} {
		assert.Equal(t, RuleEmpty, r.Accept(final(text, time.Second)).Rule)
	}
	assert.Empty(t, r.Text())
	assert.Empty(t, r.TimestampLog())
}

func TestTimestampLog(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("the cat sat", 1500*time.Millisecond))
	r.Accept(final("cat sat on the mat", 3*time.Second))

	log := r.TimestampLog()
	require.Len(t, log, 2)
	assert.Equal(t, "cat sat on the mat", log[1].Text)
	assert.Equal(t, 1500*time.Millisecond, log[0].Offset)
	assert.Equal(t, t0.Add(3*time.Second), log[1].At)
}

func TestAccept_RepeatedFinalsDoNotExtendLog(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(final("the cat sat", 0))
	tail := r.Accept(final("cat sat", 5*time.Second))
	interior := r.Accept(final("dog ran the cat sat", 9*time.Second))

	assert.Equal(t, RuleTailOverlap, tail.Rule)
	assert.Empty(t, tail.Appended)
	assert.False(t, tail.Accepted())
	assert.Equal(t, RuleInteriorOverlap, interior.Rule)
	assert.Empty(t, interior.Appended)
	assert.False(t, interior.Accepted())

	assert.Equal(t, "the cat sat", r.Text())
	log := r.TimestampLog()
	require.Len(t, log, 1)
	assert.Equal(t, time.Duration(0), log[0].Offset)
}

func TestTimestampLog_ZeroTimestampUsesClock(t *testing.T) {
	r := New(DefaultConfig(), t0)
	r.now = func() time.Time { return t0.Add(4 * time.Second) }

	r.Accept(stt.Fragment{Text: "hello", IsFinal: true})

	log := r.TimestampLog()
	require.Len(t, log, 1)
	assert.Equal(t, 4*time.Second, log[0].Offset)
}

func TestRuleCounts(t *testing.T) {
	r := New(DefaultConfig(), t0)

	r.Accept(interim("the"))
	r.Accept(final("the cat sat", time.Second))
	r.Accept(final("the cat sat", time.Second+100*time.Millisecond))
	r.Accept(final("cat sat on the mat", 2*time.Second))

	assert.Equal(t, map[string]int{
		"interim":      1,
		"append":       1,
		"debounce":     1,
		"tail_overlap": 1,
	}, r.RuleCounts())
}

func TestAccept_Concurrent(t *testing.T) {
	r := New(DefaultConfig(), t0)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Accept(final("word", time.Duration(i)*time.Second))
			r.Text()
		}()
	}
	wg.Wait()

	assert.NotEmpty(t, r.Text())
}

func TestTailOverlap(t *testing.T) {
	tests := []struct {
		name       string
		transcript []string
		fragment   []string
		want       int
	}{
		{"two words", []string{"the", "cat", "sat"}, []string{"cat", "sat", "on"}, 2},
		{"largest wins", []string{"a", "a", "a"}, []string{"a", "a", "b"}, 2},
		{"none", []string{"the", "cat"}, []string{"dog"}, 0},
		{"empty transcript", nil, []string{"dog"}, 0},
		{"fragment is tail", []string{"x", "y", "z"}, []string{"y", "z"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TailOverlap(tt.transcript, tt.fragment))
		})
	}
}

func TestContains(t *testing.T) {
	transcript := []string{"i", "like", "blue", "cars"}

	assert.True(t, Contains(transcript, []string{"like", "blue"}))
	assert.True(t, Contains(transcript, []string{"cars"}))
	assert.False(t, Contains(transcript, []string{"ike", "blue"}))
	assert.False(t, Contains(transcript, []string{"blue", "like"}))
}

func TestInteriorOverlap(t *testing.T) {
	transcript := []string{"a", "b", "c", "d", "e", "f"}

	assert.Equal(t, 4, InteriorOverlap(transcript, []string{"x", "c", "d", "e", "y"}, 3))
	assert.Equal(t, 0, InteriorOverlap(transcript, []string{"c", "d", "y"}, 3))
	assert.Equal(t, 5, InteriorOverlap(transcript, []string{"b", "c", "d", "e", "f", "g"}, 3))
	// Equal-length runs: the later one wins.
	assert.Equal(t, 7, InteriorOverlap(transcript, []string{"a", "b", "c", "x", "d", "e", "f", "z"}, 3))
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "interior_overlap", RuleInteriorOverlap.String())
	assert.Equal(t, "unknown", Rule(99).String())
}
