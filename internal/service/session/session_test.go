package session

import (
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := NewGenerator()

	if id := gen.Next("learner-1"); id != "learner-1-drill-1" {
		t.Errorf("expected 'learner-1-drill-1', got %s", id)
	}
	if id := gen.Next("learner-1"); id != "learner-1-drill-2" {
		t.Errorf("expected 'learner-1-drill-2', got %s", id)
	}
	if id := gen.Next("learner-2"); id != "learner-2-drill-3" {
		t.Errorf("expected 'learner-2-drill-3', got %s", id)
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := NewGenerator()
	numGoroutines := 100
	perGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*perGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- gen.Next("learner")
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate session ID generated: %s", id)
		}
		seen[id] = true
	}

	if len(seen) != numGoroutines*perGoroutine {
		t.Errorf("expected %d unique session IDs, got %d", numGoroutines*perGoroutine, len(seen))
	}
}
