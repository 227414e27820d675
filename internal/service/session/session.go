package session

import (
	"fmt"
	"sync/atomic"
)

// Generator issues process-unique session IDs.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(learnerID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-drill-%d", learnerID, n)
}
