package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out predictable identifiers: "<prefix>-0001",
// "<prefix>-0002" and so on.
//
// This enables golden comparisons of audit rows whose ids would otherwise
// be random.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs returns a generator. An empty prefix becomes "test".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next identifier.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
