// Package handle mints the stable item handles used by the watch and
// watchdog registries, and normalizes the short display
// names attached to watch items: a production UUIDv7 generator plus a
// fixed, deterministic generator for tests.
package handle

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces stable handle strings. Implemented by UUIDGenerator
// (production) and FixedGenerator (tests).
type Generator interface {
	Generate() string
}

// UUIDGenerator mints time-sortable UUIDv7 handles: the embedded
// timestamp makes handles useful in logs and traces without any extra
// bookkeeping.
//
// Stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a new UUIDv7, hyphenated.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined handles in order, for
// deterministic tests. Safe for concurrent use via an internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	values []string
	next   int
}

// NewFixedGenerator creates a generator that returns values in order.
func NewFixedGenerator(values ...string) *FixedGenerator {
	return &FixedGenerator{values: values}
}

// Generate returns the next predetermined handle.
//
// Panics if all values have been consumed: a fail-fast signal that a
// test allocated more items than it accounted for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= len(g.values) {
		panic("handle.FixedGenerator: all values exhausted")
	}
	v := g.values[g.next]
	g.next++
	return v
}

// AutoName returns the auto-generated display name used when a watch
// item is added without an explicit name.
func AutoName(seq int) string {
	return fmt.Sprintf("item_%d", seq)
}
