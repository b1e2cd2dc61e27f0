// Package testutil provides deterministic helpers shared by the fixture
// packages and the scenario harness: a logical clock for trace sequencing,
// a fixed run-token generator, and a frozen wall clock.
package testutil

import "sync"

// SeqClock is a thread-safe monotonic logical clock.
//
// Trace events are ordered by sequence number rather than wall time so that
// the same scenario produces byte-identical traces on every run. The clock
// can be reset so a scenario re-run starts from the same sequence values.
type SeqClock struct {
	mu  sync.Mutex
	seq int64
}

// NewSeqClock creates a clock starting at 0. The first Next() returns 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next increments and returns the next sequence number.
func (c *SeqClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *SeqClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the clock to 0. After Reset the next Next() returns 1.
func (c *SeqClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
