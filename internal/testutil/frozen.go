package testutil

import (
	"sync"
	"time"
)

// FrozenTime is a wall clock pinned to a fixed instant, advanced manually.
//
// Mock response timestamps and TTL-style fixtures use it so recorded output
// never depends on when the test actually ran.
type FrozenTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozenTime creates a frozen clock at the given instant.
func NewFrozenTime(at time.Time) *FrozenTime {
	return &FrozenTime{now: at}
}

// Now returns the frozen instant.
func (f *FrozenTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the frozen clock forward by d.
func (f *FrozenTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
