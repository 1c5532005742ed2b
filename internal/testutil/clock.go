package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a FixedClock returns by default.
var Epoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// FixedClock is a deterministic, strictly increasing clock for tests.
//
// Each call to Now returns the previous instant plus Step, starting at Start.
// Rows written through a store using FixedClock therefore get distinct,
// ordered timestamps regardless of how fast the test runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	next  time.Time
	start time.Time
	step  time.Duration
}

// NewFixedClock creates a clock starting at Epoch with a one-second step.
func NewFixedClock() *FixedClock {
	return NewFixedClockAt(Epoch, time.Second)
}

// NewFixedClockAt creates a clock starting at start, advancing by step.
func NewFixedClockAt(start time.Time, step time.Duration) *FixedClock {
	return &FixedClock{next: start, start: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next Now call will return, without advancing.
func (c *FixedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to its start.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
