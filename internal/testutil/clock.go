// Package testutil provides deterministic test doubles shared across
// packages.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe stepping clock for tests. Every call to Now
// advances one step past the epoch, so timestamps are deterministic and
// strictly increasing no matter how many goroutines read it.
type Clock struct {
	mu    sync.Mutex
	epoch time.Time
	step  time.Duration
	ticks int
}

// NewClock creates a Clock. The first call to Now returns epoch+step.
func NewClock(epoch time.Time, step time.Duration) *Clock {
	return &Clock{epoch: epoch, step: step}
}

// Now advances the clock one step and returns the new time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return c.epoch.Add(time.Duration(c.ticks) * c.step)
}

// Current returns the last time Now produced without advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch.Add(time.Duration(c.ticks) * c.step)
}

// Reset rewinds the clock to its epoch so a scenario can replay with
// identical timestamps.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
