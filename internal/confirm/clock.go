package confirm

import (
	"sync"
	"time"
)

// Clock schedules the delay between polls.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// RealClock waits on wall time.
type RealClock struct{}

// After wraps time.After.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// InstantClock fires immediately and records every requested delay.
type InstantClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// After advances the virtual time by d and fires at once.
func (c *InstantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Sleeps returns the delays requested so far.
func (c *InstantClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Elapsed is the total virtual time waited.
func (c *InstantClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}
