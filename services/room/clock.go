package room

import (
	"sync"
	"time"
)

// Clock drives the refresh loop. Tests swap it for a ManualClock.
type Clock interface {
	Now() time.Time
	// Ticker returns a channel that fires every d and a stop function.
	Ticker(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// ManualClock only ticks when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
	ch  chan time.Time
}

// NewManualClock starts at now.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now, ch: make(chan time.Time)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Ticker(time.Duration) (<-chan time.Time, func()) {
	return c.ch, func() {}
}

// Advance moves time forward and delivers one tick. It blocks until the
// loop picks the tick up.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	c.ch <- now
}
