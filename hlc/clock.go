package hlc

import (
	"sync"
	"time"
)

// Clock is a hybrid logical clock at millisecond resolution.
// It stamps log entries that arrive without a timestamp so that stamps issued
// by one node never go backwards, even when the wall clock does. The logical
// component is folded into the millisecond: a stalled wall clock advances the
// last stamp by one.
type Clock struct {
	wallMS   int64
	nowMilli func() int64
	mu       sync.Mutex
}

// NewClock creates a new HLC instance
func NewClock() *Clock {
	return &Clock{
		nowMilli: func() int64 { return time.Now().UnixMilli() },
	}
}

// Observe folds an externally supplied unix-millisecond stamp into the clock
func (c *Clock) Observe(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ms > c.wallMS {
		c.wallMS = ms
	}
}

// StampMillis returns a unix-millisecond stamp strictly greater than every
// stamp returned or observed before.
func (c *Clock) StampMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := c.nowMilli()
	if physical > c.wallMS {
		c.wallMS = physical
	} else {
		c.wallMS++
	}
	return c.wallMS
}
