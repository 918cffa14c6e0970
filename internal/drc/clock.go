package drc

import (
	"sync/atomic"
	"time"
)

// Clock stamps check dates. A stored good date is compared against cell
// revisions, so the clock must use the same scale as Cell.Revision.
type Clock interface {
	Now() int64
}

// LogicalClock is a monotonic counter. Tests use it so dates are
// reproducible.
//
// Thread-safety: LogicalClock is safe for concurrent use.
type LogicalClock struct {
	seq atomic.Int64
}

// NewLogicalClock creates a clock whose first Now is 1.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// NewLogicalClockAt creates a clock resuming after start.
func NewLogicalClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Now returns the next value.
func (c *LogicalClock) Now() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}

// WallClock reads the system time in Unix nanoseconds, the scale used for
// revisions of loaded layouts.
type WallClock struct{}

// Now returns the current time.
func (WallClock) Now() int64 {
	return time.Now().UnixNano()
}
