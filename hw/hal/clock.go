package hal

import (
	"sync/atomic"
	"time"
)

// SystemClock is the wall clock.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Duration    { return time.Since(c.start) }
func (c *SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// VirtualClock is a clock whose time only advances when someone sleeps on it.
// Simulations driven by a VirtualClock run as fast as the host allows and are
// fully deterministic.
type VirtualClock struct {
	now atomic.Int64
}

func (c *VirtualClock) Now() time.Duration {
	return time.Duration(c.now.Load())
}

func (c *VirtualClock) Sleep(d time.Duration) {
	if d > 0 {
		c.now.Add(int64(d))
	}
}

// Advance is Sleep, for the readability of callers that aren't sleeping.
func (c *VirtualClock) Advance(d time.Duration) { c.Sleep(d) }
