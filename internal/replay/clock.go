package replay

import (
	"sync"
	"time"
)

// clock is the virtual time source for a replay run. The runner moves
// it forward as it consumes events; engine components built over its
// Now method observe script time instead of wall time.
type clock struct {
	mu sync.RWMutex
	t  time.Time
}

func newClock(start time.Time) *clock {
	return &clock{t: start}
}

func (c *clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}
