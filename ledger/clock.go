package ledger

import (
	"sync"
	"time"
)

//Clock stamps processed transactions. Its readings are for display only and
//never take part in deciding whether a claim is accepted.
type Clock interface {
	Now() time.Time
}

//WallClock reads the local wall clock
type WallClock struct{}

//NewWallClock creates a clock
func NewWallClock() *WallClock {
	return &WallClock{}
}

//Now returns the current time in UTC
func (c *WallClock) Now() time.Time {
	return time.Now().UTC()
}

//MemClock is a clock that only moves when it is told to
type MemClock struct {
	mu sync.Mutex
	t  time.Time
}

//NewMemClock creates a clock that reads 't'
func NewMemClock(t time.Time) *MemClock {
	return &MemClock{t: t}
}

//Now returns the clock's current time
func (c *MemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

//Advance moves the clock forward by 'd'
func (c *MemClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
