package engine

import (
	"sync"
	"time"

	"signwise/core"
)

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() core.Day {
	return core.DayIn(time.Now(), c.Location)
}

// ManualClock is a Clock whose day is set explicitly.
type ManualClock struct {
	mu  sync.Mutex
	day core.Day
}

func NewManualClock(day core.Day) *ManualClock { return &ManualClock{day: day} }

func (c *ManualClock) Today() core.Day {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day
}

// Set moves the clock to day.
func (c *ManualClock) Set(day core.Day) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day = day
}

// Advance moves the clock by n days.
func (c *ManualClock) Advance(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day = c.day.AddDays(n)
}
