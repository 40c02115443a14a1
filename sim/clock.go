package sim

// CooldownThreshold is the number of ticks between automatic shots
const CooldownThreshold = 30

// Clock owns the episode's tick and cooldown counters
type Clock struct {
	Tick      uint64
	Cooldown  int
	Threshold int
}

// NewClock creates a clock that fires every threshold ticks
func NewClock(threshold int) Clock {
	return Clock{Threshold: threshold}
}

// Reset zeroes both counters
func (c *Clock) Reset() {
	c.Tick = 0
	c.Cooldown = 0
}

// Advance starts a new tick
func (c *Clock) Advance() uint64 {
	c.Tick++
	return c.Tick
}

// TickCooldown bumps the cooldown counter and reports whether it wrapped
func (c *Clock) TickCooldown() bool {
	c.Cooldown++
	if c.Cooldown >= c.Threshold {
		c.Cooldown = 0
		return true
	}
	return false
}
