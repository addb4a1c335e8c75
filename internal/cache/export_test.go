package cache

import "time"

// SetClock replaces the clock of a MemoryCache in tests.
func (c *MemoryCache) SetClock(now func() time.Time) { c.now = now }
