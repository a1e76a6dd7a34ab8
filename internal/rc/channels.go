package rc

import (
	"sync"
	"time"
)

// Channels stores the latest receiver frame. Receiver parsers write it and
// the control loop reads it, possibly from different goroutines.
type Channels struct {
	mu         sync.Mutex
	values     [NumChannels]uint16
	lastPacket time.Time

	// ready is signalled without blocking on every update.
	ready chan struct{}
}

// NewChannels returns a store with every channel centred on mid.
func NewChannels(mid uint16) *Channels {
	c := &Channels{ready: make(chan struct{}, 1)}
	for i := range c.values {
		c.values[i] = mid
	}
	return c
}

// Update replaces the channel values received at t.
func (c *Channels) Update(values [NumChannels]uint16, t time.Time) {
	c.mu.Lock()
	c.values = values
	c.lastPacket = t
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Get returns the channel values and the time they were received.
func (c *Channels) Get() ([NumChannels]uint16, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values, c.lastPacket
}

// Since returns how long ago the last frame arrived. A store that never
// received a frame reports a very large age.
func (c *Channels) Since(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPacket.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(c.lastPacket)
}

// Ready is signalled after an update.
func (c *Channels) Ready() <-chan struct{} { return c.ready }
