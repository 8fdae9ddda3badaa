package engine

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown owns the single countdown of the current phase. Starting a new
// countdown tears down the previous interval before the new one exists, and
// every interval is tagged with a generation so that a tick delivered by a
// torn-down interval is ignored.
type Countdown struct {
	clock clockwork.Clock

	mu        sync.Mutex
	gen       uint64
	remaining int
	stop      chan struct{}
}

func NewCountdown(clock clockwork.Clock) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock}
}

// Start resets the countdown to seconds and calls onTick once per second with
// the generation of this interval. It returns that generation.
func (c *Countdown) Start(seconds int, onTick func(gen uint64)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.gen++
	c.remaining = seconds

	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clock.NewTicker(time.Second)
	gen := c.gen

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				onTick(gen)
			}
		}
	}()
	return gen
}

// Decrement counts one second off the live interval. live is false when gen
// does not belong to the running interval.
func (c *Countdown) Decrement(gen uint64) (remaining int, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil || gen != c.gen {
		return c.remaining, false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	return c.remaining, true
}

// Set overwrites the remaining seconds without restarting the interval.
func (c *Countdown) Set(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
}

// Stop tears down the running interval, if any.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
		c.gen++
	}
}

// Remaining returns the seconds left on the countdown.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Generation returns the generation of the running interval.
func (c *Countdown) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Running reports whether an interval is alive.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// wholeSeconds rounds a phase duration up to whole seconds, never below one.
func wholeSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
