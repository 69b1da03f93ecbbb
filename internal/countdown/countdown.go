// Package countdown provides the cancellable timers every workflow is built on:
// a one-second Countdown that expires exactly once, and a one-shot Delay.
//
// Both run on a clockwork.Clock so tests drive them with a FakeClock.
// Callbacks run on timer goroutines; a callback already in flight when
// Cancel or Reset is called may still complete, so owners guard their own
// state as well.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tick is the countdown granularity.
const Tick = time.Second

// Countdown counts whole seconds down to zero.
type Countdown struct {
	clock    clockwork.Clock
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	gen       uint64
	remaining int
	running   bool
	expired   bool
	pending   bool // reached zero, onExpire not delivered yet
	timer     clockwork.Timer
}

// Start begins counting down from seconds. onTick receives every remaining
// value down to 0, then onExpire fires once. Either callback may be nil.
func Start(clock clockwork.Clock, seconds int, onTick func(remaining int), onExpire func()) *Countdown {
	c := &Countdown{clock: clock, onTick: onTick, onExpire: onExpire}
	c.Reset(seconds)
	return c
}

// Reset cancels in-flight ticking and starts a fresh countdown.
// A pending expiration of the previous run is never delivered.
func (c *Countdown) Reset(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.gen++
	c.remaining = seconds
	c.expired = false
	c.pending = false
	c.running = true
	delay := Tick
	if seconds == 0 {
		delay = 0
	}
	c.scheduleLocked(c.gen, delay)
}

// Cancel stops ticking. It is idempotent and a no-op once onExpire has been
// delivered; cancelling from the final onTick suppresses onExpire.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running && !c.pending {
		return
	}
	if c.pending {
		c.pending = false
		c.expired = false
	}
	c.stopLocked()
	c.gen++
}

// Remaining returns the seconds left on the current run.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether the countdown is still ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Expired reports whether the current run reached zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Countdown) stopLocked() {
	c.running = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Countdown) scheduleLocked(gen uint64, delay time.Duration) {
	c.timer = c.clock.AfterFunc(delay, func() { c.step(gen) })
}

func (c *Countdown) step(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	ticked := false
	if c.remaining > 0 {
		c.remaining--
		ticked = true
	}
	remaining := c.remaining
	if remaining == 0 {
		c.running = false
		c.expired = true
		c.pending = true
		c.timer = nil
	}
	c.mu.Unlock()

	if ticked && c.onTick != nil {
		c.onTick(remaining)
	}

	c.mu.Lock()
	if gen != c.gen {
		// cancelled or reset from inside onTick
		c.mu.Unlock()
		return
	}
	if remaining > 0 {
		c.scheduleLocked(gen, Tick)
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
}

// Delay is a one-shot cancellable continuation.
type Delay struct {
	mu        sync.Mutex
	timer     clockwork.Timer
	cancelled bool
	fired     bool
}

// After runs fn once d has elapsed on clock, unless cancelled first.
func After(clock clockwork.Clock, d time.Duration, fn func()) *Delay {
	delay := &Delay{}
	delay.mu.Lock()
	defer delay.mu.Unlock()
	delay.timer = clock.AfterFunc(d, func() {
		delay.mu.Lock()
		if delay.cancelled {
			delay.mu.Unlock()
			return
		}
		delay.fired = true
		delay.mu.Unlock()
		fn()
	})
	return delay
}

// Cancel prevents fn from running. It reports false if fn already started.
// Cancel on a nil Delay is a no-op.
func (d *Delay) Cancel() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired {
		return false
	}
	if !d.cancelled {
		d.cancelled = true
		d.timer.Stop()
	}
	return true
}

// FormatRemaining renders seconds as "1d 5h", "2h 3m" or "4m".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		return "Ended"
	}
	d := seconds / 86400
	h := seconds % 86400 / 3600
	m := seconds % 3600 / 60
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh", d, h)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
