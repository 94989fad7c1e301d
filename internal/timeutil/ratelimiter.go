package timeutil

import "time"

// RateLimiter paces a loop to a fixed frequency on a fixed grid of slots.
// Missed slots are skipped rather than replayed, so a stall never produces a
// burst of catch-up iterations and the grid never drifts.
type RateLimiter struct {
	clock    Clock
	interval time.Duration
	minSleep time.Duration
	last     time.Time // most recent slot the caller was released on
}

// NewRateLimiter returns a limiter firing at hz. Remaining waits shorter than
// minSleep are not slept. The schedule is anchored at construction time.
func NewRateLimiter(clock Clock, hz float64, minSleep time.Duration) *RateLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	interval := time.Second
	if hz > 0 {
		interval = time.Duration(float64(time.Second) / hz)
	}
	r := &RateLimiter{
		clock:    clock,
		interval: interval,
		minSleep: minSleep,
	}
	r.Reset()
	return r
}

// Interval returns the time between slots.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Reset re-anchors the schedule so the next slot is one interval from now.
func (r *RateLimiter) Reset() {
	r.last = r.clock.Now()
}

// Sleep blocks until the next slot and reports whether it actually slept.
func (r *RateLimiter) Sleep() bool {
	next := r.last.Add(r.interval)
	now := r.clock.Now()

	if now.After(next) {
		// Behind schedule: jump to the latest slot not after now.
		missed := now.Sub(next) / r.interval
		r.last = next.Add(missed * r.interval)
		return false
	}

	r.last = next
	remaining := next.Sub(now)
	if remaining <= 0 || remaining < r.minSleep {
		return false
	}
	r.clock.Sleep(remaining)
	return true
}
