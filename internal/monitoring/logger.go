// Package monitoring provides the logging hook shared by the sync pipeline.
package monitoring

import (
	"log"
	"sync"

	"github.com/juju/ratelimit"
)

// Logf is the diagnostic logger signature used throughout camsync. Each
// component receives one at construction time instead of reaching for a
// package global.
type Logf func(format string, v ...interface{})

// Default returns log.Printf wrapped as a Logf.
func Default() Logf {
	return log.Printf
}

// Nop returns a Logf that discards everything.
func Nop() Logf {
	return func(string, ...interface{}) {}
}

// OrDefault returns l, or log.Printf when l is nil.
func OrDefault(l Logf) Logf {
	if l == nil {
		return Default()
	}
	return l
}

// Limited suppresses bursts of the same message. Messages are bucketed by
// format string so a flood of size-mismatch warnings does not starve the
// occasional time-jump report.
type Limited struct {
	logf     Logf
	rate     float64
	capacity int64
	clock    ratelimit.Clock

	mu         sync.Mutex
	buckets    map[string]*ratelimit.Bucket
	suppressed map[string]int
}

// NewLimited returns a rate-limited wrapper around logf that allows perSecond
// messages of each format with bursts up to burst.
func NewLimited(logf Logf, perSecond float64, burst int64) *Limited {
	return NewLimitedWithClock(logf, perSecond, burst, nil)
}

// NewLimitedWithClock is NewLimited with an injectable clock for tests.
func NewLimitedWithClock(logf Logf, perSecond float64, burst int64, clock ratelimit.Clock) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		logf:       OrDefault(logf),
		rate:       perSecond,
		capacity:   burst,
		clock:      clock,
		buckets:    make(map[string]*ratelimit.Bucket),
		suppressed: make(map[string]int),
	}
}

// Printf logs the message if the bucket for format still has a token. When a
// message gets through after a suppressed run, the number of dropped copies
// is appended.
func (l *Limited) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	b, ok := l.buckets[format]
	if !ok {
		if l.clock != nil {
			b = ratelimit.NewBucketWithRateAndClock(l.rate, l.capacity, l.clock)
		} else {
			b = ratelimit.NewBucketWithRate(l.rate, l.capacity)
		}
		l.buckets[format] = b
	}
	if b.TakeAvailable(1) == 0 {
		l.suppressed[format]++
		l.mu.Unlock()
		return
	}
	dropped := l.suppressed[format]
	delete(l.suppressed, format)
	l.mu.Unlock()

	if dropped > 0 {
		l.logf(format+" (%d similar suppressed)", append(v, dropped)...)
		return
	}
	l.logf(format, v...)
}

// Logf returns Printf as a Logf.
func (l *Limited) Logf() Logf {
	return l.Printf
}
