package supervisor

import (
	"sync"
	"time"

	"github.com/banshee-data/camsync/internal/timeutil"
)

// PacketStats counts delivered firing packets and reports the rate since
// the last reset and since the lidar started.
type PacketStats struct {
	mu          sync.Mutex
	clock       timeutil.Clock
	packetCount int64
	byteCount   int64
	total       int64
	started     time.Time
	lastReset   time.Time
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats(clock timeutil.Clock) *PacketStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &PacketStats{
		clock:     clock,
		started:   now,
		lastReset: now,
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.total++
	ps.byteCount += int64(bytes)
}

// Rates is one reading of the meter.
type Rates struct {
	Packets  int64
	Bytes    int64
	Total    int64
	Duration time.Duration
	// Rate is packets per second over Duration; Average is packets per
	// second since the meter was created.
	Rate    float64
	Average float64
}

// GetAndReset returns the rates since the previous call and starts a new
// interval.
func (ps *PacketStats) GetAndReset() Rates {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	r := Rates{
		Packets:  ps.packetCount,
		Bytes:    ps.byteCount,
		Total:    ps.total,
		Duration: now.Sub(ps.lastReset),
	}
	if s := r.Duration.Seconds(); s > 0 {
		r.Rate = float64(r.Packets) / s
	}
	if s := now.Sub(ps.started).Seconds(); s > 0 {
		r.Average = float64(r.Total) / s
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.lastReset = now
	return r
}
