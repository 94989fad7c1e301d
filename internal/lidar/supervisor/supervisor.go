// Package supervisor runs one sync loop per lidar: acquire a packet, feed
// the engine, report status, until a fatal error, the end of a replay or
// cancellation.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/camsync/internal/lidar/network"
	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
	"github.com/banshee-data/camsync/internal/monitoring"
	"github.com/banshee-data/camsync/internal/status"
	"github.com/banshee-data/camsync/internal/timeutil"
)

// ErrTooManyTimeouts is returned when the source times out more often in a
// row than the configured budget allows.
var ErrTooManyTimeouts = errors.New("too many consecutive poll timeouts")

const (
	DefaultMaxTimeouts    = 50
	DefaultStatusInterval = 10 * time.Second
	DefaultGPSWait        = 10000
)

// Config describes one lidar's loop.
type Config struct {
	Name   string
	Model  parse.Model
	Source network.Source
	Engine *timesync.Engine

	// MaxTimeouts is how many poll timeouts in a row end the loop. Zero
	// means DefaultMaxTimeouts; negative disables the budget.
	MaxTimeouts int
	// GPSWait caps the packets read while waiting for GPS time. Zero means
	// DefaultGPSWait; negative waits forever.
	GPSWait        int
	StatusInterval time.Duration

	// Forwarder, when set, receives a copy of every delivered datagram.
	Forwarder *network.Forwarder
	Events    timesync.EventSink
	Status    *status.Registry
	Clock     timeutil.Clock
	Logf      monitoring.Logf
}

// Supervisor owns a lidar's source and engine. Nothing in it is shared
// with other lidars.
type Supervisor struct {
	cfg   Config
	logf  monitoring.Logf
	warn  monitoring.Logf
	clock timeutil.Clock
	stats *PacketStats

	running    bool
	stopReason string
	lastStatus time.Time
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Name == "" {
		return nil, errors.New("supervisor: lidar name is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("supervisor %s: no packet source", cfg.Name)
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("supervisor %s: no sync engine", cfg.Name)
	}
	if cfg.MaxTimeouts == 0 {
		cfg.MaxTimeouts = DefaultMaxTimeouts
	}
	if cfg.GPSWait == 0 {
		cfg.GPSWait = DefaultGPSWait
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	logf := monitoring.OrDefault(cfg.Logf)
	if cfg.Status != nil {
		cfg.Status.Register(cfg.Name)
	}
	return &Supervisor{
		cfg:   cfg,
		logf:  logf,
		warn:  monitoring.NewLimited(logf, 1, 5).Logf(),
		clock: cfg.Clock,
		stats: NewPacketStats(cfg.Clock),
	}, nil
}

// Name returns the lidar name.
func (s *Supervisor) Name() string {
	return s.cfg.Name
}

// Run drives the loop until ctx is cancelled or the lidar stops. It returns
// nil on cancellation and at the end of a read-once replay.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	src := s.cfg.Source
	if err := src.Init(ctx); err != nil {
		return s.stop(fmt.Errorf("init: %w", err))
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.logf("%s: close source: %v", s.cfg.Name, cerr)
		}
	}()

	s.running = true
	s.lastStatus = s.clock.Now()
	if s.cfg.Status != nil {
		s.cfg.Status.Publish(s.snapshot(Rates{}))
	}
	s.logf("%s: started (%s, %s family)", s.cfg.Name, s.cfg.Model.Name, s.cfg.Model.Family)

	if err := s.waitForGPS(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
			return s.stop(nil)
		case errors.Is(err, network.ErrEndOfStream):
			s.logf("%s: end of replay before GPS time", s.cfg.Name)
			return s.stop(nil)
		}
		return s.stop(err)
	}

	consecutive := 0
	for {
		if ctx.Err() != nil {
			return s.stop(nil)
		}

		pkt, err := src.Next(ctx, true)
		switch network.OutcomeOf(err) {
		case network.OutcomeOK:
			consecutive = 0
			s.stats.AddPacket(len(pkt.Firing))
			s.forward(pkt)
			if perr := s.cfg.Engine.Process(pkt.Firing, pkt.Positioning); perr != nil {
				if errors.Is(perr, timesync.ErrNotReady) {
					return s.stop(perr)
				}
				s.warn("%s: %v", s.cfg.Name, perr)
			}
		case network.OutcomeNoData:
			// Positioning-only progress does not prove the firing stream is alive.
		case network.OutcomePollTimeout:
			consecutive++
			if s.cfg.MaxTimeouts > 0 && consecutive >= s.cfg.MaxTimeouts {
				return s.stop(fmt.Errorf("%w (%d)", ErrTooManyTimeouts, consecutive))
			}
		case network.OutcomeRecoverable:
			s.warn("%s: %v", s.cfg.Name, err)
		case network.OutcomeEndOfStream:
			s.logf("%s: end of replay", s.cfg.Name)
			return s.stop(nil)
		case network.OutcomeFatal:
			if ctx.Err() != nil {
				return s.stop(nil)
			}
			return s.stop(err)
		}

		if s.clock.Since(s.lastStatus) >= s.cfg.StatusInterval {
			s.report()
		}
	}
}

// waitForGPS feeds the engine until it has absolute time, forwarding and
// reporting status as the main loop does. Running out of budget is logged
// and the loop continues without it.
func (s *Supervisor) waitForGPS(ctx context.Context) error {
	if s.cfg.Engine.HasGPSTime() {
		return nil
	}
	s.logf("%s: waiting for GPS time", s.cfg.Name)
	err := network.LoopUntilGPSTime(ctx, s.cfg.Source, s.cfg.Engine, s.cfg.GPSWait, func(pkt network.Packet, err error) {
		if err == nil {
			s.stats.AddPacket(len(pkt.Firing))
			s.forward(pkt)
		}
		if s.clock.Since(s.lastStatus) >= s.cfg.StatusInterval {
			s.report()
		}
	})
	switch {
	case err == nil:
		tb := s.cfg.Engine.TimeBase()
		s.logf("%s: GPS time acquired: %s", s.cfg.Name, tb.Current)
		return nil
	case errors.Is(err, network.ErrNoGPSTime):
		s.logf("%s: %v, continuing without absolute time", s.cfg.Name, err)
		return nil
	default:
		return err
	}
}

func (s *Supervisor) forward(pkt network.Packet) {
	if s.cfg.Forwarder == nil {
		return
	}
	s.cfg.Forwarder.ForwardAsync(pkt.Firing)
	if pkt.Positioning != nil && s.cfg.Model.Family.SeparatePositioningPort() {
		s.cfg.Forwarder.ForwardAsync(pkt.Positioning)
	}
}

// stop records why the loop ended, publishes a final status and journals
// the stop. err is returned unchanged.
func (s *Supervisor) stop(err error) error {
	s.running = false
	reason := "stopped"
	if err != nil {
		reason = err.Error()
	}
	s.stopReason = reason
	s.report()
	s.logf("%s: %s", s.cfg.Name, reason)
	if s.cfg.Events != nil {
		s.cfg.Events.Emit(timesync.Event{
			Time:   s.clock.Now(),
			Lidar:  s.cfg.Name,
			Kind:   timesync.EventLidarStopped,
			Detail: reason,
		})
	}
	return err
}

// snapshot builds a status report. Call it from the goroutine running the
// loop.
func (s *Supervisor) snapshot(r Rates) *status.Snapshot {
	snap := &status.Snapshot{
		Lidar:       s.cfg.Name,
		Model:       s.cfg.Model.Name,
		Updated:     s.clock.Now(),
		Running:     s.running,
		StopReason:  s.stopReason,
		Engine:      s.cfg.Engine.Snapshot(),
		Source:      s.cfg.Source.Stats(),
		Rate:        r.Rate,
		AverageRate: r.Average,
		Total:       uint64(r.Total),
	}
	if f := s.cfg.Forwarder; f != nil {
		snap.Forwarded = f.Sent()
		snap.ForwardDropped = f.Dropped()
	}
	return snap
}

func (s *Supervisor) report() {
	r := s.stats.GetAndReset()
	s.lastStatus = s.clock.Now()
	snap := s.snapshot(r)
	if s.cfg.Status != nil {
		s.cfg.Status.Publish(snap)
	}
	if !s.running {
		return
	}
	var throughput uint64
	if secs := r.Duration.Seconds(); secs > 0 {
		throughput = uint64(float64(r.Bytes) / secs)
	}
	s.logf("%s, %s/s", snap.Summary(), humanize.Bytes(throughput))
}

// Result is how one lidar's loop ended.
type Result struct {
	Name string
	Err  error
}

// RunAll runs every supervisor on its own goroutine and waits for all of
// them. A failing lidar does not stop its siblings. Results are in the
// order of sups.
func RunAll(ctx context.Context, sups []*Supervisor, logf monitoring.Logf) []Result {
	logf = monitoring.OrDefault(logf)
	results := make([]Result, len(sups))
	var wg sync.WaitGroup
	for i, sup := range sups {
		results[i].Name = sup.Name()
		wg.Add(1)
		go func(i int, sup *Supervisor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("panic: %v", r)
					logf("%s: lidar loop panicked: %v", sup.Name(), r)
				}
			}()
			results[i].Err = sup.Run(ctx)
		}(i, sup)
	}
	wg.Wait()
	return results
}
