package timesync

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/camsync/internal/camera"
	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/monitoring"
)

// ErrNotReady is returned by Process when the lidar has no cameras or no
// trigger controller to drive. The caller should stop this lidar.
var ErrNotReady = errors.New("no camera triggers configured")

// Rollover events are only journaled for counters that wrap at least this
// rarely; a per-second counter would flood the journal.
const minJournaledPeriod = 60

// DefaultDegradedHold is how long a rejected positioning field keeps the
// engine Degraded after the last rejection.
const DefaultDegradedHold = 10 * time.Second

// Config configures an Engine.
type Config struct {
	Lidar  string
	Family parse.Family

	// DriftTolerance is how far, in µs, a camera may drift from the lidar
	// before it is reprogrammed.
	DriftTolerance int64
	// BaseOffset shifts every programmed trigger delay, in µs.
	BaseOffset int64

	Cameras []*camera.State
	Trigger camera.TriggerController

	// DegradedHold overrides DefaultDegradedHold when positive.
	DegradedHold time.Duration

	Events EventSink
	Logf   monitoring.Logf
	Now    func() time.Time
}

// Engine is the per-lidar sync state machine. It is not safe for
// concurrent use.
type Engine struct {
	cfg    Config
	logf   monitoring.Logf
	warn   monitoring.Logf
	events EventSink
	now    func() time.Time
	period int64

	tb TimeBase
	// lastReject is when a positioning field was last rejected; zero if
	// never.
	lastReject time.Time

	timeJumps uint64
	rollovers uint64
}

// NewEngine returns an engine with no time base.
func NewEngine(cfg Config) *Engine {
	logf := monitoring.OrDefault(cfg.Logf)
	e := &Engine{
		cfg:    cfg,
		logf:   logf,
		warn:   monitoring.NewLimited(logf, 1, 5).Logf(),
		events: cfg.Events,
		now:    cfg.Now,
		period: cfg.Family.RolloverPeriod(),
		tb:     newTimeBase(),
	}
	if e.events == nil {
		e.events = nopSink{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.cfg.DegradedHold <= 0 {
		e.cfg.DegradedHold = DefaultDegradedHold
	}
	return e
}

// TimeBase returns a copy of the current time recovery state.
func (e *Engine) TimeBase() TimeBase {
	return e.tb
}

// HasGPSTime reports whether an absolute base epoch is established.
func (e *Engine) HasGPSTime() bool {
	return e.tb.HasBase
}

// State reports where the engine is in time acquisition.
func (e *Engine) State() State {
	switch {
	case e.degraded():
		return Degraded
	case e.tb.HasBase:
		return Locked
	case e.tb.Current.Any():
		return AcquiringTime
	default:
		return NoGpsTime
	}
}

// degraded reports whether a positioning field was rejected within the
// hold window. Clean decodes in between do not clear it.
func (e *Engine) degraded() bool {
	return !e.lastReject.IsZero() && e.now().Sub(e.lastReject) < e.cfg.DegradedHold
}

func (e *Engine) emit(ev Event) {
	ev.Time = e.now()
	ev.Lidar = e.cfg.Lidar
	e.events.Emit(ev)
}

// ProcessTimestamp advances the base epoch when the rolling counter wraps.
// A calendar-derived pending base is preferred over blindly adding one
// period.
func (e *Engine) ProcessTimestamp(raw uint32) {
	if e.tb.HasBase && raw < e.tb.LastGPSTimestamp {
		prev := e.tb.BaseEpoch
		if e.tb.HasPending {
			e.tb.BaseEpoch = e.tb.PendingEpoch
			e.tb.HasPending = false
		} else {
			e.tb.BaseEpoch += e.period
			e.tb.RolloverPending = true
		}
		e.rollovers++
		if e.period >= minJournaledPeriod {
			e.emit(Event{Kind: EventRollover, BaseEpoch: e.tb.BaseEpoch, PrevEpoch: prev})
		}
	}
	e.tb.LastGPSTimestamp = raw
}

// baseCandidate returns the epoch of the current calendar truncated to the
// start of its rollover period, if enough fields are valid.
func (e *Engine) baseCandidate() (int64, bool) {
	c := e.tb.Current
	if !c.DateValid() || !parse.ValidHour(c.Hour) {
		return 0, false
	}
	if e.period < 3600 && !c.ClockValid() {
		return 0, false
	}
	epoch := c.Epoch()
	return epoch - epoch%e.period, true
}

// UpdateBaseTime reconciles the calendar with the base epoch. It is called
// whenever a significant calendar field changes.
func (e *Engine) UpdateBaseTime() {
	candidate, ok := e.baseCandidate()
	if !ok {
		return
	}
	base := e.tb.BaseEpoch

	switch {
	case !e.tb.HasBase:
		e.tb.BaseEpoch = candidate
		e.tb.HasBase = true
		e.logf("%s: time base acquired at %s", e.cfg.Lidar, formatEpoch(candidate))
		e.emit(Event{Kind: EventBaseAdopted, BaseEpoch: candidate})

	case e.tb.RolloverPending:
		e.tb.RolloverPending = false
		e.tb.HasPending = false
		if candidate != base {
			e.timeJump(base, candidate, "calendar disagrees with rollover")
		}

	case candidate == base:
		// Already anchored here.

	case candidate == base+e.period:
		e.tb.PendingEpoch = candidate
		e.tb.HasPending = true

	default:
		e.tb.HasPending = false
		e.timeJump(base, candidate, "calendar moved outside the next period")
	}
}

func (e *Engine) timeJump(from, to int64, why string) {
	e.tb.BaseEpoch = to
	e.timeJumps++
	e.logf("%s: time jump %s -> %s (%+ds): %s", e.cfg.Lidar,
		formatEpoch(from), formatEpoch(to), to-from, why)
	e.emit(Event{Kind: EventTimeJump, BaseEpoch: to, PrevEpoch: from, Detail: why})
}

func formatEpoch(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}

// significantChange reports whether a field that moves the base epoch
// differs between the previous and current calendar.
func (e *Engine) significantChange() bool {
	c, p := e.tb.Current, e.tb.Previous
	if c.Year != p.Year || c.Month != p.Month || c.Day != p.Day || c.Hour != p.Hour {
		return true
	}
	if e.period < 3600 {
		return c.Minute != p.Minute || c.Second != p.Second
	}
	return false
}

// ProcessPositioning decodes positioning data into the calendar and GPS
// status, then updates the base epoch if a significant field changed.
// For the HDL-64E, firing supplies the status pair and pos is ignored.
func (e *Engine) ProcessPositioning(firing parse.Firing, pos []byte) {
	var ok bool
	switch e.cfg.Family {
	case parse.Velo64E:
		ok = e.decode64E(firing)
	case parse.Velo32E:
		ok = e.decodeGPRMC(pos)
	case parse.Pandar40:
		ok = e.decodePandar(pos)
	default:
		return
	}
	if !ok {
		e.lastReject = e.now()
	}

	if e.significantChange() {
		e.UpdateBaseTime()
	}
	e.tb.Previous = e.tb.Current
}

func (e *Engine) rejectField(format string, v ...interface{}) {
	e.tb.InvalidFields++
	e.warn("%s: "+format, append([]interface{}{e.cfg.Lidar}, v...)...)
}

// Process handles one firing packet and any positioning data delivered with
// it, then reprograms every enabled camera whose trigger has drifted.
// Trigger primitive failures are logged and skipped.
func (e *Engine) Process(firing, positioning []byte) error {
	f, err := e.update(firing, positioning)
	if err != nil {
		return err
	}
	if len(e.cfg.Cameras) == 0 || e.cfg.Trigger == nil {
		return ErrNotReady
	}
	for _, cam := range e.cfg.Cameras {
		if !cam.Enabled {
			continue
		}
		if _, err := e.SyncTrigger(f, cam); err != nil {
			e.warn("%s: camera %s: %v", e.cfg.Lidar, cam.Name, err)
		}
	}
	return nil
}

// UpdateTime advances time recovery without touching any camera. It is
// used while waiting for GPS time.
func (e *Engine) UpdateTime(firing, positioning []byte) {
	if _, err := e.update(firing, positioning); err != nil {
		e.warn("%s: %v", e.cfg.Lidar, err)
	}
}

func (e *Engine) update(firing, positioning []byte) (parse.Firing, error) {
	f, err := parse.NewFiring(e.cfg.Family, firing)
	if err != nil {
		return parse.Firing{}, err
	}
	e.ProcessTimestamp(f.GPSTimestamp())
	if positioning != nil {
		e.ProcessPositioning(f, positioning)
	}
	return f, nil
}

// LidarOffset finds the first block of f facing cam and returns the time
// within the rotation cycle when the beam crossed the camera.
func (e *Engine) LidarOffset(f parse.Firing, cam *camera.State) (int64, bool) {
	for i := 0; i < f.Blocks(); i++ {
		if off, ok := OffsetAt(int64(f.Azimuth(i)), e.tb.LastGPSTimestamp, cam.AngleDeg); ok {
			return off, true
		}
	}
	return 0, false
}

// SyncTrigger reprograms cam if its trigger has drifted from the lidar by
// more than the drift tolerance. It reports whether a write happened.
func (e *Engine) SyncTrigger(f parse.Firing, cam *camera.State) (bool, error) {
	lidarOffset, ok := e.LidarOffset(f, cam)
	if !ok {
		return false, nil
	}

	_, exposure, err := e.cfg.Trigger.ReadTrigger(cam.Device)
	if err != nil {
		return false, fmt.Errorf("read trigger: %w", err)
	}
	if exposure == 0 {
		return false, nil
	}
	exp := int64(exposure)

	if cam.Programmed {
		camOffset := wrap(cam.LastOffset+(cam.LastExposure-exp)/2, RotationInterval)
		diff := abs64(lidarOffset - camOffset)
		cam.RecordDrift(foldCycle(lidarOffset-camOffset, RotationInterval))
		if diff < e.cfg.DriftTolerance || RotationInterval-diff < e.cfg.DriftTolerance {
			return false, nil
		}
	}

	interval := cam.Interval
	if interval <= 0 {
		interval = RotationInterval
	}
	delay := wrap(e.cfg.BaseOffset+lidarOffset-cam.ReadoutDelay+exp/2, interval)
	if _, err := e.cfg.Trigger.WriteTrigger(cam.Device, uint32(delay)); err != nil {
		return false, fmt.Errorf("write trigger: %w", err)
	}
	cam.MarkProgrammed(lidarOffset, exp, delay)
	e.emit(Event{
		Kind:      EventTriggerProgrammed,
		Camera:    cam.Name,
		BaseEpoch: e.tb.BaseEpoch,
		Delay:     delay,
		Exposure:  exp,
		Offset:    lidarOffset,
	})
	return true, nil
}
