package camera

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/camsync/internal/monitoring"
)

const driftWindowSize = 128

// Config is the static description of one camera.
type Config struct {
	Name     string
	Device   string
	AngleDeg int     // mounting angle relative to lidar zero, 0..359
	FPS      float64 // trigger rate
	Height   int     // image rows, used for readout delay
	Enabled  bool
}

// Validate checks the static camera description.
func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("camera %q: device is required", c.Name)
	}
	if c.AngleDeg < 0 || c.AngleDeg > 359 {
		return fmt.Errorf("camera %q: angle must be within 0..359, got %d", c.Name, c.AngleDeg)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("camera %q: fps must be positive, got %g", c.Name, c.FPS)
	}
	if c.Height < 0 {
		return fmt.Errorf("camera %q: height must be non-negative, got %d", c.Name, c.Height)
	}
	return nil
}

// State is the mutable trigger bookkeeping for one camera. It is owned by a
// single lidar goroutine.
type State struct {
	Config

	// Interval is the frame interval in microseconds.
	Interval     int64
	Capability   Capability
	ReadoutDelay int64

	// Last programmed values, used for hysteresis.
	Programmed   bool
	LastOffset   int64
	LastExposure int64
	LastDelay    int64
	Reprograms   uint64

	drift      [driftWindowSize]float64
	driftCount int
}

// NewState queries the camera's sensor timing once and derives its readout
// delay, falling back to DefaultCapability if the query fails or returns
// unusable values.
func NewState(cfg Config, q CapabilityQuerier, logf monitoring.Logf) *State {
	logf = monitoring.OrDefault(logf)

	capability := DefaultCapability
	if q != nil {
		c, err := q.QueryCapability(cfg.Device)
		switch {
		case err != nil:
			logf("camera %s: capability query failed, using defaults: %v", cfg.Name, err)
		case c.Validate() != nil:
			logf("camera %s: %v, using defaults", cfg.Name, c.Validate())
		default:
			capability = c
		}
	}

	s := &State{
		Config:     cfg,
		Capability: capability,
	}
	if cfg.FPS > 0 {
		s.Interval = int64(1e6/cfg.FPS + 0.5)
	}
	s.ReadoutDelay = ReadoutDelay(capability, cfg.Height)
	return s
}

// MarkProgrammed records a successful trigger write.
func (s *State) MarkProgrammed(offset, exposure, delay int64) {
	s.Programmed = true
	s.LastOffset = offset
	s.LastExposure = exposure
	s.LastDelay = delay
	s.Reprograms++
}

// RecordDrift adds one lidar-to-camera offset error sample, in µs.
func (s *State) RecordDrift(us int64) {
	s.drift[s.driftCount%driftWindowSize] = float64(us)
	s.driftCount++
}

// DriftStats returns the mean and standard deviation of the most recent
// drift samples, and how many samples they cover.
func (s *State) DriftStats() (mean, stddev float64, n int) {
	n = s.driftCount
	if n > driftWindowSize {
		n = driftWindowSize
	}
	if n == 0 {
		return 0, 0, 0
	}
	if n == 1 {
		return s.drift[0], 0, 1
	}
	mean, stddev = stat.MeanStdDev(s.drift[:n], nil)
	return mean, stddev, n
}

// Snapshot is a copy of a camera's trigger bookkeeping for status reports.
type Snapshot struct {
	Name         string  `json:"name"`
	Device       string  `json:"device"`
	AngleDeg     int     `json:"angle_deg"`
	Enabled      bool    `json:"enabled"`
	Programmed   bool    `json:"programmed"`
	ReadoutDelay int64   `json:"readout_delay_us"`
	LastDelay    int64   `json:"last_delay_us"`
	LastExposure int64   `json:"last_exposure_us"`
	LastOffset   int64   `json:"last_offset_us"`
	Reprograms   uint64  `json:"reprograms"`
	DriftMean    float64 `json:"drift_mean_us"`
	DriftStdDev  float64 `json:"drift_stddev_us"`
	DriftSamples int     `json:"drift_samples"`
}

// Snapshot copies the camera's state.
func (s *State) Snapshot() Snapshot {
	mean, sd, n := s.DriftStats()
	return Snapshot{
		Name:         s.Name,
		Device:       s.Device,
		AngleDeg:     s.AngleDeg,
		Enabled:      s.Enabled,
		Programmed:   s.Programmed,
		ReadoutDelay: s.ReadoutDelay,
		LastDelay:    s.LastDelay,
		LastExposure: s.LastExposure,
		LastOffset:   s.LastOffset,
		Reprograms:   s.Reprograms,
		DriftMean:    mean,
		DriftStdDev:  sd,
		DriftSamples: n,
	}
}
