package camera

import (
	"fmt"
	"math"
)

// TriggerMode selects between reading and programming the trigger register.
type TriggerMode int

const (
	TriggerRead  TriggerMode = 0
	TriggerWrite TriggerMode = 1
)

// TriggerController reads and programs a camera's hardware trigger delay.
// Both calls report the exposure time currently configured on the sensor in
// microseconds; zero means the exposure is unknown.
type TriggerController interface {
	ReadTrigger(device string) (delay, exposure uint32, err error)
	WriteTrigger(device string, delay uint32) (exposure uint32, err error)
}

// TriggerFunc adapts a combined get-or-set primitive to TriggerController.
// In TriggerRead mode it fills delay and exposure; in TriggerWrite mode it
// programs *delay and fills exposure.
type TriggerFunc func(device string, mode TriggerMode, delay, exposure *uint32) error

// ReadTrigger implements TriggerController.
func (f TriggerFunc) ReadTrigger(device string) (uint32, uint32, error) {
	var delay, exposure uint32
	if err := f(device, TriggerRead, &delay, &exposure); err != nil {
		return 0, 0, err
	}
	return delay, exposure, nil
}

// WriteTrigger implements TriggerController.
func (f TriggerFunc) WriteTrigger(device string, delay uint32) (uint32, error) {
	var exposure uint32
	if err := f(device, TriggerWrite, &delay, &exposure); err != nil {
		return 0, err
	}
	return exposure, nil
}

// Capability is the sensor timing reported by the camera driver.
type Capability struct {
	FrameLengthLines uint32
	LineLengthPclk   uint32
	PixelClockHz     uint64
}

// DefaultCapability is used when the query fails: a 1080p sensor with a
// 74.25 MHz pixel clock and 2200-clock lines.
var DefaultCapability = Capability{
	FrameLengthLines: 1125,
	LineLengthPclk:   2200,
	PixelClockHz:     74250000,
}

// CapabilityQuerier reports a camera's sensor timing. It is consulted once
// per camera at startup.
type CapabilityQuerier interface {
	QueryCapability(device string) (Capability, error)
}

// Validate rejects capabilities that would produce a zero or undefined line time.
func (c Capability) Validate() error {
	if c.PixelClockHz == 0 || c.LineLengthPclk == 0 {
		return fmt.Errorf("invalid sensor timing: pixel clock %d Hz, line length %d", c.PixelClockHz, c.LineLengthPclk)
	}
	return nil
}

// LineTime returns the time to read one sensor line, in microseconds.
func (c Capability) LineTime() float64 {
	if c.PixelClockHz == 0 {
		return 0
	}
	return float64(c.LineLengthPclk) * 1e6 / float64(c.PixelClockHz)
}

// ReadoutDelay is the time from trigger to the middle row of a frame of the
// given height: line_time × (frame_length_lines + height/2), in µs.
func ReadoutDelay(c Capability, height int) int64 {
	return int64(math.Round(c.LineTime() * float64(int(c.FrameLengthLines)+height/2)))
}
