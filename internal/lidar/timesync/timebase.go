package timesync

// GPSStatus is the receiver state last reported by positioning data.
type GPSStatus int

const (
	GPSUnknown GPSStatus = iota
	GPSOk
	GPSNotConnected
	GPSUnlocked // time present but the receiver reports no PPS or fix lock
)

func (s GPSStatus) String() string {
	switch s {
	case GPSOk:
		return "ok"
	case GPSNotConnected:
		return "not-connected"
	case GPSUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// State is the engine's position in the time acquisition state machine.
type State int

const (
	// NoGpsTime: no calendar field has been received yet.
	NoGpsTime State = iota
	// AcquiringTime: calendar fields are arriving but no base is set.
	AcquiringTime
	// Locked: an absolute base epoch is established.
	Locked
	// Degraded: a positioning field was rejected within the hold window.
	Degraded
)

func (s State) String() string {
	switch s {
	case NoGpsTime:
		return "no-gps-time"
	case AcquiringTime:
		return "acquiring"
	case Locked:
		return "locked"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// TimeBase is the per-lidar time recovery state.
type TimeBase struct {
	Current  Calendar
	Previous Calendar

	// BaseEpoch is the Unix time of the start of the current rollover
	// period. It only moves forward by one period, or is replaced outright
	// when a time jump is detected.
	BaseEpoch int64
	HasBase   bool

	// PendingEpoch is a calendar-derived base for the next period, adopted
	// at the next counter rollover.
	PendingEpoch int64
	HasPending   bool

	// RolloverPending is set when the counter wrapped before the calendar
	// confirmed the new period.
	RolloverPending bool

	LastGPSTimestamp uint32
	GPSStatus        GPSStatus
	InvalidFields    uint64
}

func newTimeBase() TimeBase {
	return TimeBase{
		Current:  InvalidCalendar(),
		Previous: InvalidCalendar(),
	}
}

// AbsoluteMicros returns the absolute time of the last counter value in
// microseconds since the Unix epoch, or false without a base.
func (tb TimeBase) AbsoluteMicros() (int64, bool) {
	if !tb.HasBase {
		return 0, false
	}
	return tb.BaseEpoch*1e6 + int64(tb.LastGPSTimestamp), true
}

// MarshalText renders the status by name in JSON.
func (s GPSStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
