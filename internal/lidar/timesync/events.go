package timesync

import "time"

// EventKind names a notable change in a lidar's sync state.
type EventKind string

const (
	EventBaseAdopted       EventKind = "base_adopted"
	EventTimeJump          EventKind = "time_jump"
	EventRollover          EventKind = "rollover"
	EventTriggerProgrammed EventKind = "trigger_programmed"
	EventLidarStopped      EventKind = "lidar_stopped"
)

// Event is one journaled state change.
type Event struct {
	Time   time.Time
	Lidar  string
	Kind   EventKind
	Camera string

	BaseEpoch int64
	PrevEpoch int64

	Delay    int64
	Exposure int64
	Offset   int64

	Detail string
}

// EventSink receives events. Emit is called on the lidar goroutine and must
// not block.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ev Event) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(Event) {}
