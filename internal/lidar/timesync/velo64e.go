package timesync

import (
	"github.com/banshee-data/camsync/internal/lidar/parse"
)

// decode64E applies one HDL-64E status pair to the calendar. It returns
// false if the value was rejected.
func (e *Engine) decode64E(f parse.Firing) bool {
	typ, val := f.Status()
	v := int(val)
	c := &e.tb.Current

	switch typ {
	case parse.StatusHour:
		if !parse.ValidHour(v) {
			e.rejectField("64E hour %d out of range", v)
			return false
		}
		prev := c.Hour
		if prev != Invalid && v == (prev+23)%24 {
			// An hour one behind the current one is a late packet. Drop the
			// hour entirely and wait for a fresh one.
			c.Hour = Invalid
			e.rejectField("64E stale hour %d after %d, resyncing", v, prev)
			return false
		}
		if prev != Invalid && v < prev {
			// Day rollover. Each date field stays invalid until it is
			// resent, so no date is built from a mix of old and new days.
			c.Year, c.Month, c.Day = Invalid, Invalid, Invalid
		}
		c.Hour = v

	case parse.StatusMinute:
		if !parse.ValidMinute(v) {
			e.rejectField("64E minute %d out of range", v)
			return false
		}
		c.Minute = v

	case parse.StatusSecond:
		if !parse.ValidSecond(v) {
			e.rejectField("64E second %d out of range", v)
			return false
		}
		c.Second = v

	case parse.StatusDay:
		if !parse.ValidDay(v) {
			e.rejectField("64E day %d out of range", v)
			return false
		}
		c.Day = v

	case parse.StatusMonth:
		if !parse.ValidMonth(v) {
			e.rejectField("64E month %d out of range", v)
			return false
		}
		c.Month = v

	case parse.StatusYear:
		y := 2000 + v
		if !parse.ValidYear(y) {
			e.rejectField("64E year %d out of range", v)
			return false
		}
		c.Year = y

	case parse.StatusGPS:
		switch val {
		case parse.GPSStatusValid:
			e.tb.GPSStatus = GPSOk
		case parse.GPSStatusNoFix:
			e.tb.GPSStatus = GPSUnlocked
		default:
			e.tb.GPSStatus = GPSNotConnected
		}
	}
	return true
}
