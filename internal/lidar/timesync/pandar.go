package timesync

import (
	"github.com/banshee-data/camsync/internal/lidar/parse"
)

// decodePandar applies a Pandar40P GPS packet. Missing PPS or GPS lock is
// reported but the time is still used.
func (e *Engine) decodePandar(pos []byte) bool {
	g, err := parse.ParsePandarGPS(pos)
	if err != nil {
		e.rejectField("%v", err)
		return false
	}

	if g.PPSLocked && g.GPSLocked {
		e.tb.GPSStatus = GPSOk
	} else {
		e.tb.GPSStatus = GPSUnlocked
		e.warn("%s: Pandar GPS not locked (pps=%t gps=%t)", e.cfg.Lidar, g.PPSLocked, g.GPSLocked)
	}

	ok := true
	c := &e.tb.Current
	if g.DateValid() {
		c.Year, c.Month, c.Day = g.Year, g.Month, g.Day
	} else {
		e.rejectField("Pandar date %d-%d-%d out of range", g.Year, g.Month, g.Day)
		ok = false
	}
	if g.TimeValid() {
		c.Hour, c.Minute, c.Second = g.Hour, g.Minute, g.Second
	} else {
		e.rejectField("Pandar time %d:%d:%d out of range", g.Hour, g.Minute, g.Second)
		ok = false
	}
	return ok
}
