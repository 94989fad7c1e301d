package timesync

import (
	"errors"

	"github.com/banshee-data/camsync/internal/lidar/parse"
)

// decodeGPRMC applies the NMEA sentence in a Velodyne positioning packet.
// A void fix marks the receiver as not connected and leaves the calendar
// untouched.
func (e *Engine) decodeGPRMC(pos []byte) bool {
	rmc, err := parse.ParseGPRMC(pos)
	switch {
	case errors.Is(err, parse.ErrGPSNotConnected):
		if e.tb.GPSStatus != GPSNotConnected {
			e.logf("%s: GPS not connected", e.cfg.Lidar)
		}
		e.tb.GPSStatus = GPSNotConnected
		return true
	case err != nil:
		e.rejectField("%v", err)
		return false
	}
	e.tb.GPSStatus = GPSOk

	ok := true
	c := &e.tb.Current
	if rmc.TimeValid {
		c.Hour, c.Minute, c.Second = rmc.Hour, rmc.Minute, rmc.Second
	} else {
		e.rejectField("GPRMC time %02d:%02d:%02d out of range", rmc.Hour, rmc.Minute, rmc.Second)
		ok = false
	}
	if rmc.DateValid {
		c.Year, c.Month, c.Day = rmc.Year, rmc.Month, rmc.Day
	} else {
		e.rejectField("GPRMC date %d-%d-%d out of range", rmc.Year, rmc.Month, rmc.Day)
		ok = false
	}
	return ok
}
