package timesync

import (
	"fmt"
	"time"

	"github.com/banshee-data/camsync/internal/lidar/parse"
)

// Invalid marks a calendar field that has not been received or was rejected.
const Invalid = -1

// Calendar is a UTC calendar time assembled from positioning data. Fields
// may be Invalid independently.
type Calendar struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

// InvalidCalendar returns a calendar with every field Invalid.
func InvalidCalendar() Calendar {
	return Calendar{Invalid, Invalid, Invalid, Invalid, Invalid, Invalid}
}

// DateValid reports whether year, month and day form a real date.
func (c Calendar) DateValid() bool {
	return parse.ValidDate(c.Year, c.Month, c.Day)
}

// ClockValid reports whether hour, minute and second are all in range.
func (c Calendar) ClockValid() bool {
	return parse.ValidClock(c.Hour, c.Minute, c.Second)
}

// Any reports whether at least one field is set.
func (c Calendar) Any() bool {
	return c != InvalidCalendar()
}

// Epoch returns the Unix time of c, treating invalid minute and second as
// zero. The caller checks validity first.
func (c Calendar) Epoch() int64 {
	minute, second := c.Minute, c.Second
	if minute < 0 {
		minute = 0
	}
	if second < 0 {
		second = 0
	}
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, minute, second, 0, time.UTC).Unix()
}

func (c Calendar) String() string {
	f := func(v, width int) string {
		if v == Invalid {
			return "??????"[:width]
		}
		return fmt.Sprintf("%0*d", width, v)
	}
	return fmt.Sprintf("%s-%s-%s %s:%s:%s",
		f(c.Year, 4), f(c.Month, 2), f(c.Day, 2), f(c.Hour, 2), f(c.Minute, 2), f(c.Second, 2))
}

// MarshalText renders the calendar as a timestamp with ?? for missing fields.
func (c Calendar) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
