package parse

import (
	"encoding/binary"
	"fmt"
)

/*
Pandar40P GPS packet (512 bytes):

	0-1    frame marker 0xFF 0xEE
	2-7    date: year, month, day, two ASCII digits each, ones digit first
	8-13   time: second, minute, hour, same encoding
	14-17  fine time, µs (LE)
	18-94  $GPRMC sentence as received from the receiver
	95-505 reserved
	506    PPS lock flag (1 = locked)
	507    GPS lock flag (1 = locked)
	508-511 reserved
*/
const (
	PandarGPSMarker = 0xFFEE

	pandarDateOff     = 2
	pandarTimeOff     = 8
	pandarFineTimeOff = 14
	pandarPPSLockOff  = 506
	pandarGPSLockOff  = 507
)

// PandarGPS is a decoded Pandar40P GPS packet. Fields that failed to decode
// as digits hold -1.
type PandarGPS struct {
	Marker               uint16
	Year, Month, Day     int
	Hour, Minute, Second int
	FineTime             uint32
	PPSLocked, GPSLocked bool
}

// DateValid reports whether Year/Month/Day form a real date.
func (g PandarGPS) DateValid() bool {
	return ValidDate(g.Year, g.Month, g.Day)
}

// TimeValid reports whether Hour/Minute/Second form a wall-clock time.
func (g PandarGPS) TimeValid() bool {
	return ValidClock(g.Hour, g.Minute, g.Second)
}

// ParsePandarGPS decodes a Pandar40P GPS packet. A wrong frame marker is
// returned as an error alongside the decoded fields so callers can count it.
func ParsePandarGPS(b []byte) (PandarGPS, error) {
	if len(b) != PositioningSize {
		return PandarGPS{}, fmt.Errorf("invalid Pandar GPS packet size: expected %d, got %d", PositioningSize, len(b))
	}
	g := PandarGPS{
		Marker:    binary.BigEndian.Uint16(b[0:2]),
		FineTime:  binary.LittleEndian.Uint32(b[pandarFineTimeOff : pandarFineTimeOff+4]),
		PPSLocked: b[pandarPPSLockOff] == 1,
		GPSLocked: b[pandarGPSLockOff] == 1,
	}

	yy := reversedPair(b[pandarDateOff], b[pandarDateOff+1])
	g.Year = -1
	if yy >= 0 {
		g.Year = yearBase + yy
	}
	g.Month = reversedPair(b[pandarDateOff+2], b[pandarDateOff+3])
	g.Day = reversedPair(b[pandarDateOff+4], b[pandarDateOff+5])
	g.Second = reversedPair(b[pandarTimeOff], b[pandarTimeOff+1])
	g.Minute = reversedPair(b[pandarTimeOff+2], b[pandarTimeOff+3])
	g.Hour = reversedPair(b[pandarTimeOff+4], b[pandarTimeOff+5])

	if g.Marker != PandarGPSMarker {
		return g, fmt.Errorf("unexpected Pandar GPS frame marker 0x%04X", g.Marker)
	}
	return g, nil
}

// reversedPair decodes two ASCII digits stored ones digit first.
func reversedPair(ones, tens byte) int {
	return digitPair(tens, ones)
}
