package parse

import (
	"errors"
	"fmt"
)

// GPRMCOffset is where the NMEA sentence starts inside a Velodyne
// positioning packet.
const GPRMCOffset = 206

var (
	// ErrGPSNotConnected means the receiver reported a void fix ('V').
	ErrGPSNotConnected = errors.New("gps not connected")
	// ErrMalformedNMEA means the sentence could not be located or split.
	ErrMalformedNMEA = errors.New("malformed GPRMC sentence")
)

// RMC is the time-relevant subset of a $GPRMC sentence. TimeValid and
// DateValid are false when the corresponding field was present but out of
// range; the other values are then meaningless.
type RMC struct {
	Hour, Minute, Second int
	Year, Month, Day     int
	TimeValid, DateValid bool
}

// ParseGPRMC extracts UTC time and date from the sentence embedded in a
// Velodyne positioning packet. Digits are decoded directly, so the result does
// not depend on locale. A void fix returns ErrGPSNotConnected.
func ParseGPRMC(pos []byte) (RMC, error) {
	if len(pos) != PositioningSize {
		return RMC{}, fmt.Errorf("invalid positioning packet size: expected %d, got %d", PositioningSize, len(pos))
	}
	sentence := pos[GPRMCOffset:]
	for i, c := range sentence {
		if c == 0 || c == '\r' || c == '\n' {
			sentence = sentence[:i]
			break
		}
	}
	if len(sentence) < 6 || sentence[0] != '$' || string(sentence[3:6]) != "RMC" {
		return RMC{}, ErrMalformedNMEA
	}

	timeField := nmeaField(sentence, 1)
	statusField := nmeaField(sentence, 2)
	dateField := nmeaField(sentence, 9)
	if statusField == nil || dateField == nil {
		return RMC{}, ErrMalformedNMEA
	}
	switch {
	case len(statusField) > 0 && statusField[0] == 'V':
		return RMC{}, ErrGPSNotConnected
	case len(statusField) == 0 || statusField[0] != 'A':
		return RMC{}, fmt.Errorf("%w: unexpected status %q", ErrMalformedNMEA, statusField)
	}

	var r RMC
	if len(timeField) >= 6 {
		r.Hour = digitPair(timeField[0], timeField[1])
		r.Minute = digitPair(timeField[2], timeField[3])
		r.Second = digitPair(timeField[4], timeField[5])
		r.TimeValid = ValidClock(r.Hour, r.Minute, r.Second)
	}
	if len(dateField) >= 6 {
		r.Day = digitPair(dateField[0], dateField[1])
		r.Month = digitPair(dateField[2], dateField[3])
		yy := digitPair(dateField[4], dateField[5])
		if yy >= 0 {
			r.Year = yearBase + yy
		}
		r.DateValid = yy >= 0 && ValidDate(r.Year, r.Month, r.Day)
	}
	return r, nil
}

// nmeaField returns the n-th comma separated field (0 is the sentence ID),
// or nil if the sentence has fewer fields. An empty field is a non-nil empty
// slice.
func nmeaField(sentence []byte, n int) []byte {
	start := 0
	for i := 0; i < n; i++ {
		next := -1
		for j := start; j < len(sentence); j++ {
			if sentence[j] == ',' {
				next = j
				break
			}
		}
		if next < 0 {
			return nil
		}
		start = next + 1
	}
	end := start
	for end < len(sentence) && sentence[end] != ',' && sentence[end] != '*' {
		end++
	}
	return sentence[start:end:end]
}
