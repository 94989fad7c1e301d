// Package testutil provides shared test utilities and packet fixtures.
//
// The builders here encode wire layouts independently of the decoders in
// internal/lidar/parse so tests exercise the decoders against a second
// rendition of each format.
package testutil

import (
	"encoding/binary"
	"fmt"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// VelodyneFiring builds a 1206-byte Velodyne firing packet. Missing block
// azimuths repeat the last one given. statusType/statusValue fill the two
// trailer bytes (the HDL-64E status pair).
func VelodyneFiring(azimuths []uint16, gpsTimestamp uint32, statusType, statusValue byte) []byte {
	b := make([]byte, 1206)
	var az uint16
	for i := 0; i < 12; i++ {
		if i < len(azimuths) {
			az = azimuths[i]
		}
		off := i * 100
		flag := uint16(0xEEFF)
		if i%2 == 1 {
			flag = 0xDDFF
		}
		binary.LittleEndian.PutUint16(b[off:], flag)
		binary.LittleEndian.PutUint16(b[off+2:], az)
	}
	binary.LittleEndian.PutUint32(b[1200:], gpsTimestamp)
	b[1204] = statusType
	b[1205] = statusValue
	return b
}

// UniformAzimuths returns n azimuths starting at start, step apart, wrapped
// into [0, 36000).
func UniformAzimuths(start, step, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(((start+i*step)%36000 + 36000) % 36000)
	}
	return out
}

// GPRMC renders a $GPRMC sentence for the given UTC time. status is 'A' or 'V'.
func GPRMC(year, month, day, hour, minute, second int, status byte) string {
	return fmt.Sprintf("$GPRMC,%02d%02d%02d.00,%c,3723.2475,N,12158.3416,W,0.0,0.0,%02d%02d%02d,,,A*00\r\n",
		hour, minute, second, status, day, month, year%100)
}

// VelodynePositioning builds a 512-byte positioning packet carrying sentence
// at offset 206.
func VelodynePositioning(sentence string) []byte {
	b := make([]byte, 512)
	copy(b[206:], sentence)
	return b
}

// PandarFiring builds a 1262-byte Pandar40P firing packet.
func PandarFiring(azimuths []uint16, timestamp uint32) []byte {
	b := make([]byte, 1262)
	var az uint16
	for i := 0; i < 10; i++ {
		if i < len(azimuths) {
			az = azimuths[i]
		}
		off := i * 124
		b[off] = 0xFF
		b[off+1] = 0xEE
		binary.LittleEndian.PutUint16(b[off+2:], az)
	}
	binary.LittleEndian.PutUint32(b[1250:], timestamp)
	return b
}

// PandarGPS builds a 512-byte Pandar40P GPS packet.
func PandarGPS(year, month, day, hour, minute, second int, ppsLocked, gpsLocked bool) []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xEE
	putReversed := func(off, v int) {
		b[off] = byte('0' + v%10)
		b[off+1] = byte('0' + (v/10)%10)
	}
	putReversed(2, year%100)
	putReversed(4, month)
	putReversed(6, day)
	putReversed(8, second)
	putReversed(10, minute)
	putReversed(12, hour)
	if ppsLocked {
		b[506] = 1
	}
	if gpsLocked {
		b[507] = 1
	}
	return b
}
