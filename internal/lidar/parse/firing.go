package parse

import (
	"encoding/binary"
	"fmt"
)

const (
	velodyneBlocks       = 12
	velodyneBlockSize    = 100
	velodyneTimestampOff = 1200
	velodyneStatusOff    = 1204

	pandarBlocks       = 10
	pandarBlockSize    = 124
	pandarTailOff      = 1240
	pandarTimestampOff = pandarTailOff + 10

	// Azimuth sits after the 2-byte block flag / preamble in both layouts.
	azimuthOff = 2
)

// Firing is a read-only view over one firing datagram. The length is checked
// once in NewFiring; accessors index within bounds from then on.
type Firing struct {
	family Family
	b      []byte
}

// NewFiring wraps b after checking it is exactly one firing packet for family.
func NewFiring(family Family, b []byte) (Firing, error) {
	if family == FamilyUnknown {
		return Firing{}, fmt.Errorf("unknown lidar family")
	}
	if len(b) != family.FiringSize() {
		return Firing{}, fmt.Errorf("invalid %s firing packet size: expected %d, got %d",
			family, family.FiringSize(), len(b))
	}
	return Firing{family: family, b: b}, nil
}

// Family returns the wire family this packet was validated against.
func (p Firing) Family() Family {
	return p.family
}

// Bytes returns the underlying datagram.
func (p Firing) Bytes() []byte {
	return p.b
}

// Blocks is the number of rotation blocks in the packet.
func (p Firing) Blocks() int {
	if p.family == Pandar40 {
		return pandarBlocks
	}
	return velodyneBlocks
}

// Azimuth returns the rotation angle of block i in 0.01° units.
func (p Firing) Azimuth(i int) uint16 {
	size := velodyneBlockSize
	if p.family == Pandar40 {
		size = pandarBlockSize
	}
	off := i*size + azimuthOff
	return binary.LittleEndian.Uint16(p.b[off : off+2])
}

// GPSTimestamp returns the rolling microsecond counter from the trailer.
func (p Firing) GPSTimestamp() uint32 {
	off := velodyneTimestampOff
	if p.family == Pandar40 {
		off = pandarTimestampOff
	}
	return binary.LittleEndian.Uint32(p.b[off : off+4])
}

// Status returns the HDL-64E status type/value pair. Other families carry
// unrelated bytes here and callers should not interpret them.
func (p Firing) Status() (StatusType, byte) {
	if p.family == Pandar40 {
		return 0, 0
	}
	return StatusType(p.b[velodyneStatusOff]), p.b[velodyneStatusOff+1]
}
