package parse

import (
	"fmt"
	"strings"
)

/*
Supported lidar families and their wire layouts

Velodyne firing packet (HDL-64E, HDL-32E, VLP-16, VLS-128), 1206 bytes:
├── 12 blocks × 100 bytes, starting at offset 0
│   └── 2-byte block flag (0xEEFF / 0xDDFF) + 2-byte azimuth (LE, 0.01°) + 32 × 3 bytes
├── GPS timestamp (4 bytes, LE, µs past the top of the hour) at offset 1200
└── 2 trailer bytes at 1204: HDL-64E status type/value pair, otherwise return mode + product ID

Velodyne positioning packet (HDL-32E, VLP-16, VLS-128 only), 512 bytes on its
own port. An ASCII $GPRMC sentence starts at offset 206. The HDL-64E has no
positioning port: its calendar time arrives one field at a time through the
status pair in the firing trailer.

Hesai Pandar40P firing packet, 1262 bytes:
├── 10 blocks × 124 bytes: 2-byte preamble (0xFFEE) + 2-byte azimuth (LE) + 40 × 3 bytes
└── 22-byte tail at offset 1240; timestamp (4 bytes, LE, µs within the second) at tail+10

Hesai Pandar40P GPS packet, 512 bytes, see pandar.go.
*/

// Family groups lidar models that share a wire format and time-base policy.
type Family int

const (
	FamilyUnknown Family = iota
	Velo64E              // HDL-64E: single port, status pairs in the firing trailer
	Velo32E              // HDL-32E, VLP-16, VLS-128: separate GPRMC positioning port
	Pandar40             // Hesai Pandar40P: binary GPS packet, per-second counter
)

const (
	VelodyneFiringSize   = 1206
	PandarFiringSize     = 1262
	PositioningSize      = 512
	DefaultFiringPort    = 2368
	DefaultVelodyneGPS   = 8308
	DefaultPandarGPSPort = 10110

	// RotationUnits is a full turn in azimuth units (0.01°).
	RotationUnits = 36000
)

func (f Family) String() string {
	switch f {
	case Velo64E:
		return "velo64e"
	case Velo32E:
		return "velo32e"
	case Pandar40:
		return "pandar40"
	default:
		return "unknown"
	}
}

// FiringSize is the exact length of a firing datagram.
func (f Family) FiringSize() int {
	if f == Pandar40 {
		return PandarFiringSize
	}
	return VelodyneFiringSize
}

// PositioningSize is the exact length of a positioning datagram.
func (f Family) PositioningSize() int {
	return PositioningSize
}

// SeparatePositioningPort reports whether positioning data arrives on its
// own UDP port. For the HDL-64E the firing buffer doubles as positioning data.
func (f Family) SeparatePositioningPort() bool {
	return f == Velo32E || f == Pandar40
}

// DefaultPositioningPort returns the factory GPS port, or 0 when the family
// has none.
func (f Family) DefaultPositioningPort() int {
	switch f {
	case Velo32E:
		return DefaultVelodyneGPS
	case Pandar40:
		return DefaultPandarGPSPort
	default:
		return 0
	}
}

// RolloverPeriod is how often, in seconds, the rolling GPS counter wraps.
// Velodyne counters count microseconds past the hour; Pandar counts
// microseconds within the current second.
func (f Family) RolloverPeriod() int64 {
	if f == Pandar40 {
		return 1
	}
	return 3600
}

// Model describes one supported sensor.
type Model struct {
	Name   string
	Family Family
	// PacketRate is the nominal firing packet rate at 10 Hz, used to pace replay.
	PacketRate float64
}

var models = []Model{
	{Name: "HDL64E", Family: Velo64E, PacketRate: 3472},
	{Name: "HDL32E", Family: Velo32E, PacketRate: 1808},
	{Name: "VLP16", Family: Velo32E, PacketRate: 754},
	{Name: "VLS128", Family: Velo32E, PacketRate: 6250},
	{Name: "Pandar40P", Family: Pandar40, PacketRate: 1800},
}

// LookupModel resolves a model name, ignoring case, dashes and underscores.
func LookupModel(name string) (Model, error) {
	key := normaliseModel(name)
	for _, m := range models {
		if normaliseModel(m.Name) == key {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("unsupported lidar model %q", name)
}

func normaliseModel(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}
