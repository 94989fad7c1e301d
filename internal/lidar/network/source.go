package network

import (
	"context"
	"fmt"

	"github.com/banshee-data/camsync/internal/lidar/parse"
)

// maxDatagram is larger than any supported packet so oversize datagrams are
// seen as a length mismatch rather than silently truncated to fit.
const maxDatagram = 2048

// Packet is one delivery from a Source. The slices alias buffers owned by
// the source and are only valid until the next call to Next.
type Packet struct {
	// Firing is exactly one firing packet for the source's family.
	Firing []byte
	// Positioning is set only when positioning data arrived since the
	// previous delivery. For single-port families it is the firing packet.
	Positioning []byte
}

// Stats counts what a source has seen since Init.
type Stats struct {
	Received     uint64 `json:"received"`
	SizeMismatch uint64 `json:"size_mismatch"`
	Timeout      uint64 `json:"timeout"`
	Error        uint64 `json:"error"`
}

// Source delivers firing packets, with any positioning data that arrived
// alongside them, from a live socket or a capture file.
type Source interface {
	// Init binds sockets or opens the capture. Failures wrap ErrFatal.
	Init(ctx context.Context) error
	// Next returns the next firing packet. With blocking set, a live source
	// waits up to its poll timeout and a replay source may sleep to pace
	// delivery. Errors wrap one of the package sentinels.
	Next(ctx context.Context, blocking bool) (Packet, error)
	// Drain discards anything queued so processing resumes from fresh data.
	Drain()
	Stats() Stats
	Close() error
}

// expectedSize returns the required payload length for a datagram on port,
// or 0 when the port is not one of the source's ports.
func expectedSize(family parse.Family, firingPort, positioningPort, port int) int {
	switch {
	case port == firingPort:
		return family.FiringSize()
	case family.SeparatePositioningPort() && port == positioningPort:
		return family.PositioningSize()
	default:
		return 0
	}
}

func sizeMismatch(kind string, got, want int) error {
	return fmt.Errorf("%w: %s packet size %d, expected %d", ErrRecoverable, kind, got, want)
}
