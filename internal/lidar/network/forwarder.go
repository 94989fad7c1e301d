package network

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/camsync/internal/monitoring"
)

// Forwarder re-sends received lidar datagrams to another address so
// downstream consumers can share one sensor without binding its ports.
// Sending happens on its own goroutine and never blocks the sync loop.
type Forwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	logInterval time.Duration
	address     string
	logf        monitoring.Logf
	dropped     atomic.Uint64
	sent        atomic.Uint64
}

// NewForwarder dials address ("host:port").
func NewForwarder(address string, logInterval time.Duration, logf monitoring.Logf) (*Forwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &Forwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		logInterval: logInterval,
		address:     address,
		logf:        monitoring.OrDefault(logf),
	}, nil
}

// Start runs the sender until ctx is cancelled. Send failures are counted
// as drops and summarised once per log interval.
func (f *Forwarder) Start(ctx context.Context) {
	go func() {
		var intervalDrops uint64
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet := <-f.channel:
				if _, err := f.conn.Write(packet); err != nil {
					f.dropped.Add(1)
					intervalDrops++
					lastError = err
					continue
				}
				f.sent.Add(1)
			case <-ticker.C:
				if intervalDrops > 0 && lastError != nil {
					f.logf("Dropped %d forwarded packets due to errors (latest: %v)", intervalDrops, lastError)
					intervalDrops = 0
					lastError = nil
				}
			}
		}
	}()

	f.logf("Forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of packet. When the queue is full the packet
// is dropped.
func (f *Forwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		f.dropped.Add(1)
	}
}

// Sent returns how many packets were written.
func (f *Forwarder) Sent() uint64 {
	return f.sent.Load()
}

// Dropped returns how many packets were lost to a full queue or send errors.
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Close closes the UDP connection. Stop the sender by cancelling its
// context first.
func (f *Forwarder) Close() error {
	return f.conn.Close()
}
