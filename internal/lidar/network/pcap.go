//go:build pcap
// +build pcap

package network

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// liveCaptureTimeout bounds each read so the stop flag is still polled.
const liveCaptureTimeout = 100 * time.Millisecond

type liveCapture struct {
	handle *pcap.Handle
}

// OpenLiveCapture opens iface for capture with filter applied. Read
// timeouts surface as ErrPollTimeout from ReadPacketData.
func OpenLiveCapture(iface, filter string) (CaptureReader, error) {
	handle, err := pcap.OpenLive(iface, 65536, true, liveCaptureTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for capture: %w", iface, err)
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
		}
	}
	return &liveCapture{handle: handle}, nil
}

func (c *liveCapture) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := c.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, ErrPollTimeout
	}
	if errors.Is(err, pcap.NextErrorNoMorePackets) {
		return nil, ci, io.EOF
	}
	return data, ci, err
}

func (c *liveCapture) LinkType() layers.LinkType {
	return c.handle.LinkType()
}

func (c *liveCapture) Close() error {
	c.handle.Close()
	return nil
}
