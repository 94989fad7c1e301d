package network

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CaptureReader yields raw link-layer frames from a capture file or a live
// capture handle. ReadPacketData returns io.EOF after the last record.
type CaptureReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}

// CaptureOpener opens the capture a ReplaySource reads from. It is called
// again every time the replay loops.
type CaptureOpener func() (CaptureReader, error)

type packetDataReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileCapture struct {
	packetDataReader
	f *os.File
}

func (c *fileCapture) Close() error {
	return c.f.Close()
}

// OpenCaptureFile opens a pcap or pcapng file.
func OpenCaptureFile(path string) (CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}

	if r, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		return &fileCapture{packetDataReader: r, f: f}, nil
	}

	// Not classic pcap; retry from the start as pcapng.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind capture %s: %w", path, err)
	}
	ng, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is not a pcap or pcapng file: %w", path, err)
	}
	return &fileCapture{packetDataReader: ng, f: f}, nil
}

// PortFilter returns the capture filter expression selecting UDP datagrams
// addressed to any of ports.
func PortFilter(ports ...int) string {
	filter := ""
	for _, p := range ports {
		if p == 0 {
			continue
		}
		if filter != "" {
			filter += " or "
		}
		filter += fmt.Sprintf("udp dst port %d", p)
	}
	return filter
}

// udpPayload decodes a captured frame down to its UDP layer and returns the
// destination port and payload. ok is false for anything that is not UDP.
func udpPayload(data []byte, linkType layers.LinkType) (dstPort int, payload []byte, ok bool) {
	packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return 0, nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return 0, nil, false
	}
	return int(udp.DstPort), udp.Payload, true
}
