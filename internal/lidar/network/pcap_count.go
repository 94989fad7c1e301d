package network

import (
	"errors"
	"io"
)

// CountRecords reads a whole capture file and counts UDP datagrams per
// destination port, restricted to ports when any are given.
func CountRecords(path string, ports ...int) (map[int]uint64, error) {
	r, err := OpenCaptureFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	want := make(map[int]bool, len(ports))
	for _, p := range ports {
		want[p] = true
	}

	counts := make(map[int]uint64)
	for {
		data, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return counts, nil
		}
		if err != nil {
			return counts, err
		}
		port, _, ok := udpPayload(data, r.LinkType())
		if !ok {
			continue
		}
		if len(want) > 0 && !want[port] {
			continue
		}
		counts[port]++
	}
}
