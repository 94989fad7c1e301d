//go:build !pcap
// +build !pcap

package network

import "fmt"

// OpenLiveCapture is a stub that returns an error when pcap support is not compiled in.
func OpenLiveCapture(iface, filter string) (CaptureReader, error) {
	return nil, fmt.Errorf("live capture support not compiled in (requires pcap build tag)")
}
