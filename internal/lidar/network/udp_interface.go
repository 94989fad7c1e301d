package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// errWouldBlock is returned by udpSocket.recv when a non-blocking receive
// finds the queue empty.
var errWouldBlock = errors.New("would block")

// udpSocket is a bound UDP socket read with explicit non-blocking receives.
// The Go runtime poller provides the bounded wait for readability.
type udpSocket struct {
	conn *net.UDPConn
	raw  syscall.RawConn
	port int
}

// listenUDP binds address:port, applying rcvBuf when positive. SO_REUSEADDR
// is set only when reuse is true, so by default a port already taken by
// another socket fails here instead of silently splitting the traffic.
func listenUDP(ctx context.Context, address string, port, rcvBuf int, reuse bool) (*udpSocket, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if reuse {
					sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
					if sockErr != nil {
						return
					}
				}
				if rcvBuf > 0 {
					sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP port %d: %w", port, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get raw conn: %w", err)
	}
	return &udpSocket{conn: conn, raw: raw, port: conn.LocalAddr().(*net.UDPAddr).Port}, nil
}

// recv performs exactly one receive into buf. A positive wait first waits up
// to that long for the socket to become readable; otherwise the call never
// blocks and returns errWouldBlock on an empty queue. A wait that expires
// returns os.ErrDeadlineExceeded.
func (s *udpSocket) recv(buf []byte, wait time.Duration) (int, error) {
	deadline := time.Time{}
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	var n int
	var recvErr error
	err := s.raw.Read(func(fd uintptr) bool {
		n, _, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		if recvErr == unix.EAGAIN || recvErr == unix.EWOULDBLOCK {
			// Returning false parks on the poller until readable or deadline.
			return wait <= 0
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if recvErr == unix.EAGAIN || recvErr == unix.EWOULDBLOCK {
		return 0, errWouldBlock
	}
	if recvErr != nil {
		return 0, os.NewSyscallError("recvfrom", recvErr)
	}
	return n, nil
}

// classify maps a recv error onto the Source sentinels.
func (s *udpSocket) classify(err error) error {
	switch {
	case errors.Is(err, errWouldBlock):
		return ErrNoData
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: port %d", ErrPollTimeout, s.port)
	case errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: port %d: %v", ErrFatal, s.port, err)
	default:
		return fmt.Errorf("%w: port %d: %v", ErrRecoverable, s.port, err)
	}
}

func (s *udpSocket) Close() error {
	return s.conn.Close()
}
