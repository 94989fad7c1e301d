package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/monitoring"
)

// drainLimit bounds Drain so a flooding sensor cannot pin the goroutine.
const drainLimit = 10000

// LiveConfig configures a LiveSource.
type LiveConfig struct {
	Family          parse.Family
	Address         string // bind host; empty binds all interfaces
	FiringPort      int
	PositioningPort int // ignored for single-port families
	RcvBuf          int
	ReuseAddr       bool // share the ports with other sockets (SO_REUSEADDR)
	PollTimeout     time.Duration
	Logf            monitoring.Logf
}

// LiveSource receives lidar packets from UDP sockets. Families with a
// separate positioning port get a second socket; positioning datagrams are
// held until the next firing packet is delivered.
type LiveSource struct {
	cfg  LiveConfig
	logf monitoring.Logf

	firing      *udpSocket
	positioning *udpSocket

	firingBuf []byte
	posBuf    []byte
	posLen    int
	posFresh  bool

	// firingDue is when firing silence next counts as a poll timeout even
	// though positioning data keeps arriving.
	firingDue time.Time

	stats Stats
}

// NewLiveSource returns an unbound source; call Init before Next. Ports
// are used as given, so 0 binds an ephemeral port.
func NewLiveSource(cfg LiveConfig) *LiveSource {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	return &LiveSource{
		cfg:       cfg,
		logf:      monitoring.OrDefault(cfg.Logf),
		firingBuf: make([]byte, maxDatagram),
		posBuf:    make([]byte, maxDatagram),
	}
}

// Init binds the firing socket and, for dual-port families, the positioning
// socket.
func (s *LiveSource) Init(ctx context.Context) error {
	if s.cfg.Family == parse.FamilyUnknown {
		return fmt.Errorf("%w: unknown lidar family", ErrFatal)
	}
	firing, err := listenUDP(ctx, s.cfg.Address, s.cfg.FiringPort, s.cfg.RcvBuf, s.cfg.ReuseAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	s.firing = firing

	if s.cfg.Family.SeparatePositioningPort() {
		pos, err := listenUDP(ctx, s.cfg.Address, s.cfg.PositioningPort, s.cfg.RcvBuf, s.cfg.ReuseAddr)
		if err != nil {
			s.firing.Close()
			s.firing = nil
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		s.positioning = pos
		s.logf("%s: listening for firing data on :%d and positioning on :%d", s.cfg.Family, firing.port, pos.port)
	} else {
		s.logf("%s: listening for firing data on :%d", s.cfg.Family, firing.port)
	}
	s.firingDue = time.Now().Add(s.cfg.PollTimeout)
	return nil
}

// Ports returns the bound firing and positioning ports. The positioning port
// is 0 for single-port families. Useful when binding port 0.
func (s *LiveSource) Ports() (firing, positioning int) {
	if s.firing != nil {
		firing = s.firing.port
	}
	if s.positioning != nil {
		positioning = s.positioning.port
	}
	return firing, positioning
}

// Next implements Source.
func (s *LiveSource) Next(ctx context.Context, blocking bool) (Packet, error) {
	if s.firing == nil {
		return Packet{}, fmt.Errorf("%w: source not initialised", ErrFatal)
	}

	wait := time.Duration(0)
	if blocking {
		wait = s.cfg.PollTimeout
	}

	gotPos := false
	if s.positioning != nil {
		var err error
		gotPos, err = s.readPositioning()
		if err != nil {
			return Packet{}, err
		}
		if gotPos {
			// Do not hold positioning data back behind a firing wait.
			wait = 0
		}
	}

	n, err := s.firing.recv(s.firingBuf, wait)
	if err != nil {
		err = s.firing.classify(err)
		if blocking && gotPos && errors.Is(err, ErrNoData) && !time.Now().Before(s.firingDue) {
			err = fmt.Errorf("%w: port %d: positioning only", ErrPollTimeout, s.firing.port)
		}
		if errors.Is(err, ErrPollTimeout) {
			s.firingDue = time.Now().Add(s.cfg.PollTimeout)
		}
		s.count(err)
		return Packet{}, err
	}
	s.firingDue = time.Now().Add(s.cfg.PollTimeout)
	if want := s.cfg.Family.FiringSize(); n != want {
		s.stats.SizeMismatch++
		return Packet{}, sizeMismatch("firing", n, want)
	}
	s.stats.Received++

	pkt := Packet{Firing: s.firingBuf[:n]}
	switch {
	case s.positioning == nil:
		pkt.Positioning = pkt.Firing
	case s.posFresh:
		pkt.Positioning = s.posBuf[:s.posLen]
		s.posFresh = false
	}
	return pkt, nil
}

// readPositioning performs one non-blocking receive on the positioning
// socket and reports whether a valid datagram was stored.
func (s *LiveSource) readPositioning() (bool, error) {
	// Receive into the firing buffer so a bad datagram cannot clobber a
	// positioning packet that has not been delivered yet.
	n, err := s.positioning.recv(s.firingBuf, 0)
	if err != nil {
		err = s.positioning.classify(err)
		if errors.Is(err, ErrNoData) {
			return false, nil
		}
		s.count(err)
		return false, err
	}
	if want := s.cfg.Family.PositioningSize(); n != want {
		s.stats.SizeMismatch++
		return false, sizeMismatch("positioning", n, want)
	}
	s.stats.Received++
	s.posLen = copy(s.posBuf, s.firingBuf[:n])
	s.posFresh = true
	return true, nil
}

func (s *LiveSource) count(err error) {
	switch OutcomeOf(err) {
	case OutcomePollTimeout:
		s.stats.Timeout++
	case OutcomeRecoverable, OutcomeFatal:
		s.stats.Error++
	}
}

// Drain discards queued firing packets. The newest valid positioning
// datagram is kept and delivered with the next firing packet.
func (s *LiveSource) Drain() {
	if s.firing == nil {
		return
	}
	dropped := 0
	for ; dropped < drainLimit; dropped++ {
		if _, err := s.firing.recv(s.firingBuf, 0); err != nil {
			break
		}
	}
	if s.positioning != nil {
		for i := 0; i < drainLimit; i++ {
			n, err := s.positioning.recv(s.firingBuf, 0)
			if err != nil {
				break
			}
			if n == s.cfg.Family.PositioningSize() {
				s.posLen = copy(s.posBuf, s.firingBuf[:n])
				s.posFresh = true
			}
		}
	}
	if dropped > 0 {
		s.logf("%s: drained %d queued firing packets", s.cfg.Family, dropped)
	}
}

// Stats implements Source.
func (s *LiveSource) Stats() Stats {
	return s.stats
}

// Close implements Source.
func (s *LiveSource) Close() error {
	var errs []error
	if s.firing != nil {
		errs = append(errs, s.firing.Close())
		s.firing = nil
	}
	if s.positioning != nil {
		errs = append(errs, s.positioning.Close())
		s.positioning = nil
	}
	return errors.Join(errs...)
}
