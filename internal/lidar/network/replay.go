package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/monitoring"
	"github.com/banshee-data/camsync/internal/timeutil"
)

// minReplaySleep is the shortest pacing wait worth sleeping for.
const minReplaySleep = 50 * time.Microsecond

// ReplayConfig configures a ReplaySource.
type ReplayConfig struct {
	Family          parse.Family
	File            string
	Live            bool   // capture from Interface instead of reading File
	Interface       string // capture interface for live mode
	FiringPort      int
	PositioningPort int
	ReadOnce        bool          // stop with ErrEndOfStream after one pass
	ReadFast        bool          // deliver as fast as possible, no pacing
	RepeatDelay     time.Duration // wait before looping back to the start
	PacketRate      float64       // firing packets per second when paced
	Clock           timeutil.Clock
	Logf            monitoring.Logf

	// Open overrides how the capture is opened. Nil uses File or Interface.
	Open CaptureOpener
}

// ReplaySource delivers packets from a capture, filtered to the lidar's
// firing and positioning ports. File replay loops forever unless ReadOnce
// is set.
type ReplaySource struct {
	cfg     ReplayConfig
	logf    monitoring.Logf
	clock   timeutil.Clock
	limiter *timeutil.RateLimiter

	reader    CaptureReader
	freshOpen bool
	passes    int

	firingBuf []byte
	posBuf    []byte
	posLen    int
	posFresh  bool

	stats Stats
}

// NewReplaySource returns an unopened replay source; call Init before Next.
func NewReplaySource(cfg ReplayConfig) *ReplaySource {
	if cfg.FiringPort == 0 {
		cfg.FiringPort = parse.DefaultFiringPort
	}
	if cfg.PositioningPort == 0 {
		cfg.PositioningPort = cfg.Family.DefaultPositioningPort()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Open == nil {
		cfg.Open = defaultOpener(cfg)
	}
	return &ReplaySource{
		cfg:       cfg,
		logf:      monitoring.OrDefault(cfg.Logf),
		clock:     cfg.Clock,
		limiter:   timeutil.NewRateLimiter(cfg.Clock, cfg.PacketRate, minReplaySleep),
		firingBuf: make([]byte, maxDatagram),
		posBuf:    make([]byte, maxDatagram),
	}
}

func defaultOpener(cfg ReplayConfig) CaptureOpener {
	if cfg.Live {
		filter := PortFilter(cfg.FiringPort)
		if cfg.Family.SeparatePositioningPort() {
			filter = PortFilter(cfg.FiringPort, cfg.PositioningPort)
		}
		return func() (CaptureReader, error) {
			return OpenLiveCapture(cfg.Interface, filter)
		}
	}
	return func() (CaptureReader, error) {
		return OpenCaptureFile(cfg.File)
	}
}

func (s *ReplaySource) name() string {
	if s.cfg.Live {
		return s.cfg.Interface
	}
	return s.cfg.File
}

// Init opens the capture.
func (s *ReplaySource) Init(ctx context.Context) error {
	if s.cfg.Family == parse.FamilyUnknown {
		return fmt.Errorf("%w: unknown lidar family", ErrFatal)
	}
	if err := s.open(); err != nil {
		return err
	}
	mode := "paced"
	if s.cfg.ReadFast {
		mode = "fast"
	}
	s.logf("%s: replaying %s (%s, read_once=%t)", s.cfg.Family, s.name(), mode, s.cfg.ReadOnce)
	return nil
}

func (s *ReplaySource) open() error {
	r, err := s.cfg.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	s.reader = r
	s.freshOpen = true
	s.passes++
	s.limiter.Reset()
	return nil
}

// Passes returns how many times the capture has been opened.
func (s *ReplaySource) Passes() int {
	return s.passes
}

// Next implements Source. Records on other ports are skipped; a positioning
// record is buffered and reported as ErrNoData.
func (s *ReplaySource) Next(ctx context.Context, blocking bool) (Packet, error) {
	if s.reader == nil {
		return Packet{}, fmt.Errorf("%w: source not initialised", ErrFatal)
	}

	for {
		data, _, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, ErrPollTimeout) {
				s.stats.Timeout++
				return Packet{}, err
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if err := s.endOfPass(ctx); err != nil {
					return Packet{}, err
				}
				continue
			}
			s.stats.Error++
			return Packet{}, fmt.Errorf("%w: reading %s: %v", ErrFatal, s.name(), err)
		}

		port, payload, ok := udpPayload(data, s.reader.LinkType())
		if !ok {
			continue
		}
		want := expectedSize(s.cfg.Family, s.cfg.FiringPort, s.cfg.PositioningPort, port)
		if want == 0 {
			continue
		}
		if len(payload) != want {
			s.stats.SizeMismatch++
			kind := "firing"
			if port != s.cfg.FiringPort {
				kind = "positioning"
			}
			return Packet{}, sizeMismatch(kind, len(payload), want)
		}

		if port != s.cfg.FiringPort {
			s.posLen = copy(s.posBuf, payload)
			s.posFresh = true
			s.stats.Received++
			return Packet{}, ErrNoData
		}

		n := copy(s.firingBuf, payload)
		if blocking && !s.cfg.ReadFast && !s.cfg.Live {
			s.limiter.Sleep()
		}
		s.freshOpen = false
		s.stats.Received++

		pkt := Packet{Firing: s.firingBuf[:n]}
		switch {
		case !s.cfg.Family.SeparatePositioningPort():
			pkt.Positioning = pkt.Firing
		case s.posFresh:
			pkt.Positioning = s.posBuf[:s.posLen]
			s.posFresh = false
		}
		return pkt, nil
	}
}

// endOfPass handles EOF: fatal on an empty pass, end of stream in read-once
// mode, otherwise reopen after the repeat delay.
func (s *ReplaySource) endOfPass(ctx context.Context) error {
	if s.freshOpen {
		s.stats.Error++
		return fmt.Errorf("%w: %s has no %s firing packets on port %d",
			ErrFatal, s.name(), s.cfg.Family, s.cfg.FiringPort)
	}
	if s.cfg.ReadOnce || s.cfg.Live {
		return ErrEndOfStream
	}

	s.reader.Close()
	s.reader = nil
	if s.cfg.RepeatDelay > 0 {
		if err := timeutil.SleepContext(ctx, s.clock, s.cfg.RepeatDelay); err != nil {
			// Reopen anyway so the source stays usable; the caller sees the
			// cancelled context on its next stop check.
			s.logf("%s: repeat delay interrupted: %v", s.name(), err)
		}
	}
	if err := s.open(); err != nil {
		return err
	}
	s.logf("%s: end of capture, looping (pass %d)", s.name(), s.passes)
	return nil
}

// Drain is a no-op: a capture has no backlog to skip.
func (s *ReplaySource) Drain() {}

// Stats implements Source.
func (s *ReplaySource) Stats() Stats {
	return s.stats
}

// Close implements Source.
func (s *ReplaySource) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
