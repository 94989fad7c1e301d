package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/monitoring"
	"github.com/banshee-data/camsync/internal/testutil"
)

func newLoopbackSource(t *testing.T, family parse.Family) *LiveSource {
	t.Helper()
	src := NewLiveSource(LiveConfig{
		Family:      family,
		Address:     "127.0.0.1",
		PollTimeout: 200 * time.Millisecond,
		Logf:        monitoring.Nop(),
	})
	require.NoError(t, src.Init(context.Background()))
	t.Cleanup(func() { src.Close() })
	return src
}

func sendTo(t *testing.T, port int, payload []byte) {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

// nextReady calls Next until something other than no-data or a timeout comes back.
func nextReady(t *testing.T, src Source) (Packet, error) {
	t.Helper()
	for i := 0; i < 50; i++ {
		pkt, err := src.Next(context.Background(), true)
		if o := OutcomeOf(err); o != OutcomeNoData && o != OutcomePollTimeout {
			return pkt, err
		}
	}
	t.Fatal("no packet delivered")
	return Packet{}, nil
}

func TestLiveSourceSingle(t *testing.T) {
	src := newLoopbackSource(t, parse.Velo64E)
	firingPort, posPort := src.Ports()
	assert.NotZero(t, firingPort)
	assert.Zero(t, posPort)

	want := testutil.VelodyneFiring(testutil.UniformAzimuths(0, 20, 12), 123456, 'H', 7)
	sendTo(t, firingPort, want)

	pkt, err := nextReady(t, src)
	require.NoError(t, err)
	assert.Equal(t, want, pkt.Firing)
	assert.Equal(t, want, pkt.Positioning, "64E positioning data comes from the firing packet")
	assert.Equal(t, uint64(1), src.Stats().Received)
}

func TestLiveSourceSizeMismatch(t *testing.T) {
	src := newLoopbackSource(t, parse.Velo64E)
	firingPort, _ := src.Ports()

	sendTo(t, firingPort, make([]byte, 1000))
	_, err := nextReady(t, src)
	assert.True(t, errors.Is(err, ErrRecoverable), "got %v", err)
	assert.Equal(t, OutcomeRecoverable, OutcomeOf(err))

	st := src.Stats()
	assert.Equal(t, uint64(1), st.SizeMismatch)
	assert.Equal(t, uint64(0), st.Received)

	// Oversize datagrams are rejected too.
	sendTo(t, firingPort, make([]byte, 1500))
	_, err = nextReady(t, src)
	assert.ErrorIs(t, err, ErrRecoverable)
	assert.Equal(t, uint64(2), src.Stats().SizeMismatch)
}

func TestLiveSourceNoDataAndTimeout(t *testing.T) {
	src := newLoopbackSource(t, parse.Velo64E)

	_, err := src.Next(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = src.Next(context.Background(), true)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, uint64(1), src.Stats().Timeout)
}

func TestLiveSourceDual(t *testing.T) {
	src := newLoopbackSource(t, parse.Velo32E)
	firingPort, posPort := src.Ports()
	require.NotZero(t, posPort)

	pos := testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 34, 56, 'A'))
	sendTo(t, posPort, pos)

	// Positioning alone is not a delivery.
	_, err := src.Next(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoData)

	firing := testutil.VelodyneFiring(testutil.UniformAzimuths(0, 20, 12), 1000, 0, 0)
	sendTo(t, firingPort, firing)
	pkt, err := nextReady(t, src)
	require.NoError(t, err)
	assert.Equal(t, firing, pkt.Firing)
	assert.Equal(t, pos, pkt.Positioning)

	// Positioning is delivered once.
	sendTo(t, firingPort, firing)
	pkt, err = nextReady(t, src)
	require.NoError(t, err)
	assert.Nil(t, pkt.Positioning)
	assert.Equal(t, uint64(3), src.Stats().Received)
}

func TestLiveSourceFiringSilenceWithPositioning(t *testing.T) {
	src := NewLiveSource(LiveConfig{
		Family:      parse.Velo32E,
		Address:     "127.0.0.1",
		PollTimeout: 20 * time.Millisecond,
		Logf:        monitoring.Nop(),
	})
	require.NoError(t, src.Init(context.Background()))
	t.Cleanup(func() { src.Close() })
	_, posPort := src.Ports()

	pos := testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 0, 0, 'A'))
	for i := 0; i < 5; i++ {
		sendTo(t, posPort, pos)
		time.Sleep(30 * time.Millisecond)
		_, err := src.Next(context.Background(), true)
		assert.ErrorIs(t, err, ErrPollTimeout, "call %d", i)
	}
	assert.Equal(t, uint64(5), src.Stats().Timeout)
	assert.Equal(t, uint64(5), src.Stats().Received)
}

func TestLiveSourcePortInUse(t *testing.T) {
	first := newLoopbackSource(t, parse.Velo64E)
	port, _ := first.Ports()

	second := NewLiveSource(LiveConfig{
		Family:     parse.Velo64E,
		Address:    "127.0.0.1",
		FiringPort: port,
		Logf:       monitoring.Nop(),
	})
	err := second.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestLiveSourceReuseAddr(t *testing.T) {
	cfg := LiveConfig{
		Family:    parse.Velo64E,
		Address:   "127.0.0.1",
		ReuseAddr: true,
		Logf:      monitoring.Nop(),
	}
	first := NewLiveSource(cfg)
	require.NoError(t, first.Init(context.Background()))
	t.Cleanup(func() { first.Close() })

	cfg.FiringPort, _ = first.Ports()
	second := NewLiveSource(cfg)
	require.NoError(t, second.Init(context.Background()))
	second.Close()
}

func TestLiveSourcePositioningSizeMismatch(t *testing.T) {
	src := newLoopbackSource(t, parse.Pandar40)
	_, posPort := src.Ports()

	sendTo(t, posPort, make([]byte, 100))
	_, err := nextReady(t, src)
	assert.ErrorIs(t, err, ErrRecoverable)
	assert.Equal(t, uint64(1), src.Stats().SizeMismatch)
}

func TestLiveSourceDrain(t *testing.T) {
	src := newLoopbackSource(t, parse.Velo32E)
	firingPort, posPort := src.Ports()

	firing := testutil.VelodyneFiring(nil, 1, 0, 0)
	for i := 0; i < 5; i++ {
		sendTo(t, firingPort, firing)
	}
	pos := testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 0, 0, 'A'))
	sendTo(t, posPort, pos)

	src.Drain()

	_, err := src.Next(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoData)

	sendTo(t, firingPort, firing)
	pkt, err := nextReady(t, src)
	require.NoError(t, err)
	assert.Equal(t, pos, pkt.Positioning, "drain keeps the newest positioning packet")
}

func TestLiveSourceNotInitialised(t *testing.T) {
	src := NewLiveSource(LiveConfig{Family: parse.Velo64E})
	_, err := src.Next(context.Background(), false)
	assert.ErrorIs(t, err, ErrFatal)
	assert.NoError(t, src.Close())
}

func TestLiveSourceUnknownFamily(t *testing.T) {
	src := NewLiveSource(LiveConfig{Address: "127.0.0.1"})
	assert.ErrorIs(t, src.Init(context.Background()), ErrFatal)
}
