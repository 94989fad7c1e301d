package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camsync/internal/config"
	"github.com/banshee-data/camsync/internal/journal"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
	"github.com/banshee-data/camsync/internal/monitoring"
	"github.com/banshee-data/camsync/internal/status"
	"github.com/banshee-data/camsync/internal/testutil"
)

func writeReplay(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roof.pcap")
	testutil.WritePCAP(t, path, []testutil.Record{
		{DstPort: 8308, Payload: testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 34, 56, 'A'))},
		{DstPort: 2368, Payload: testutil.VelodyneFiring(nil, 1000, 0, 0)},
		{DstPort: 2368, Payload: testutil.VelodyneFiring(nil, 2000, 0, 0)},
		{DstPort: 2368, Payload: testutil.VelodyneFiring(nil, 2500, 0, 0)},
	})
	return path
}

func testConfig(t *testing.T, replay string) *config.Config {
	t.Helper()
	data := []byte(`
status_interval: 1h
lidars:
  - name: roof
    model: HDL32E
    replay:
      file: ` + replay + `
      read_once: true
      read_fast: true
    cameras:
      - name: front
        device: /dev/video0
        angle: 0
  - name: bumper
    model: VLP16
    replay:
      file: ` + filepath.Join(t.TempDir(), "missing.pcap") + `
    cameras:
      - name: side
        device: /dev/video1
        angle: 90
`)
	cfg, err := config.Parse(data)
	require.NoError(t, err)
	return cfg
}

func TestBuildLidars(t *testing.T) {
	cfg := testConfig(t, writeReplay(t))
	reg := status.NewRegistry()
	dry := newDryRun(cfg, monitoring.Nop())

	lidars, err := buildLidars(cfg, wiring{Trigger: dry, Capability: dry, Status: reg, Logf: monitoring.Nop()})
	require.NoError(t, err)
	require.Len(t, lidars, 2)
	assert.Equal(t, "roof", lidars[0].sup.Name())
	assert.Nil(t, lidars[0].forwarder)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, lidars[0].sup.Run(ctx))
	assert.Equal(t, 1, dry.Writes("/dev/video0"))

	snap, ok := reg.Get("roof")
	require.True(t, ok)
	assert.Equal(t, timesync.Locked, snap.Engine.State)
	require.Len(t, snap.Engine.Cameras, 1)
	assert.True(t, snap.Engine.Cameras[0].Programmed)
}

func TestBuildLidarsBadForward(t *testing.T) {
	cfg := testConfig(t, writeReplay(t))
	cfg.Lidars[0].Forward = "not-an-address"
	dry := newDryRun(cfg, monitoring.Nop())
	_, err := buildLidars(cfg, wiring{Trigger: dry, Logf: monitoring.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roof")
}

func TestBuildLidarsWithForwarder(t *testing.T) {
	cfg := testConfig(t, writeReplay(t))
	cfg.Lidars[0].Forward = "127.0.0.1:9"
	dry := newDryRun(cfg, monitoring.Nop())
	lidars, err := buildLidars(cfg, wiring{Trigger: dry, Logf: monitoring.Nop()})
	require.NoError(t, err)
	require.NotNil(t, lidars[0].forwarder)
	assert.NoError(t, lidars[0].forwarder.Close())
}

func TestNewDryRunUsesConfiguredExposure(t *testing.T) {
	exp := uint32(2500)
	cfg := &config.Config{Lidars: []config.Lidar{{
		Name: "a", Model: "VLP16",
		Cameras: []config.Camera{
			{Name: "c0", Device: "/dev/a", Exposure: &exp},
			{Name: "c1", Device: "/dev/b"},
		},
	}}}
	dry := newDryRun(cfg, monitoring.Nop())

	_, got, err := dry.ReadTrigger("/dev/a")
	require.NoError(t, err)
	assert.Equal(t, exp, got)
	_, got, err = dry.ReadTrigger("/dev/b")
	require.NoError(t, err)
	assert.Equal(t, uint32(config.DefaultCameraExposure), got)
}

func TestRunIsolatesFailingLidar(t *testing.T) {
	cfg := testConfig(t, writeReplay(t))
	cfg.Journal = filepath.Join(t.TempDir(), "journal.db")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, cfg), "one healthy lidar is enough")

	jnl, err := journal.Open(cfg.Journal, journal.Options{ReadOnly: true, Logf: monitoring.Nop()})
	require.NoError(t, err)
	defer jnl.Close()

	roof, err := jnl.Recent(context.Background(), "roof", 10)
	require.NoError(t, err)
	var kinds []timesync.EventKind
	for _, ev := range roof {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, timesync.EventBaseAdopted)
	assert.Contains(t, kinds, timesync.EventTriggerProgrammed)
	assert.Contains(t, kinds, timesync.EventLidarStopped)

	bumper, err := jnl.Recent(context.Background(), "bumper", 10)
	require.NoError(t, err)
	require.Len(t, bumper, 1)
	assert.Equal(t, timesync.EventLidarStopped, bumper[0].Kind)
	assert.Contains(t, bumper[0].Detail, "fatal")
}

func TestRunAllFailed(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "gone.pcap"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := run(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 lidars failed")
}

func TestInspect(t *testing.T) {
	path := writeReplay(t)
	assert.NoError(t, inspect(path, "HDL32E"))
	assert.Error(t, inspect(path, "OS1"))

	gpsOnly := filepath.Join(t.TempDir(), "gps.pcap")
	testutil.WritePCAP(t, gpsOnly, []testutil.Record{
		{DstPort: 8308, Payload: testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 34, 56, 'A'))},
	})
	assert.Error(t, inspect(gpsOnly, "HDL32E"))
}
