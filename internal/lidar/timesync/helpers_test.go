package timesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camsync/internal/camera"
	"github.com/banshee-data/camsync/internal/lidar/parse"
	"github.com/banshee-data/camsync/internal/monitoring"
	"github.com/banshee-data/camsync/internal/testutil"
)

var fixedNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type recorder struct {
	events []Event
}

func (r *recorder) Emit(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestEngine(family parse.Family, cams ...*camera.State) (*Engine, *recorder, *camera.DryRun) {
	rec := &recorder{}
	dry := camera.NewDryRun(4000, monitoring.Nop())
	e := NewEngine(Config{
		Lidar:          "test",
		Family:         family,
		DriftTolerance: 1000,
		Cameras:        cams,
		Trigger:        dry,
		Events:         rec,
		Logf:           monitoring.Nop(),
		Now:            func() time.Time { return fixedNow },
	})
	return e, rec, dry
}

func epoch(y, mo, d, h, mi, s int) int64 {
	return time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC).Unix()
}

func veloFiring(ts uint32) []byte {
	return testutil.VelodyneFiring(nil, ts, 0, 0)
}

func rmc(y, mo, d, h, mi, s int) []byte {
	return testutil.VelodynePositioning(testutil.GPRMC(y, mo, d, h, mi, s, 'A'))
}

func status64E(typ parse.StatusType, v byte, ts uint32) []byte {
	return testutil.VelodyneFiring(nil, ts, byte(typ), v)
}

// feed64E sends one status pair through UpdateTime.
func feed64E(e *Engine, typ parse.StatusType, v byte, ts uint32) {
	b := status64E(typ, v, ts)
	e.UpdateTime(b, b)
}

func newCamera(t *testing.T, angle int) *camera.State {
	t.Helper()
	cfg := camera.Config{Name: "cam", Device: "/dev/cam", AngleDeg: angle, FPS: 10, Height: 1080, Enabled: true}
	require.NoError(t, cfg.Validate())
	return camera.NewState(cfg, nil, monitoring.Nop())
}
