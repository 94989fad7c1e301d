package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camsync/internal/lidar/timesync"
	"github.com/banshee-data/camsync/internal/monitoring"
)

func openTemp(t *testing.T, opts Options) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	if opts.Logf == nil {
		opts.Logf = monitoring.Nop()
	}
	j, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func flush(t *testing.T, j *Journal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, j.Flush(ctx))
}

var t0 = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func TestEmitAndRecent(t *testing.T) {
	j, _ := openTemp(t, Options{Version: "test"})
	require.NotEmpty(t, j.RunID())

	j.Emit(timesync.Event{Time: t0, Lidar: "roof", Kind: timesync.EventBaseAdopted, BaseEpoch: t0.Unix()})
	j.Emit(timesync.Event{Time: t0.Add(time.Second), Lidar: "roof", Kind: timesync.EventTriggerProgrammed,
		Camera: "front", Delay: 12345, Exposure: 4000, Offset: 50000})
	j.Emit(timesync.Event{Time: t0.Add(2 * time.Second), Lidar: "bumper", Kind: timesync.EventLidarStopped, Detail: "fatal input error"})
	flush(t, j)

	written, dropped, failed := j.Stats()
	assert.Equal(t, uint64(3), written)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)

	got, err := j.Recent(context.Background(), "roof", 10)
	require.NoError(t, err)
	want := []timesync.Event{
		{Time: t0.Add(time.Second), Lidar: "roof", Kind: timesync.EventTriggerProgrammed,
			Camera: "front", Delay: 12345, Exposure: 4000, Offset: 50000},
		{Time: t0, Lidar: "roof", Kind: timesync.EventBaseAdopted, BaseEpoch: t0.Unix()},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}

	all, err := j.Recent(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bumper", all[0].Lidar)
}

func TestReopenKeepsEventsAndAddsRun(t *testing.T) {
	j, path := openTemp(t, Options{})
	j.Emit(timesync.Event{Time: t0, Lidar: "roof", Kind: timesync.EventTimeJump, PrevEpoch: 1, BaseEpoch: 2})
	flush(t, j)
	first := j.RunID()
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "close is idempotent")

	j2, err := Open(path, Options{Logf: monitoring.Nop()})
	require.NoError(t, err)
	defer j2.Close()
	assert.NotEqual(t, first, j2.RunID())

	got, err := j2.Recent(context.Background(), "roof", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, timesync.EventTimeJump, got[0].Kind)

	var runs int
	require.NoError(t, j2.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	assert.Equal(t, 2, runs)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	j, _ := openTemp(t, Options{})
	require.NoError(t, j.Close())
	j.Emit(timesync.Event{Lidar: "roof", Kind: timesync.EventRollover})
	_, dropped, _ := j.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestEmitNeverBlocks(t *testing.T) {
	j, _ := openTemp(t, Options{QueueSize: 1})

	// Hold the only connection so the writer stalls on its first insert.
	conn, err := j.db.Conn(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			j.Emit(timesync.Event{Time: t0, Lidar: "roof", Kind: timesync.EventRollover})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked")
	}
	require.NoError(t, conn.Close())
	flush(t, j)

	written, dropped, _ := j.Stats()
	assert.Equal(t, uint64(100), written+dropped)
	assert.Positive(t, dropped)
}

func TestConcurrentEmitAndClose(t *testing.T) {
	j, _ := openTemp(t, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 200; k++ {
				j.Emit(timesync.Event{Time: t0, Lidar: "roof", Kind: timesync.EventRollover})
			}
		}()
	}
	require.NoError(t, j.Close())
	wg.Wait()

	written, dropped, failed := j.Stats()
	assert.Equal(t, uint64(800), written+dropped+failed)
}

func TestEventSinkInterface(t *testing.T) {
	var _ timesync.EventSink = (*Journal)(nil)
}

func TestReadOnly(t *testing.T) {
	j, path := openTemp(t, Options{})
	j.Emit(timesync.Event{Time: t0, Lidar: "roof", Kind: timesync.EventBaseAdopted})
	flush(t, j)
	require.NoError(t, j.Close())

	ro, err := Open(path, Options{ReadOnly: true, Logf: monitoring.Nop()})
	require.NoError(t, err)
	defer ro.Close()

	ro.Emit(timesync.Event{Time: t0, Lidar: "roof", Kind: timesync.EventRollover})
	_, dropped, _ := ro.Stats()
	assert.Equal(t, uint64(1), dropped)

	got, err := ro.Recent(context.Background(), "roof", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, timesync.EventBaseAdopted, got[0].Kind)

	var runs int
	require.NoError(t, ro.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	assert.Equal(t, 1, runs)
}
