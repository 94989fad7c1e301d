package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camsync/internal/camera"
	"github.com/banshee-data/camsync/internal/lidar/network"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
)

func sample(name string) *Snapshot {
	return &Snapshot{
		Lidar:   name,
		Model:   "HDL32E",
		Updated: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		Running: true,
		Engine: timesync.Snapshot{
			State:            timesync.Locked,
			GPSStatus:        timesync.GPSOk,
			Current:          timesync.Calendar{Year: 2024, Month: 3, Day: 4, Hour: 12, Minute: 0, Second: 1},
			BaseEpoch:        time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC).Unix(),
			HasBase:          true,
			LastGPSTimestamp: 1234567,
			Cameras: []camera.Snapshot{
				{Name: "front", LastDelay: 400, LastExposure: 2000, Reprograms: 3, DriftMean: 4, DriftStdDev: 2, DriftSamples: 10},
			},
		},
		Source:      network.Stats{Received: 1808, SizeMismatch: 2},
		Rate:        1808.4,
		AverageRate: 1790,
		Total:       123456,
	}
}

func TestRegistryPublishAndList(t *testing.T) {
	r := NewRegistry()
	r.Register("b")
	r.Register("a")
	assert.Empty(t, r.List())

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Publish(sample("a"))
	r.Publish(sample("b"))
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Lidar, "registration order is kept")
	assert.Equal(t, "a", list[1].Lidar)

	newer := sample("a")
	newer.Running = false
	r.Publish(newer)
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.False(t, got.Running)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryConcurrentPublish(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				r.Publish(sample(name))
				r.List()
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.List(), 8)
}

func TestSummary(t *testing.T) {
	line := sample("roof").Summary()
	for _, want := range []string{
		"roof [HDL32E] locked gps=ok",
		"base=2024-03-04T12:00:00Z",
		"counter=1,234,567",
		"rate=1,808.4/s",
		"total=123,456",
		"mismatched=2",
		"front delay=400us exp=2000us reprogrammed 3",
		"drift=4±2us",
	} {
		assert.Contains(t, line, want)
	}

	stopped := sample("roof")
	stopped.Running = false
	stopped.StopReason = "fatal input error"
	assert.True(t, strings.HasSuffix(stopped.Summary(), "stopped: fatal input error"))
}

func TestServeHTTP(t *testing.T) {
	r := NewRegistry()
	r.Publish(sample("roof"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/camsync", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	engine := list[0]["engine"].(map[string]any)
	assert.Equal(t, "locked", engine["state"])
	assert.Equal(t, "2024-03-04 12:00:01", engine["current_time"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/camsync?lidar=roof", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var one Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "roof", one.Lidar)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/camsync?lidar=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/camsync", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAttachAdminRoutes(t *testing.T) {
	r := NewRegistry()
	r.Register("roof")
	r.Publish(sample("roof"))

	mux := http.NewServeMux()
	r.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/camsync", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lidar": "roof"`)
}
