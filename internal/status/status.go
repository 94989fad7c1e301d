// Package status holds the latest published state of every lidar and
// serves it on the debug admin page.
package status

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"tailscale.com/tsweb"

	"github.com/banshee-data/camsync/internal/httputil"
	"github.com/banshee-data/camsync/internal/lidar/network"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
)

// Snapshot is an immutable status report for one lidar.
type Snapshot struct {
	Lidar      string    `json:"lidar"`
	Model      string    `json:"model"`
	Updated    time.Time `json:"updated"`
	Running    bool      `json:"running"`
	StopReason string    `json:"stop_reason,omitempty"`

	Engine timesync.Snapshot `json:"engine"`
	Source network.Stats     `json:"source"`

	// Packet rates in firing packets per second: over the last status
	// interval, and since the lidar started.
	Rate        float64 `json:"rate_pps"`
	AverageRate float64 `json:"average_rate_pps"`
	Total       uint64  `json:"total_packets"`

	Forwarded      uint64 `json:"forwarded,omitempty"`
	ForwardDropped uint64 `json:"forward_dropped,omitempty"`
}

// Summary renders s as a single log line.
func (s *Snapshot) Summary() string {
	e := s.Engine
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s gps=%s", s.Lidar, s.Model, e.State, e.GPSStatus)
	if e.HasBase {
		fmt.Fprintf(&b, " base=%s", time.Unix(e.BaseEpoch, 0).UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, " counter=%s", humanize.Comma(int64(e.LastGPSTimestamp)))
	fmt.Fprintf(&b, " rate=%s/s avg=%s/s total=%s",
		humanize.CommafWithDigits(s.Rate, 1), humanize.CommafWithDigits(s.AverageRate, 1), humanize.Comma(int64(s.Total)))
	if s.Source.SizeMismatch > 0 || s.Source.Timeout > 0 || s.Source.Error > 0 {
		fmt.Fprintf(&b, " mismatched=%s timeouts=%s errors=%s",
			humanize.Comma(int64(s.Source.SizeMismatch)), humanize.Comma(int64(s.Source.Timeout)), humanize.Comma(int64(s.Source.Error)))
	}
	if e.InvalidFields > 0 {
		fmt.Fprintf(&b, " invalid_fields=%s", humanize.Comma(int64(e.InvalidFields)))
	}
	for _, c := range e.Cameras {
		fmt.Fprintf(&b, "; %s delay=%dus exp=%dus reprogrammed %s", c.Name, c.LastDelay, c.LastExposure, humanize.Comma(int64(c.Reprograms)))
		if c.DriftSamples > 1 {
			fmt.Fprintf(&b, " drift=%.0f±%.0fus", c.DriftMean, c.DriftStdDev)
		}
	}
	if !s.Running && s.StopReason != "" {
		fmt.Fprintf(&b, " stopped: %s", s.StopReason)
	}
	return b.String()
}

// Registry keeps the most recent snapshot of every registered lidar. Each
// lidar goroutine publishes its own entry; readers never block writers.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*atomic.Pointer[Snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*atomic.Pointer[Snapshot])}
}

func (r *Registry) slot(name string) *atomic.Pointer[Snapshot] {
	r.mu.RLock()
	p, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.entries[name]; ok {
		return p
	}
	p = new(atomic.Pointer[Snapshot])
	r.entries[name] = p
	r.order = append(r.order, name)
	return p
}

// Register reserves a slot for name so it is listed before its first
// snapshot arrives.
func (r *Registry) Register(name string) {
	r.slot(name)
}

// Publish replaces the snapshot for s.Lidar. s must not be modified
// afterwards.
func (r *Registry) Publish(s *Snapshot) {
	r.slot(s.Lidar).Store(s)
}

// Get returns the latest snapshot for name.
func (r *Registry) Get(name string) (*Snapshot, bool) {
	r.mu.RLock()
	p, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s := p.Load()
	return s, s != nil
}

// List returns the latest snapshots in registration order, skipping lidars
// that have not published yet.
func (r *Registry) List() []*Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Snapshot, 0, len(r.order))
	for _, name := range r.order {
		if s := r.entries[name].Load(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// ServeHTTP writes every snapshot as JSON, or one lidar's with ?lidar=name.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !httputil.RequireGET(w, req) {
		return
	}
	if name := req.URL.Query().Get("lidar"); name != "" {
		s, ok := r.Get(name)
		if !ok {
			httputil.NotFound(w, fmt.Sprintf("unknown lidar %q", name))
			return
		}
		httputil.WriteJSONOK(w, s)
		return
	}
	httputil.WriteJSONOK(w, r.List())
}

// AttachAdminRoutes adds the camsync status page and one summary line per
// lidar to the debug index.
func (r *Registry) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("camsync", "Lidar/camera sync status (JSON)", r)

	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()
	for _, name := range names {
		name := name
		debug.KVFunc("lidar "+name, func() any {
			s, ok := r.Get(name)
			if !ok {
				return "starting"
			}
			return s.Summary()
		})
	}
}
