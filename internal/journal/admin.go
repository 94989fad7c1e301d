package journal

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/camsync/internal/httputil"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
)

// FormatEvent renders ev as one line.
func FormatEvent(ev timesync.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-8s %-18s", ev.Time.UTC().Format(time.RFC3339Nano), ev.Lidar, ev.Kind)
	switch ev.Kind {
	case timesync.EventBaseAdopted:
		fmt.Fprintf(&b, " base=%s", time.Unix(ev.BaseEpoch, 0).UTC().Format(time.RFC3339))
	case timesync.EventTimeJump, timesync.EventRollover:
		fmt.Fprintf(&b, " %s -> %s",
			time.Unix(ev.PrevEpoch, 0).UTC().Format(time.RFC3339),
			time.Unix(ev.BaseEpoch, 0).UTC().Format(time.RFC3339))
	case timesync.EventTriggerProgrammed:
		fmt.Fprintf(&b, " camera=%s delay=%dus exposure=%dus offset=%dus", ev.Camera, ev.Delay, ev.Exposure, ev.Offset)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, " %s", ev.Detail)
	}
	return b.String()
}

type eventJSON struct {
	Time      time.Time `json:"time"`
	Lidar     string    `json:"lidar"`
	Kind      string    `json:"kind"`
	Camera    string    `json:"camera,omitempty"`
	BaseEpoch int64     `json:"base_epoch,omitempty"`
	PrevEpoch int64     `json:"prev_epoch,omitempty"`
	Delay     int64     `json:"delay_us,omitempty"`
	Exposure  int64     `json:"exposure_us,omitempty"`
	Offset    int64     `json:"offset_us,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// AttachAdminRoutes adds the journal event list and a database backup
// download to the debug pages.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("journal", "Recent sync events (?lidar=&limit=&format=json)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireGET(w, r) {
			return
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httputil.BadRequest(w, "invalid limit")
				return
			}
			limit = n
		}
		events, err := j.Recent(r.Context(), r.URL.Query().Get("lidar"), limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to read journal: %v", err))
			return
		}

		if r.URL.Query().Get("format") == "json" {
			out := make([]eventJSON, 0, len(events))
			for _, ev := range events {
				out = append(out, eventJSON{
					Time: ev.Time, Lidar: ev.Lidar, Kind: string(ev.Kind), Camera: ev.Camera,
					BaseEpoch: ev.BaseEpoch, PrevEpoch: ev.PrevEpoch,
					Delay: ev.Delay, Exposure: ev.Exposure, Offset: ev.Offset, Detail: ev.Detail,
				})
			}
			httputil.WriteJSONOK(w, out)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, ev := range events {
			io.WriteString(w, FormatEvent(ev)+"\n")
		}
	})

	debug.Handle("journal-backup", "Create and download a backup of the journal now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("camsync-journal-%d.db", time.Now().UnixNano()))
		if _, err := j.db.Exec("VACUUM INTO ?", backupPath); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
			return
		}
		defer os.Remove(backupPath)

		backupFile, err := os.Open(backupPath)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			j.logf("journal backup: %v", err)
		}
	}))

	debug.KVFunc("journal events", func() any {
		written, dropped, failed := j.Stats()
		return fmt.Sprintf("%d written, %d dropped, %d failed", written, dropped, failed)
	})
}
