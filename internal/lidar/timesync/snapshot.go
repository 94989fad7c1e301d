package timesync

import "github.com/banshee-data/camsync/internal/camera"

// Snapshot is a point-in-time copy of an engine's state for status reports.
type Snapshot struct {
	State            State             `json:"state"`
	GPSStatus        GPSStatus         `json:"gps_status"`
	Current          Calendar          `json:"current_time"`
	BaseEpoch        int64             `json:"base_epoch"`
	HasBase          bool              `json:"has_base"`
	LastGPSTimestamp uint32            `json:"last_gps_timestamp"`
	InvalidFields    uint64            `json:"invalid_fields"`
	TimeJumps        uint64            `json:"time_jumps"`
	Rollovers        uint64            `json:"rollovers"`
	Cameras          []camera.Snapshot `json:"cameras"`
}

// Snapshot copies the engine's state. Call it from the lidar goroutine.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		State:            e.State(),
		GPSStatus:        e.tb.GPSStatus,
		Current:          e.tb.Current,
		BaseEpoch:        e.tb.BaseEpoch,
		HasBase:          e.tb.HasBase,
		LastGPSTimestamp: e.tb.LastGPSTimestamp,
		InvalidFields:    e.tb.InvalidFields,
		TimeJumps:        e.timeJumps,
		Rollovers:        e.rollovers,
		Cameras:          make([]camera.Snapshot, 0, len(e.cfg.Cameras)),
	}
	for _, cam := range e.cfg.Cameras {
		s.Cameras = append(s.Cameras, cam.Snapshot())
	}
	return s
}
