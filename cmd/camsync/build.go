package main

import (
	"fmt"

	"github.com/banshee-data/camsync/internal/camera"
	"github.com/banshee-data/camsync/internal/config"
	"github.com/banshee-data/camsync/internal/lidar/network"
	"github.com/banshee-data/camsync/internal/lidar/supervisor"
	"github.com/banshee-data/camsync/internal/lidar/timesync"
	"github.com/banshee-data/camsync/internal/monitoring"
	"github.com/banshee-data/camsync/internal/status"
	"github.com/banshee-data/camsync/internal/timeutil"
)

// wiring is everything the lidars share: the trigger controller, where
// events go and where status is published.
type wiring struct {
	Trigger    camera.TriggerController
	Capability camera.CapabilityQuerier
	Events     timesync.EventSink
	Status     *status.Registry
	Clock      timeutil.Clock
	Logf       monitoring.Logf
}

// lidarRuntime is one configured lidar ready to run.
type lidarRuntime struct {
	sup       *supervisor.Supervisor
	forwarder *network.Forwarder
}

// newDryRun builds the in-memory trigger bank with each camera's
// configured exposure.
func newDryRun(cfg *config.Config, logf monitoring.Logf) *camera.DryRun {
	dry := camera.NewDryRun(config.DefaultCameraExposure, logf)
	for _, l := range cfg.Lidars {
		for _, c := range l.Cameras {
			dry.SetExposure(c.Device, c.GetExposure())
		}
	}
	return dry
}

// newSource picks a live socket or a replay source for l.
func newSource(l *config.Lidar, w wiring) network.Source {
	model := l.GetModel()
	if r := l.Replay; r != nil {
		return network.NewReplaySource(network.ReplayConfig{
			Family:          model.Family,
			File:            r.File,
			Live:            r.Live,
			Interface:       r.Interface,
			FiringPort:      l.GetFiringPort(),
			PositioningPort: l.GetPositioningPort(),
			ReadOnce:        r.ReadOnce,
			ReadFast:        r.ReadFast,
			RepeatDelay:     r.GetRepeatDelay(),
			PacketRate:      l.GetPacketRate(),
			Clock:           w.Clock,
			Logf:            w.Logf,
		})
	}
	return network.NewLiveSource(network.LiveConfig{
		Family:          model.Family,
		Address:         l.Address,
		FiringPort:      l.GetFiringPort(),
		PositioningPort: l.GetPositioningPort(),
		RcvBuf:          l.GetReceiveBuffer(),
		ReuseAddr:       l.ReuseAddress,
		PollTimeout:     l.GetPollTimeout(),
		Logf:            w.Logf,
	})
}

func newCameras(l *config.Lidar, w wiring) ([]*camera.State, error) {
	cams := make([]*camera.State, 0, len(l.Cameras))
	for _, c := range l.Cameras {
		cc := camera.Config{
			Name:     c.Name,
			Device:   c.Device,
			AngleDeg: c.Angle,
			FPS:      c.GetFPS(),
			Height:   c.GetHeight(),
			Enabled:  c.GetEnabled(),
		}
		if cc.Name == "" {
			cc.Name = c.Device
		}
		if err := cc.Validate(); err != nil {
			return nil, fmt.Errorf("lidar %s: %w", l.Name, err)
		}
		cams = append(cams, camera.NewState(cc, w.Capability, w.Logf))
	}
	return cams, nil
}

// buildLidars turns the configuration into supervisors. Forwarders are
// created but not started.
func buildLidars(cfg *config.Config, w wiring) ([]lidarRuntime, error) {
	if w.Clock == nil {
		w.Clock = timeutil.RealClock{}
	}
	var out []lidarRuntime
	closeAll := func() {
		for _, rt := range out {
			if rt.forwarder != nil {
				rt.forwarder.Close()
			}
		}
	}

	for i := range cfg.Lidars {
		l := &cfg.Lidars[i]
		model := l.GetModel()

		cams, err := newCameras(l, w)
		if err != nil {
			closeAll()
			return nil, err
		}
		engine := timesync.NewEngine(timesync.Config{
			Lidar:          l.Name,
			Family:         model.Family,
			DriftTolerance: l.GetDriftTolerance(),
			BaseOffset:     l.GetBaseOffset(),
			Cameras:        cams,
			Trigger:        w.Trigger,
			Events:         w.Events,
			Logf:           w.Logf,
			Now:            w.Clock.Now,
		})

		var fwd *network.Forwarder
		if l.Forward != "" {
			fwd, err = network.NewForwarder(l.Forward, config.DefaultForwardInterval, w.Logf)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("lidar %s: %w", l.Name, err)
			}
		}

		sup, err := supervisor.New(supervisor.Config{
			Name:           l.Name,
			Model:          model,
			Source:         newSource(l, w),
			Engine:         engine,
			MaxTimeouts:    l.GetMaxTimeouts(),
			GPSWait:        l.GetGPSWait(),
			StatusInterval: cfg.GetStatusInterval(),
			Forwarder:      fwd,
			Events:         w.Events,
			Status:         w.Status,
			Clock:          w.Clock,
			Logf:           w.Logf,
		})
		if err != nil {
			if fwd != nil {
				fwd.Close()
			}
			closeAll()
			return nil, err
		}
		out = append(out, lidarRuntime{sup: sup, forwarder: fwd})
	}
	return out, nil
}
