// Package config loads the camsync YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/camsync/internal/lidar/parse"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults for optional fields.
const (
	DefaultStatusInterval  = 10 * time.Second
	DefaultPollTimeout     = 100 * time.Millisecond
	DefaultMaxTimeouts     = 50
	DefaultDriftTolerance  = 1000 // µs
	DefaultBaseOffset      = 0    // µs
	DefaultGPSWait         = 10000
	DefaultCameraFPS       = 10.0
	DefaultCameraHeight    = 1080
	DefaultCameraExposure  = 4000 // µs, dry-run register bank only
	DefaultForwardInterval = time.Minute
)

// Config is the root of the configuration file.
type Config struct {
	StatusInterval *string `yaml:"status_interval,omitempty"` // duration string like "10s"
	AdminAddress   string  `yaml:"admin_address,omitempty"`   // e.g. "127.0.0.1:8081"; empty disables
	Journal        string  `yaml:"journal,omitempty"`         // sqlite path; empty disables

	Lidars []Lidar `yaml:"lidars"`
}

// Lidar configures one sensor and its cameras.
type Lidar struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`

	Address         string   `yaml:"address,omitempty"`
	FiringPort      *int     `yaml:"firing_port,omitempty"`
	PositioningPort *int     `yaml:"positioning_port,omitempty"`
	ReceiveBuffer   *int     `yaml:"receive_buffer,omitempty"`
	PollTimeout     *string  `yaml:"poll_timeout,omitempty"`
	MaxTimeouts     *int     `yaml:"max_timeouts,omitempty"`
	PacketRate      *float64 `yaml:"packet_rate,omitempty"`
	// ReuseAddress sets SO_REUSEADDR so a sniffer can share the ports.
	ReuseAddress bool `yaml:"reuse_address,omitempty"`

	DriftTolerance *int64 `yaml:"drift_tolerance_us,omitempty"`
	BaseOffset     *int64 `yaml:"base_offset_us,omitempty"`
	GPSWait        *int   `yaml:"gps_wait_packets,omitempty"`

	// Forward re-sends every received datagram to host:port.
	Forward string `yaml:"forward,omitempty"`

	Replay  *Replay  `yaml:"replay,omitempty"`
	Cameras []Camera `yaml:"cameras"`
}

// Replay switches a lidar from live sockets to a capture.
type Replay struct {
	File        string  `yaml:"file,omitempty"`
	Live        bool    `yaml:"live,omitempty"`
	Interface   string  `yaml:"interface,omitempty"`
	ReadOnce    bool    `yaml:"read_once,omitempty"`
	ReadFast    bool    `yaml:"read_fast,omitempty"`
	RepeatDelay *string `yaml:"repeat_delay,omitempty"`
}

// Camera configures one triggered camera.
type Camera struct {
	Name     string   `yaml:"name"`
	Device   string   `yaml:"device"`
	Angle    int      `yaml:"angle"`
	FPS      *float64 `yaml:"fps,omitempty"`
	Height   *int     `yaml:"height,omitempty"`
	Enabled  *bool    `yaml:"enabled,omitempty"`
	Exposure *uint32  `yaml:"exposure_us,omitempty"`
}

// Load reads and validates the configuration file at path. Unknown keys
// are rejected.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, *v)
	}
	return nil
}

func validPort(name string, v *int) error {
	if v != nil && (*v < 1 || *v > 65535) {
		return fmt.Errorf("%s must be within 1..65535, got %d", name, *v)
	}
	return nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validDuration("status_interval", c.StatusInterval); err != nil {
		return err
	}
	if len(c.Lidars) == 0 {
		return errors.New("at least one lidar is required")
	}
	seen := make(map[string]bool)
	for i := range c.Lidars {
		l := &c.Lidars[i]
		if err := l.Validate(); err != nil {
			return err
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate lidar name %q", l.Name)
		}
		seen[l.Name] = true
	}
	return c.validateBindings()
}

type binding struct {
	lidar   string
	address string
	port    int
}

func wildcard(address string) bool {
	return address == "" || address == "0.0.0.0"
}

// validateBindings rejects two live lidars that would bind the same UDP
// port on overlapping addresses.
func (c *Config) validateBindings() error {
	var bound []binding
	for i := range c.Lidars {
		l := &c.Lidars[i]
		if l.Replay != nil {
			continue
		}
		ports := []int{l.GetFiringPort()}
		if l.GetModel().Family.SeparatePositioningPort() {
			ports = append(ports, l.GetPositioningPort())
		}
		for _, port := range ports {
			for _, b := range bound {
				if b.port != port {
					continue
				}
				if b.address == l.Address || wildcard(b.address) || wildcard(l.Address) {
					return fmt.Errorf("lidars %q and %q both bind UDP port %d", b.lidar, l.Name, port)
				}
			}
			bound = append(bound, binding{lidar: l.Name, address: l.Address, port: port})
		}
	}
	return nil
}

// Validate checks one lidar entry.
func (l *Lidar) Validate() error {
	if l.Name == "" {
		return errors.New("lidar name is required")
	}
	if _, err := parse.LookupModel(l.Model); err != nil {
		return fmt.Errorf("lidar %q: %w", l.Name, err)
	}
	for name, p := range map[string]*int{"firing_port": l.FiringPort, "positioning_port": l.PositioningPort} {
		if err := validPort(name, p); err != nil {
			return fmt.Errorf("lidar %q: %w", l.Name, err)
		}
	}
	if l.GetModel().Family.SeparatePositioningPort() && l.GetFiringPort() == l.GetPositioningPort() {
		return fmt.Errorf("lidar %q: firing_port and positioning_port must differ, both %d", l.Name, l.GetFiringPort())
	}
	if err := validDuration("poll_timeout", l.PollTimeout); err != nil {
		return fmt.Errorf("lidar %q: %w", l.Name, err)
	}
	if l.ReceiveBuffer != nil && *l.ReceiveBuffer < 0 {
		return fmt.Errorf("lidar %q: receive_buffer must be non-negative, got %d", l.Name, *l.ReceiveBuffer)
	}
	if l.PacketRate != nil && *l.PacketRate <= 0 {
		return fmt.Errorf("lidar %q: packet_rate must be positive, got %g", l.Name, *l.PacketRate)
	}
	if l.DriftTolerance != nil && *l.DriftTolerance < 0 {
		return fmt.Errorf("lidar %q: drift_tolerance_us must be non-negative, got %d", l.Name, *l.DriftTolerance)
	}
	if r := l.Replay; r != nil {
		switch {
		case r.Live && r.Interface == "":
			return fmt.Errorf("lidar %q: live replay needs an interface", l.Name)
		case !r.Live && r.File == "":
			return fmt.Errorf("lidar %q: replay needs a file", l.Name)
		}
		if err := validDuration("repeat_delay", r.RepeatDelay); err != nil {
			return fmt.Errorf("lidar %q: %w", l.Name, err)
		}
	}
	if len(l.Cameras) == 0 {
		return fmt.Errorf("lidar %q: at least one camera is required", l.Name)
	}
	for _, c := range l.Cameras {
		if c.Device == "" {
			return fmt.Errorf("lidar %q: camera %q: device is required", l.Name, c.Name)
		}
		if c.Angle < 0 || c.Angle > 359 {
			return fmt.Errorf("lidar %q: camera %q: angle must be within 0..359, got %d", l.Name, c.Name, c.Angle)
		}
		if c.FPS != nil && *c.FPS <= 0 {
			return fmt.Errorf("lidar %q: camera %q: fps must be positive, got %g", l.Name, c.Name, *c.FPS)
		}
		if c.Height != nil && *c.Height < 0 {
			return fmt.Errorf("lidar %q: camera %q: height must be non-negative, got %d", l.Name, c.Name, *c.Height)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetStatusInterval returns the status_interval value or the default.
func (c *Config) GetStatusInterval() time.Duration {
	return durationOr(c.StatusInterval, DefaultStatusInterval)
}

// GetModel resolves the model name. Validate has already checked it.
func (l *Lidar) GetModel() parse.Model {
	m, _ := parse.LookupModel(l.Model)
	return m
}

// GetFiringPort returns the firing_port value or the default.
func (l *Lidar) GetFiringPort() int {
	if l.FiringPort == nil {
		return parse.DefaultFiringPort
	}
	return *l.FiringPort
}

// GetPositioningPort returns the positioning_port value or the model's
// factory GPS port.
func (l *Lidar) GetPositioningPort() int {
	if l.PositioningPort == nil {
		return l.GetModel().Family.DefaultPositioningPort()
	}
	return *l.PositioningPort
}

// GetReceiveBuffer returns the receive_buffer value, 0 meaning the
// kernel default.
func (l *Lidar) GetReceiveBuffer() int {
	if l.ReceiveBuffer == nil {
		return 0
	}
	return *l.ReceiveBuffer
}

// GetPollTimeout returns the poll_timeout value or the default.
func (l *Lidar) GetPollTimeout() time.Duration {
	return durationOr(l.PollTimeout, DefaultPollTimeout)
}

// GetMaxTimeouts returns the max_timeouts value or the default.
func (l *Lidar) GetMaxTimeouts() int {
	if l.MaxTimeouts == nil {
		return DefaultMaxTimeouts
	}
	return *l.MaxTimeouts
}

// GetPacketRate returns the packet_rate value or the model's nominal rate.
func (l *Lidar) GetPacketRate() float64 {
	if l.PacketRate == nil {
		return l.GetModel().PacketRate
	}
	return *l.PacketRate
}

// GetDriftTolerance returns the drift_tolerance_us value or the default.
func (l *Lidar) GetDriftTolerance() int64 {
	if l.DriftTolerance == nil {
		return DefaultDriftTolerance
	}
	return *l.DriftTolerance
}

// GetBaseOffset returns the base_offset_us value or the default.
func (l *Lidar) GetBaseOffset() int64 {
	if l.BaseOffset == nil {
		return DefaultBaseOffset
	}
	return *l.BaseOffset
}

// GetGPSWait returns the gps_wait_packets value or the default.
func (l *Lidar) GetGPSWait() int {
	if l.GPSWait == nil {
		return DefaultGPSWait
	}
	return *l.GPSWait
}

// GetRepeatDelay returns the repeat_delay value, zero by default.
func (r *Replay) GetRepeatDelay() time.Duration {
	return durationOr(r.RepeatDelay, 0)
}

// GetFPS returns the fps value or the default.
func (c *Camera) GetFPS() float64 {
	if c.FPS == nil {
		return DefaultCameraFPS
	}
	return *c.FPS
}

// GetHeight returns the height value or the default.
func (c *Camera) GetHeight() int {
	if c.Height == nil {
		return DefaultCameraHeight
	}
	return *c.Height
}

// GetEnabled returns the enabled value, true by default.
func (c *Camera) GetEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// GetExposure returns the exposure_us value or the default.
func (c *Camera) GetExposure() uint32 {
	if c.Exposure == nil {
		return DefaultCameraExposure
	}
	return *c.Exposure
}
