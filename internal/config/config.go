package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/w1xm/astroid_interface/mount"
	"github.com/w1xm/astroid_interface/powerbox"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Device   DeviceConfig   `yaml:"device"`
	Mount    MountConfig    `yaml:"mount"`
	Site     SiteConfig     `yaml:"site"`
	Server   ServerConfig   `yaml:"server"`
	Powerbox PowerboxConfig `yaml:"powerbox"`
	Influx   InfluxConfig   `yaml:"influx"`
}

// ---- DEVICE ----

// DeviceConfig selects the motion controller: a serial port, or the TCP
// address of a simulator.
type DeviceConfig struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	Address string `yaml:"address"`
}

// ---- MOUNT ----

type MountConfig struct {
	StepsPerTurn float64 `yaml:"steps_per_turn"`
	InvertRA     bool    `yaml:"invert_ra"`
	InvertDE     bool    `yaml:"invert_de"`
	// MaxSpeed is a multiple of the sidereal rate.
	MaxSpeed float32 `yaml:"max_speed"`
	// SlowFactor scales MaxSpeed for the final approach of a goto.
	SlowFactor         float32 `yaml:"slow_factor"`
	SlowDistanceArcmin float64 `yaml:"slow_distance_arcmin"`
	StopDistanceArcmin float64 `yaml:"stop_distance_arcmin"`
	LinkTimeoutMs      int     `yaml:"link_timeout_ms"`
	// MotionRate is the initial manual rate in arcmin/s; zero means MaxSpeed.
	MotionRate float64 `yaml:"motion_rate"`
}

// ---- SITE ----

type SiteConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// ---- SERVER ----

type ServerConfig struct {
	Listen    string `yaml:"listen"`
	StaticDir string `yaml:"static_dir"`
}

// ---- POWERBOX ----

// PowerboxConfig is optional; leave port and address empty to run without one.
type PowerboxConfig struct {
	Port           string   `yaml:"port"`
	Baud           int      `yaml:"baud"`
	Address        string   `yaml:"address"`
	SlaveID        uint8    `yaml:"slave_id"`
	MotorCoil      uint16   `yaml:"motor_coil"`
	HeaterCoils    []uint16 `yaml:"heater_coils"`
	SupplyInput    uint16   `yaml:"supply_input"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
}

// ---- INFLUX ----

type InfluxConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"-"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	m := mount.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Device: DeviceConfig{
			Baud: 115200,
		},
		Mount: MountConfig{
			StepsPerTurn:       m.StepsPerTurn,
			InvertRA:           m.InvertRA,
			InvertDE:           m.InvertDE,
			MaxSpeed:           m.MaxSpeed,
			SlowFactor:         m.GotoSlowSpeed / m.GotoSpeed,
			SlowDistanceArcmin: m.GotoSlowDistance * 60,
			StopDistanceArcmin: m.GotoStopDistance * 60,
			LinkTimeoutMs:      int(m.LinkTimeout / time.Millisecond),
		},
		Server: ServerConfig{
			Listen: ":8502",
		},
		Powerbox: PowerboxConfig{
			Baud:           19200,
			SlaveID:        1,
			PollIntervalMs: 500,
		},
		Influx: InfluxConfig{
			Org:    "w1xm",
			Bucket: "astroid",
		},
	}
}

// Load reads a YAML file on top of the defaults and applies environment
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !(errors.Is(err, fs.ErrNotExist) && path == DefaultPath) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath is allowed to be missing.
const DefaultPath = "astroid.yaml"

// Parse decodes YAML into cfg, keeping the values of absent keys.
func Parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("ASTROID_ADDRESS"); ok && v != "" {
		cfg.Device.Address = v
		cfg.Device.Port = ""
	}
	if v, ok := lookup("INFLUX_SERVER"); ok && v != "" {
		cfg.Influx.Server = v
	}
	if v, ok := lookup("INFLUX_TOKEN"); ok {
		cfg.Influx.Token = v
	}
}

// MountConfig converts the file's units into the controller's.
func (c MountConfig) Config() mount.Config {
	cfg := mount.Config{
		Geometry: mount.Geometry{
			StepsPerTurn: c.StepsPerTurn,
			InvertRA:     c.InvertRA,
			InvertDE:     c.InvertDE,
		},
		MaxSpeed:         c.MaxSpeed,
		GotoSpeed:        c.MaxSpeed,
		GotoSlowSpeed:    c.MaxSpeed * c.SlowFactor,
		GotoSlowDistance: c.SlowDistanceArcmin / 60,
		GotoStopDistance: c.StopDistanceArcmin / 60,
		LinkTimeout:      time.Duration(c.LinkTimeoutMs) * time.Millisecond,
		MotionRate:       c.MotionRate,
	}
	if cfg.MotionRate == 0 {
		cfg.MotionRate = float64(c.MaxSpeed) * mount.SiderealRate
	}
	return cfg
}

func (c SiteConfig) Site() mount.Site {
	return mount.Site{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Elevation: c.Elevation,
	}
}

// Enabled reports whether a power box is configured.
func (c PowerboxConfig) Enabled() bool {
	return c.Port != "" || c.Address != ""
}

func (c PowerboxConfig) Config() powerbox.Config {
	return powerbox.Config{
		Port:         c.Port,
		BaudRate:     c.Baud,
		Address:      c.Address,
		SlaveID:      c.SlaveID,
		MotorCoil:    c.MotorCoil,
		HeaterCoils:  c.HeaterCoils,
		SupplyInput:  c.SupplyInput,
		PollInterval: time.Duration(c.PollIntervalMs) * time.Millisecond,
	}
}
