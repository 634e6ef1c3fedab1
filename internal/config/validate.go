package config

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	d := cfg.Device
	if d.Port != "" && d.Address != "" {
		return fmt.Errorf("device: port %q and address %q are mutually exclusive", d.Port, d.Address)
	}
	if d.Port != "" && d.Baud <= 0 {
		return fmt.Errorf("device: baud must be positive, got %d", d.Baud)
	}

	m := cfg.Mount
	if m.StepsPerTurn <= 0 {
		return fmt.Errorf("mount: steps_per_turn must be positive, got %v", m.StepsPerTurn)
	}
	if m.MaxSpeed <= 0 {
		return fmt.Errorf("mount: max_speed must be positive, got %v", m.MaxSpeed)
	}
	if m.SlowFactor <= 0 || m.SlowFactor > 1 {
		return fmt.Errorf("mount: slow_factor must be in (0,1], got %v", m.SlowFactor)
	}
	if m.StopDistanceArcmin <= 0 {
		return fmt.Errorf("mount: stop_distance_arcmin must be positive, got %v", m.StopDistanceArcmin)
	}
	if m.SlowDistanceArcmin <= m.StopDistanceArcmin {
		return fmt.Errorf(
			"mount: slow_distance_arcmin (%v) must be larger than stop_distance_arcmin (%v)",
			m.SlowDistanceArcmin,
			m.StopDistanceArcmin,
		)
	}
	if m.LinkTimeoutMs <= 0 {
		return fmt.Errorf("mount: link_timeout_ms must be positive, got %d", m.LinkTimeoutMs)
	}
	if m.MotionRate < 0 {
		return fmt.Errorf("mount: motion_rate must not be negative, got %v", m.MotionRate)
	}

	s := cfg.Site
	if math.Abs(s.Latitude) > 90 {
		return fmt.Errorf("site: latitude %v out of range", s.Latitude)
	}
	if math.Abs(s.Longitude) > 180 {
		return fmt.Errorf("site: longitude %v out of range", s.Longitude)
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server: listen address is empty")
	}

	p := cfg.Powerbox
	if p.Enabled() {
		if p.Port != "" && p.Address != "" {
			return fmt.Errorf("powerbox: port %q and address %q are mutually exclusive", p.Port, p.Address)
		}
		seen := map[uint16]string{p.MotorCoil: "motor_coil"}
		for i, c := range p.HeaterCoils {
			name := fmt.Sprintf("heater_coils[%d]", i)
			if prev, ok := seen[c]; ok {
				return fmt.Errorf("powerbox: coil %d used by both %s and %s", c, prev, name)
			}
			seen[c] = name
		}
		if p.PollIntervalMs < 0 {
			return fmt.Errorf("powerbox: poll_interval_ms must not be negative")
		}
	}
	return nil
}
