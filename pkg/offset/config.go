// Auto Z offset calibration - configuration loading
//
// Reads the [auto_offset_z] section plus the neighbouring sections the
// original plugin cross-checked: the probe/bltouch offsets, the physical Z
// endstop pin and the leveling subsystem.
//
// Copyright (C) 2022  Marc Hillesheim <marc.hillesheim@outlook.de>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package offset

import (
	"strings"

	"github.com/hawkeyexp/auto-offset-z/pkg/config"
	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
)

// SectionName is the printer.cfg section this tool reads.
const SectionName = "auto_offset_z"

// Leveling subsystem names, matching the printer objects Klipper exposes.
const (
	LevelingQGL   = "quad_gantry_level"
	LevelingZTilt = "z_tilt"
)

// DefaultEndstopOvertravel is the nominal microswitch actuation travel.
// Approximate; real switches vary, which is what offsetadjust is for.
const DefaultEndstopOvertravel = 0.5

// LoadConfig builds a calibration Config from a parsed printer.cfg.
func LoadConfig(cfg *config.Config) (*Config, error) {
	sec, err := cfg.GetSection(SectionName)
	if err != nil {
		return nil, errors.ConfigSectionError(SectionName)
	}

	c := &Config{}
	if c.CenterPosition.X, c.CenterPosition.Y, err = sec.GetXYPosition("center_xy_position"); err != nil {
		return nil, err
	}
	if c.EndstopPosition.X, c.EndstopPosition.Y, err = sec.GetXYPosition("endstop_xy_position"); err != nil {
		return nil, err
	}
	if c.TravelSpeed, err = sec.GetFloatWithBounds("speed", config.Above(0), 50.0); err != nil {
		return nil, err
	}
	if c.HopHeight, err = sec.GetFloatWithBounds("z_hop", config.Above(0), 10.0); err != nil {
		return nil, err
	}
	if c.HopSpeed, err = sec.GetFloatWithBounds("z_hop_speed", config.Above(0), 15.0); err != nil {
		return nil, err
	}
	if c.ManualOffsetAdjustment, err = sec.GetFloat("offsetadjust", 0.0); err != nil {
		return nil, err
	}
	if c.EndstopOvertravel, err = sec.GetFloatWithBounds("endstop_overtravel",
		config.AtLeast(0), DefaultEndstopOvertravel); err != nil {
		return nil, err
	}

	if err := loadProbeOffsets(cfg, c); err != nil {
		return nil, err
	}
	if err := checkEndstopPin(cfg); err != nil {
		return nil, err
	}
	if err := loadLevelingKind(cfg, c); err != nil {
		return nil, err
	}
	if err := loadEnvelope(cfg, c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadProbeOffsets finds the [bltouch] or [probe] section and records its
// XY offsets. Both offsets being zero means the probe would occupy the same
// spot as the nozzle, which is physically impossible.
func loadProbeOffsets(cfg *config.Config, c *Config) error {
	var sec *config.Section
	for _, name := range []string{"bltouch", "probe"} {
		if s := cfg.GetSectionOptional(name); s != nil {
			sec = s
			break
		}
	}
	if sec == nil {
		return errors.New(errors.ErrConfigSection,
			"no [bltouch] or [probe] configured - a deployable probe is required")
	}

	var err error
	if c.ProbeOffset.X, err = sec.GetFloat("x_offset", 0.0); err != nil {
		return err
	}
	if c.ProbeOffset.Y, err = sec.GetFloat("y_offset", 0.0); err != nil {
		return err
	}
	if c.ProbeOffset.X == 0 && c.ProbeOffset.Y == 0 {
		return errors.ConfigValidationError(sec.GetName(), "x_offset",
			"probe x/y offsets are both zero - the probe can't be at the nozzle position")
	}
	return nil
}

// checkEndstopPin verifies the Z endstop is a physical switch. A probe
// virtual endstop cannot serve as the datum this calibration measures from.
func checkEndstopPin(cfg *config.Config) error {
	sec, err := cfg.GetSection("stepper_z")
	if err != nil {
		return errors.ConfigSectionError("stepper_z")
	}
	pin, err := sec.Get("endstop_pin")
	if err != nil {
		return err
	}
	if strings.Contains(pin, "virtual_endstop") {
		return errors.ConfigValidationError("stepper_z", "endstop_pin",
			"probe virtual endstop can't be the Z endstop - a physical endstop is the reference datum")
	}
	return nil
}

// loadLevelingKind selects the leveling subsystem whose applied state gates
// a calibration run.
func loadLevelingKind(cfg *config.Config, c *Config) error {
	switch {
	case cfg.HasSection(LevelingQGL):
		c.LevelingKind = LevelingQGL
	case cfg.HasSection(LevelingZTilt):
		c.LevelingKind = LevelingZTilt
	default:
		return errors.New(errors.ErrConfigSection,
			"requires a [quad_gantry_level] or [z_tilt] section - the gantry must be levelable")
	}
	return nil
}

// loadEnvelope reads the machine XY travel range from the stepper sections.
func loadEnvelope(cfg *config.Config, c *Config) error {
	for _, axis := range []struct {
		section  string
		min, max *float64
	}{
		{"stepper_x", &c.Envelope.XMin, &c.Envelope.XMax},
		{"stepper_y", &c.Envelope.YMin, &c.Envelope.YMax},
	} {
		sec, err := cfg.GetSection(axis.section)
		if err != nil {
			return errors.ConfigSectionError(axis.section)
		}
		if *axis.min, err = sec.GetFloat("position_min", 0.0); err != nil {
			return err
		}
		if *axis.max, err = sec.GetFloat("position_max"); err != nil {
			return err
		}
	}
	return nil
}
