// Auto Z offset calibration - core types
//
// Go port of the auto_offset_z Klipper plugin.
//
// Copyright (C) 2022  Marc Hillesheim <marc.hillesheim@outlook.de>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package offset

import (
	"fmt"

	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
)

// Position is an XY machine coordinate.
type Position struct {
	X float64
	Y float64
}

func (p Position) String() string {
	return fmt.Sprintf("%.3f,%.3f", p.X, p.Y)
}

// Envelope is the machine's XY travel range, read from the stepper sections.
type Envelope struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Contains reports whether p lies within the envelope.
func (e Envelope) Contains(p Position) bool {
	return p.X >= e.XMin && p.X <= e.XMax && p.Y >= e.YMin && p.Y <= e.YMax
}

// ProbeSample is a single measurement: the Z at which the probe reported
// contact, tagged with the XY location it was taken at.
type ProbeSample struct {
	Position Position
	Z        float64
}

// CalibrationResult holds the computed offset plus the raw samples it was
// derived from, for diagnostic reporting.
//
// Sign convention: a negative Offset means the nozzle must move closer to
// the bed before printing, matching SET_GCODE_OFFSET / babystepping
// semantics (lowering the working offset is a negative adjustment).
type CalibrationResult struct {
	Endstop ProbeSample // z measured at the endstop pin
	Bed     ProbeSample // z measured at the bed reference point

	Overtravel   float64 // switch overtravel compensation applied
	ManualAdjust float64 // user correction applied
	Offset       float64 // final computed gcode Z offset
}

// Report formats the diagnostic summary in the style the original plugin
// printed to the console.
func (r *CalibrationResult) Report() string {
	return fmt.Sprintf(
		"Bed: %.6f\nEndstop: %.6f\nDiff: %.6f\nOvertravel: %.6f\nManual Adjust: %.6f\nTotal Calculated Offset: %.6f",
		r.Bed.Z, r.Endstop.Z, r.Bed.Z-r.Endstop.Z, r.Overtravel, r.ManualAdjust, r.Offset)
}

// Config is the immutable calibration configuration, loaded once at startup.
type Config struct {
	// CenterPosition is the bed reference probe point.
	CenterPosition Position

	// EndstopPosition is the XY location of the physical Z endstop pin.
	EndstopPosition Position

	// ProbeOffset is the probe-to-nozzle XY offset; travel targets are
	// shifted by it so the probe (not the nozzle) ends up over the point.
	ProbeOffset Position

	// TravelSpeed is the XY travel speed (mm/s).
	TravelSpeed float64

	// HopHeight is the safety clearance used for all horizontal travel.
	HopHeight float64

	// HopSpeed is the Z lift speed (mm/s).
	HopSpeed float64

	// ManualOffsetAdjustment is a user-supplied empirical correction for
	// switch-to-switch variance beyond the nominal overtravel.
	ManualOffsetAdjustment float64

	// EndstopOvertravel is the switch actuation travel past first contact.
	// Nominally 0.5 but switch-dependent, hence configurable.
	EndstopOvertravel float64

	// LevelingKind names the leveling subsystem whose applied flag gates a
	// run: "quad_gantry_level" or "z_tilt".
	LevelingKind string

	// Envelope is the machine XY travel range used for bounds validation.
	Envelope Envelope
}

// travelTarget returns the XY position the toolhead must move to so the
// probe sits over point.
func (c *Config) travelTarget(point Position) Position {
	return Position{X: point.X - c.ProbeOffset.X, Y: point.Y - c.ProbeOffset.Y}
}

// Validate checks the configuration invariants: both probe points (and the
// travel targets they imply) must lie within the machine envelope, and all
// speeds and the hop height must be positive.
func (c *Config) Validate() error {
	for _, pt := range []struct {
		name string
		pos  Position
	}{
		{"center_xy_position", c.CenterPosition},
		{"endstop_xy_position", c.EndstopPosition},
	} {
		if !c.Envelope.Contains(pt.pos) {
			return errors.ConfigValidationError(SectionName, pt.name,
				fmt.Sprintf("position %s outside machine travel range", pt.pos))
		}
		if target := c.travelTarget(pt.pos); !c.Envelope.Contains(target) {
			return errors.ConfigValidationError(SectionName, pt.name,
				fmt.Sprintf("travel target %s (after probe offset) outside machine travel range", target))
		}
	}
	if c.TravelSpeed <= 0 {
		return errors.ConfigValidationError(SectionName, "speed", "must be above 0")
	}
	if c.HopHeight <= 0 {
		return errors.ConfigValidationError(SectionName, "z_hop", "must be above 0")
	}
	if c.HopSpeed <= 0 {
		return errors.ConfigValidationError(SectionName, "z_hop_speed", "must be above 0")
	}
	if c.EndstopOvertravel < 0 {
		return errors.ConfigValidationError(SectionName, "endstop_overtravel", "must not be negative")
	}
	switch c.LevelingKind {
	case LevelingQGL, LevelingZTilt:
	default:
		return errors.ConfigValidationError(SectionName, "",
			fmt.Sprintf("unknown leveling subsystem %q", c.LevelingKind))
	}
	return nil
}
