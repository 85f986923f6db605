// Printer adapts the Moonraker client to the calibration collaborator
// interfaces: leveling/homing status, toolhead motion and the probe
// primitive.
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package moonraker

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
	"github.com/hawkeyexp/auto-offset-z/pkg/offset"
)

// Printer exposes a running Klipper host as calibration collaborators.
type Printer struct {
	client *Client

	// levelingObject is the printer object whose applied flag gates a
	// run: "quad_gantry_level" or "z_tilt".
	levelingObject string
}

// NewPrinter creates a Printer querying the given leveling object.
func NewPrinter(client *Client, levelingObject string) *Printer {
	return &Printer{client: client, levelingObject: levelingObject}
}

// LevelingApplied reads the leveling subsystem's applied flag. Klipper
// resets it on homing and restart, so it reflects the current session only.
func (p *Printer) LevelingApplied(ctx context.Context) (bool, error) {
	status, err := p.client.QueryObjects(ctx, map[string][]string{
		p.levelingObject: {"applied"},
	})
	if err != nil {
		return false, errors.APIError("printer.objects/query", err)
	}
	obj, ok := status[p.levelingObject]
	if !ok {
		return false, errors.New(errors.ErrAPI,
			fmt.Sprintf("printer object %q not available", p.levelingObject))
	}
	switch v := obj["applied"].(type) {
	case bool:
		return v, nil
	case float64:
		// Older hosts report the flag as 0/1
		return v != 0, nil
	default:
		return false, errors.New(errors.ErrAPI,
			fmt.Sprintf("unexpected applied value %v for %s", obj["applied"], p.levelingObject))
	}
}

// HomedAxes returns Klipper's homed_axes string (e.g. "xyz").
func (p *Printer) HomedAxes(ctx context.Context) (string, error) {
	status, err := p.client.QueryObjects(ctx, map[string][]string{
		"toolhead": {"homed_axes"},
	})
	if err != nil {
		return "", errors.APIError("printer.objects/query", err)
	}
	axes, _ := status["toolhead"]["homed_axes"].(string)
	return strings.ToLower(axes), nil
}

// MoveTo issues an absolute G1 move. NaN coordinates are omitted from the
// command, which leaves those axes where they are.
func (p *Printer) MoveTo(ctx context.Context, x, y, z, speed float64) error {
	var sb strings.Builder
	sb.WriteString("G90\nG1")
	for _, axis := range []struct {
		letter string
		value  float64
	}{
		{"X", x}, {"Y", y}, {"Z", z},
	} {
		if !math.IsNaN(axis.value) {
			fmt.Fprintf(&sb, " %s%.3f", axis.letter, axis.value)
		}
	}
	// Klipper feedrates are mm/min
	fmt.Fprintf(&sb, " F%.0f", speed*60)
	return p.client.RunGCode(ctx, sb.String())
}

// ProbeAt runs the PROBE command at the current position and reads back
// the trigger Z from the probe object. Deploy/stow and the trigger timeout
// are the probe driver's own business.
func (p *Printer) ProbeAt(ctx context.Context, pos offset.Position) (float64, error) {
	if err := p.client.RunGCode(ctx, "PROBE"); err != nil {
		return 0, err
	}
	status, err := p.client.QueryObjects(ctx, map[string][]string{
		"probe": {"last_z_result"},
	})
	if err != nil {
		return 0, errors.APIError("printer.objects/query", err)
	}
	z, ok := status["probe"]["last_z_result"].(float64)
	if !ok {
		return 0, errors.New(errors.ErrAPI, "probe reported no last_z_result")
	}
	return z, nil
}

// ApplyZOffset installs the computed offset via SET_GCODE_OFFSET, first
// clearing any existing offset the way the original plugin did.
func (p *Printer) ApplyZOffset(ctx context.Context, zOffset float64) error {
	if err := p.client.RunGCode(ctx, "SET_GCODE_OFFSET Z=0"); err != nil {
		return err
	}
	return p.client.RunGCode(ctx, fmt.Sprintf("SET_GCODE_OFFSET Z=%.6f", zOffset))
}
