// Configuration loading and validation tests
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package offset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkeyexp/auto-offset-z/pkg/config"
	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
)

const baseConfig = `
[stepper_x]
position_min: 0
position_max: 360

[stepper_y]
position_min: 0
position_max: 370

[stepper_z]
endstop_pin: PG10
position_max: 340

[bltouch]
x_offset: -24
y_offset: -13

[quad_gantry_level]
gantry_corners:
  -60,-10
  410,420
points:
  50,25
  50,275
  300,275
  300,25

[auto_offset_z]
center_xy_position: 150,150
endstop_xy_position: 232.5,355
speed: 100
z_hop: 10
z_hop_speed: 15
offsetadjust: -0.21
`

func loadFrom(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg, err := config.LoadString(data)
	require.NoError(t, err)
	return LoadConfig(cfg)
}

func TestLoadConfig(t *testing.T) {
	c, err := loadFrom(t, baseConfig)
	require.NoError(t, err)

	assert.Equal(t, Position{X: 150, Y: 150}, c.CenterPosition)
	assert.Equal(t, Position{X: 232.5, Y: 355}, c.EndstopPosition)
	assert.Equal(t, Position{X: -24, Y: -13}, c.ProbeOffset)
	assert.Equal(t, 100.0, c.TravelSpeed)
	assert.Equal(t, 10.0, c.HopHeight)
	assert.Equal(t, 15.0, c.HopSpeed)
	assert.Equal(t, -0.21, c.ManualOffsetAdjustment)
	assert.Equal(t, DefaultEndstopOvertravel, c.EndstopOvertravel)
	assert.Equal(t, LevelingQGL, c.LevelingKind)
	assert.Equal(t, Envelope{XMin: 0, XMax: 360, YMin: 0, YMax: 370}, c.Envelope)
}

func TestLoadConfigDefaults(t *testing.T) {
	data := strings.Replace(baseConfig, "speed: 100\nz_hop: 10\nz_hop_speed: 15\noffsetadjust: -0.21\n", "", 1)
	c, err := loadFrom(t, data)
	require.NoError(t, err)
	assert.Equal(t, 50.0, c.TravelSpeed)
	assert.Equal(t, 10.0, c.HopHeight)
	assert.Equal(t, 15.0, c.HopSpeed)
	assert.Equal(t, 0.0, c.ManualOffsetAdjustment)
}

func TestLoadConfigOvertravelOption(t *testing.T) {
	data := strings.Replace(baseConfig, "offsetadjust: -0.21",
		"offsetadjust: -0.21\nendstop_overtravel: 0.35", 1)
	c, err := loadFrom(t, data)
	require.NoError(t, err)
	assert.Equal(t, 0.35, c.EndstopOvertravel)
}

func TestLoadConfigMissingSection(t *testing.T) {
	data := strings.Replace(baseConfig, "[auto_offset_z]", "[other]", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigSection))
}

func TestLoadConfigZTiltFallback(t *testing.T) {
	data := strings.Replace(baseConfig, "[quad_gantry_level]", "[z_tilt]", 1)
	c, err := loadFrom(t, data)
	require.NoError(t, err)
	assert.Equal(t, LevelingZTilt, c.LevelingKind)
}

func TestLoadConfigNoLeveling(t *testing.T) {
	data := strings.Replace(baseConfig, "[quad_gantry_level]", "[unrelated]", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigSection))
}

func TestLoadConfigNoProbe(t *testing.T) {
	data := strings.Replace(baseConfig, "[bltouch]", "[fan]", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigSection))
}

func TestLoadConfigZeroProbeOffsets(t *testing.T) {
	data := strings.Replace(baseConfig, "x_offset: -24\ny_offset: -13", "x_offset: 0\ny_offset: 0", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))
}

func TestLoadConfigVirtualEndstop(t *testing.T) {
	data := strings.Replace(baseConfig, "endstop_pin: PG10", "endstop_pin: probe:z_virtual_endstop", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))
}

func TestLoadConfigPositionOutsideEnvelope(t *testing.T) {
	data := strings.Replace(baseConfig, "endstop_xy_position: 232.5,355", "endstop_xy_position: 500,355", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))
}

func TestLoadConfigNonPositiveSpeed(t *testing.T) {
	data := strings.Replace(baseConfig, "speed: 100", "speed: 0", 1)
	_, err := loadFrom(t, data)
	require.Error(t, err)
}

func TestValidateTravelTarget(t *testing.T) {
	// The nominal point fits but the probe-offset-shifted travel target
	// does not.
	c, err := loadFrom(t, baseConfig)
	require.NoError(t, err)
	c.EndstopPosition = Position{X: 330, Y: 355}
	// travel target X = 330 - (-24) = 354 < 360, fine
	require.NoError(t, c.Validate())
	c.EndstopPosition = Position{X: 340, Y: 355}
	// travel target X = 364 > 360
	err = c.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))
}
