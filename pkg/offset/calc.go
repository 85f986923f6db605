// Auto Z offset calibration - offset arithmetic
//
// Copyright (C) 2022  Marc Hillesheim <marc.hillesheim@outlook.de>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package offset

import (
	"math"

	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
)

// ComputeOffset derives the final gcode Z offset from the endstop sample
// (z1) and the bed sample (z2).
//
// The endstop switch requires a minimum overtravel past the point where the
// nozzle would contact the pin before it triggers, so z1 measured a point
// past the true datum; the bed reading has no such mechanism. The raw
// difference is therefore corrected by adding the overtravel back, plus the
// user's empirical adjustment:
//
//	offset = (z2 - z1) + overtravel + offsetadjust
//
// Pure function; identical inputs always yield identical results.
func ComputeOffset(z1, z2 float64, cfg *Config) (float64, error) {
	if !isFiniteSample(z1) {
		return 0, errors.InvalidSampleError("endstop", z1)
	}
	if !isFiniteSample(z2) {
		return 0, errors.InvalidSampleError("bed", z2)
	}
	return (z2 - z1) + cfg.EndstopOvertravel + cfg.ManualOffsetAdjustment, nil
}

func isFiniteSample(z float64) bool {
	return !math.IsNaN(z) && !math.IsInf(z, 0)
}

// newResult assembles the diagnostic result for a completed run.
func newResult(endstop, bed ProbeSample, offset float64, cfg *Config) *CalibrationResult {
	return &CalibrationResult{
		Endstop:      endstop,
		Bed:          bed,
		Overtravel:   cfg.EndstopOvertravel,
		ManualAdjust: cfg.ManualOffsetAdjustment,
		Offset:       offset,
	}
}
