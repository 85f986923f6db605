// Auto Z offset calibration - calibration run sequencing
//
// Probes the physical Z endstop pin and a bed reference point with a
// deployable probe and computes the corrected nozzle-to-bed Z offset.
//
// Copyright (C) 2022  Marc Hillesheim <marc.hillesheim@outlook.de>
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package offset

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hawkeyexp/auto-offset-z/pkg/errors"
	"github.com/hawkeyexp/auto-offset-z/pkg/log"
)

// LevelingMonitor reports whether gantry leveling has been applied in the
// current session. Owned by the leveling subsystem; the calibrator only
// reads it.
type LevelingMonitor interface {
	LevelingApplied(ctx context.Context) (bool, error)
}

// HomingMonitor reports which axes are currently homed, as a string like
// "xyz" (Klipper's homed_axes format).
type HomingMonitor interface {
	HomedAxes(ctx context.Context) (string, error)
}

// Motion issues toolhead moves through the host motion runtime. A NaN
// coordinate leaves that axis at its current position.
type Motion interface {
	MoveTo(ctx context.Context, x, y, z, speed float64) error
}

// Prober invokes the external single-point probe primitive at the current
// XY location and returns the Z at which it triggered. Deploy and stow are
// the driver's concern.
type Prober interface {
	ProbeAt(ctx context.Context, pos Position) (float64, error)
}

// RunState tracks a calibration run's progress. Transitions are one-way:
// Idle -> MovedToEndstop -> ProbedEndstop -> MovedToBed -> ProbedBed ->
// Done, with Aborted reachable from any intermediate state.
type RunState int32

const (
	StateIdle RunState = iota
	StateMovedToEndstop
	StateProbedEndstop
	StateMovedToBed
	StateProbedBed
	StateDone
	StateAborted
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMovedToEndstop:
		return "moved_to_endstop"
	case StateProbedEndstop:
		return "probed_endstop"
	case StateMovedToBed:
		return "moved_to_bed"
	case StateProbedBed:
		return "probed_bed"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Calibrator runs the two-point probing sequence. It assumes exclusive
// ownership of the toolhead for the duration of a run and is not
// re-entrant; a second Run while one is in flight is rejected.
type Calibrator struct {
	cfg      *Config
	leveling LevelingMonitor
	homing   HomingMonitor // optional; nil skips the homed-axes check
	motion   Motion
	prober   Prober
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	state   atomic.Int32
	last    atomic.Pointer[CalibrationResult]
}

// NewCalibrator creates a Calibrator. cfg must already be validated.
func NewCalibrator(cfg *Config, leveling LevelingMonitor, homing HomingMonitor,
	motion Motion, prober Prober, logger *log.Logger) *Calibrator {
	if logger == nil {
		logger = log.New("offset")
	}
	return &Calibrator{
		cfg:      cfg,
		leveling: leveling,
		homing:   homing,
		motion:   motion,
		prober:   prober,
		logger:   logger,
	}
}

// State returns the current run state for diagnostics.
func (c *Calibrator) State() RunState {
	return RunState(c.state.Load())
}

// LastResult returns the most recent completed result, or nil. Aborted runs
// never publish a result.
func (c *Calibrator) LastResult() *CalibrationResult {
	return c.last.Load()
}

// Run executes one full calibration: precondition check, dual-point probe,
// offset computation. Every error aborts the run; no partial offset is ever
// reported, and on any abort after motion began the toolhead is left at hop
// height (best effort).
func (c *Calibrator) Run(ctx context.Context) (*CalibrationResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, errors.New(errors.ErrMotion, "calibration already in progress")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.state.Store(int32(StateIdle))

	result, err := c.run(ctx)
	if err != nil {
		c.state.Store(int32(StateAborted))
		return nil, err
	}
	c.state.Store(int32(StateDone))
	c.last.Store(result)
	return result, nil
}

func (c *Calibrator) run(ctx context.Context) (*CalibrationResult, error) {
	// Preconditions - nothing moves until these pass.
	if err := c.verifyLevelingApplied(ctx); err != nil {
		return nil, err
	}

	// Re-check travel bounds at run time; the envelope may have changed
	// since the config was loaded.
	endstopTarget := c.cfg.travelTarget(c.cfg.EndstopPosition)
	bedTarget := c.cfg.travelTarget(c.cfg.CenterPosition)
	for _, t := range []Position{endstopTarget, bedTarget} {
		if !c.cfg.Envelope.Contains(t) {
			return nil, errors.OutOfRangeError(t.X, t.Y, "travel target outside machine range")
		}
	}

	endstop, bed, err := c.probeTwoPoints(ctx, endstopTarget, bedTarget)
	if err != nil {
		return nil, err
	}

	off, err := ComputeOffset(endstop.Z, bed.Z, c.cfg)
	if err != nil {
		return nil, err
	}

	result := newResult(endstop, bed, off, c.cfg)
	c.logger.WithFields(log.Fields{
		"endstop_z": endstop.Z,
		"bed_z":     bed.Z,
		"offset":    off,
	}).Info("calibration complete")
	return result, nil
}

// verifyLevelingApplied fails the run before any motion if gantry leveling
// has not been applied; without it the two points would not share a
// reference plane. The homed-axes check guards the same way.
func (c *Calibrator) verifyLevelingApplied(ctx context.Context) error {
	if c.homing != nil {
		axes, err := c.homing.HomedAxes(ctx)
		if err != nil {
			return err
		}
		for _, want := range "xyz" {
			found := false
			for _, got := range axes {
				if got == want {
					found = true
					break
				}
			}
			if !found {
				return errors.NotHomedError("xyz")
			}
		}
	}

	applied, err := c.leveling.LevelingApplied(ctx)
	if err != nil {
		return err
	}
	if !applied {
		return errors.LevelingNotAppliedError(c.cfg.LevelingKind)
	}
	return nil
}

// probeTwoPoints runs the fixed hop/travel/probe sequence at the endstop
// point and then the bed point, always in that order. The toolhead finishes
// at hop height on success and, best effort, on failure too.
func (c *Calibrator) probeTwoPoints(ctx context.Context, endstopTarget, bedTarget Position) (endstop, bed ProbeSample, err error) {
	// Clearance lift before any horizontal travel.
	if err = c.hop(ctx); err != nil {
		return
	}

	c.logger.Info("probing endstop at %s ...", c.cfg.EndstopPosition)
	if err = c.moveXY(ctx, endstopTarget); err != nil {
		return
	}
	c.state.Store(int32(StateMovedToEndstop))

	z1, perr := c.prober.ProbeAt(ctx, c.cfg.EndstopPosition)
	if perr != nil {
		abortErr := errors.NoTriggerError(c.cfg.EndstopPosition.X, c.cfg.EndstopPosition.Y, perr)
		c.abortHop(abortErr)
		err = abortErr
		return
	}
	endstop = ProbeSample{Position: c.cfg.EndstopPosition, Z: z1}
	c.state.Store(int32(StateProbedEndstop))

	if err = c.hop(ctx); err != nil {
		return
	}

	if err = ctxErr(ctx); err != nil {
		return
	}

	c.logger.Info("probing bed at %s ...", c.cfg.CenterPosition)
	if err = c.moveXY(ctx, bedTarget); err != nil {
		return
	}
	c.state.Store(int32(StateMovedToBed))

	z2, perr := c.prober.ProbeAt(ctx, c.cfg.CenterPosition)
	if perr != nil {
		abortErr := errors.NoTriggerError(c.cfg.CenterPosition.X, c.cfg.CenterPosition.Y, perr)
		c.abortHop(abortErr)
		err = abortErr
		return
	}
	bed = ProbeSample{Position: c.cfg.CenterPosition, Z: z2}
	c.state.Store(int32(StateProbedBed))

	// Leave the toolhead in a safe state.
	if err = c.hop(ctx); err != nil {
		return
	}
	return
}

// hop raises the toolhead to the configured clearance height.
func (c *Calibrator) hop(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	nan := math.NaN()
	if err := c.motion.MoveTo(ctx, nan, nan, c.cfg.HopHeight, c.cfg.HopSpeed); err != nil {
		return errors.MotionError(err)
	}
	return nil
}

// abortHop attempts a final clearance lift on the failure path. The abort
// error wins; a failed lift is only logged.
func (c *Calibrator) abortHop(cause error) {
	nan := math.NaN()
	if err := c.motion.MoveTo(context.Background(), nan, nan, c.cfg.HopHeight, c.cfg.HopSpeed); err != nil {
		c.logger.WithError(err).Warn("failed to raise toolhead after %v", cause)
	}
}

// moveXY travels horizontally at hop height.
func (c *Calibrator) moveXY(ctx context.Context, target Position) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := c.motion.MoveTo(ctx, target.X, target.Y, c.cfg.HopHeight, c.cfg.TravelSpeed); err != nil {
		return errors.MotionError(err)
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrMotion, "calibration aborted")
	default:
		return nil
	}
}
