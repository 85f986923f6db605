// Unified error handling for auto-offset-z
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Precondition errors - calibration refused before any motion
	ErrPreconditionLeveling ErrorCode = "PRECONDITION_LEVELING"
	ErrPreconditionHoming   ErrorCode = "PRECONDITION_HOMING"

	// Probe errors
	ErrProbeNoTrigger  ErrorCode = "PROBE_NO_TRIGGER"
	ErrProbeOutOfRange ErrorCode = "PROBE_OUT_OF_RANGE"

	// Motion runtime errors, propagated unchanged from the host
	ErrMotion ErrorCode = "MOTION"

	// Offset calculation errors
	ErrCalcInvalidSample ErrorCode = "CALC_INVALID_SAMPLE"

	// Moonraker API transport errors
	ErrAPI ErrorCode = "API"
)

// CalibrationError is the unified error type for the calibration tool.
type CalibrationError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section context (if applicable)
	Section string

	// Option is the config option name (if applicable)
	Option string

	// PointX, PointY identify the probe point involved (if applicable)
	PointX, PointY float64
	HasPoint       bool

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *CalibrationError) Error() string {
	if e.HasPoint {
		return fmt.Sprintf("[%s] %s (point %.3f,%.3f)", e.Code, e.Message, e.PointX, e.PointY)
	}
	if e.Section != "" && e.Option != "" {
		return fmt.Sprintf("[%s] option '%s' in section '%s': %s", e.Code, e.Option, e.Section, e.Message)
	}
	if e.Section != "" {
		return fmt.Sprintf("[%s] section '%s': %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CalibrationError) Unwrap() error {
	return e.Err
}

// SetSection sets the config section context
func (e *CalibrationError) SetSection(section string) *CalibrationError {
	e.Section = section
	return e
}

// SetOption sets the config option context
func (e *CalibrationError) SetOption(option string) *CalibrationError {
	e.Option = option
	return e
}

// SetPoint attaches the XY probe point the error refers to
func (e *CalibrationError) SetPoint(x, y float64) *CalibrationError {
	e.PointX, e.PointY = x, y
	e.HasPoint = true
	return e
}

// New creates a new CalibrationError
func New(code ErrorCode, message string) *CalibrationError {
	return &CalibrationError{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *CalibrationError {
	return &CalibrationError{Code: code, Message: message, Err: err}
}

// ConfigSectionError creates an error for a missing config section
func ConfigSectionError(section string) *CalibrationError {
	return New(ErrConfigSection, "section not found").SetSection(section)
}

// ConfigOptionError creates an error for a missing or invalid config option
func ConfigOptionError(section, option, reason string) *CalibrationError {
	return New(ErrConfigOption, reason).SetSection(section).SetOption(option)
}

// ConfigValidationError creates an error for a config validation failure
func ConfigValidationError(section, option, reason string) *CalibrationError {
	return New(ErrConfigValidation, reason).SetSection(section).SetOption(option)
}

// LevelingNotAppliedError is returned when gantry leveling has not run
// in the current session. No motion has been issued when this is returned.
func LevelingNotAppliedError(subsystem string) *CalibrationError {
	return New(ErrPreconditionLeveling,
		fmt.Sprintf("gantry leveling (%s) has not been applied - run it first", subsystem))
}

// NotHomedError is returned when one or more axes are not homed.
func NotHomedError(axes string) *CalibrationError {
	return New(ErrPreconditionHoming,
		fmt.Sprintf("axes %q must be homed first", axes))
}

// NoTriggerError creates an error for a probe that failed to trigger at a point
func NoTriggerError(x, y float64, err error) *CalibrationError {
	return Wrap(err, ErrProbeNoTrigger, "probe did not trigger").SetPoint(x, y)
}

// OutOfRangeError creates an error for a travel target outside the machine envelope
func OutOfRangeError(x, y float64, reason string) *CalibrationError {
	return New(ErrProbeOutOfRange, reason).SetPoint(x, y)
}

// MotionError wraps a motion runtime failure
func MotionError(err error) *CalibrationError {
	return Wrap(err, ErrMotion, "motion command failed")
}

// InvalidSampleError creates an error for a non-finite probe measurement
func InvalidSampleError(which string, z float64) *CalibrationError {
	return New(ErrCalcInvalidSample,
		fmt.Sprintf("%s sample %v is not a usable measurement", which, z))
}

// APIError wraps a Moonraker transport failure
func APIError(method string, err error) *CalibrationError {
	return Wrap(err, ErrAPI, fmt.Sprintf("moonraker call %s failed", method))
}

// Is checks if an error carries the given error code
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if ce, ok := err.(*CalibrationError); ok && ce.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// As finds the first error in err's chain matching target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// IsConfig checks if the error is any configuration error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation)
}

// IsPrecondition checks if the error is a precondition failure
func IsPrecondition(err error) bool {
	return Is(err, ErrPreconditionLeveling) || Is(err, ErrPreconditionHoming)
}
