// Calibration tool metric set
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"
)

// CalibrationMetrics holds the metrics the offset tool exports.
type CalibrationMetrics struct {
	// Run outcomes
	RunsStarted *Counter
	RunsDone    *Counter // labeled by result: ok / error code
	RunDuration *Histogram

	// Last successful calibration
	LastOffset   *Gauge
	LastEndstopZ *Gauge
	LastBedZ     *Gauge
	LastRunTime  *Gauge // unix seconds

	// Moonraker traffic
	APICallsTotal  *Counter // labeled by method
	APIErrorsTotal *Counter

	// Process
	UptimeSeconds *Gauge
	Goroutines    *Gauge
	HeapBytes     *Gauge

	startTime time.Time
	registry  *Registry
}

// NewCalibrationMetrics creates and registers the full metric set.
func NewCalibrationMetrics() *CalibrationMetrics {
	m := &CalibrationMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),
	}

	m.RunsStarted = NewCounter("auto_offset_z_runs_started_total",
		"Calibration runs started")
	m.RunsDone = NewCounter("auto_offset_z_runs_done_total",
		"Calibration runs finished, labeled by result")
	m.RunDuration = NewHistogram("auto_offset_z_run_duration_seconds",
		"Wall time of a full calibration run", DefaultBuckets())

	m.LastOffset = NewGauge("auto_offset_z_last_offset_mm",
		"Offset computed by the last successful run")
	m.LastEndstopZ = NewGauge("auto_offset_z_last_endstop_z_mm",
		"Endstop probe Z of the last successful run")
	m.LastBedZ = NewGauge("auto_offset_z_last_bed_z_mm",
		"Bed probe Z of the last successful run")
	m.LastRunTime = NewGauge("auto_offset_z_last_run_timestamp_seconds",
		"Unix time of the last successful run")

	m.APICallsTotal = NewCounter("auto_offset_z_api_calls_total",
		"Moonraker RPC calls issued, labeled by method")
	m.APIErrorsTotal = NewCounter("auto_offset_z_api_errors_total",
		"Moonraker RPC calls that failed")

	m.UptimeSeconds = NewGauge("auto_offset_z_uptime_seconds",
		"Process uptime")
	m.Goroutines = NewGauge("auto_offset_z_goroutines",
		"Current goroutine count")
	m.HeapBytes = NewGauge("auto_offset_z_heap_bytes",
		"Heap memory in use")

	for _, metric := range []Metric{
		m.RunsStarted, m.RunsDone, m.RunDuration,
		m.LastOffset, m.LastEndstopZ, m.LastBedZ, m.LastRunTime,
		m.APICallsTotal, m.APIErrorsTotal,
		m.UptimeSeconds, m.Goroutines, m.HeapBytes,
	} {
		m.registry.MustRegister(metric)
	}
	return m
}

// RecordSuccess publishes the samples and offset of a finished run.
func (m *CalibrationMetrics) RecordSuccess(endstopZ, bedZ, offset float64) {
	m.RunsDone.Inc(Labels{"result": "ok"})
	m.LastOffset.Set(nil, offset)
	m.LastEndstopZ.Set(nil, endstopZ)
	m.LastBedZ.Set(nil, bedZ)
	m.LastRunTime.Set(nil, float64(time.Now().Unix()))
}

// RecordFailure counts a failed run under its error code.
func (m *CalibrationMetrics) RecordFailure(code string) {
	m.RunsDone.Inc(Labels{"result": code})
}

// UpdateProcess refreshes the process-level gauges.
func (m *CalibrationMetrics) UpdateProcess() {
	m.UptimeSeconds.Set(nil, time.Since(m.startTime).Seconds())
	m.Goroutines.Set(nil, float64(goruntime.NumGoroutine()))
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	m.HeapBytes.Set(nil, float64(ms.HeapInuse))
}

// Gather refreshes process gauges and renders everything.
func (m *CalibrationMetrics) Gather() string {
	m.UpdateProcess()
	return m.registry.Gather()
}
