// Metrics primitive tests
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "A test counter")
	c.Inc(nil)
	c.Add(nil, 2)
	if got := c.Get(nil); got != 3 {
		t.Errorf("Get() = %d, want 3", got)
	}

	c.Inc(Labels{"result": "ok"})
	if got := c.Get(Labels{"result": "ok"}); got != 1 {
		t.Errorf("labeled Get() = %d, want 1", got)
	}
	if got := c.Get(Labels{"result": "missing"}); got != 0 {
		t.Errorf("missing labels Get() = %d, want 0", got)
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("test_total", "A test counter")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc(nil)
			}
		}()
	}
	wg.Wait()
	if got := c.Get(nil); got != 1000 {
		t.Errorf("Get() = %d, want 1000", got)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_value", "A test gauge")
	g.Set(nil, 1.09)
	if got := g.Get(nil); got != 1.09 {
		t.Errorf("Get() = %g, want 1.09", got)
	}
	g.Add(nil, -0.09)
	if got := g.Get(nil); got != 1.0 {
		t.Errorf("Get() after Add = %g, want 1", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_seconds", "A test histogram", []float64{0.1, 1, 10})
	h.Observe(nil, 0.05)
	h.Observe(nil, 0.5)
	h.Observe(nil, 50)
	if got := h.Count(nil); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()
	for _, want := range []string{
		`test_seconds_bucket{le="0.1"} 1`,
		`test_seconds_bucket{le="1"} 2`,
		`test_seconds_bucket{le="10"} 2`,
		`test_seconds_bucket{le="+Inf"} 3`,
		"test_seconds_sum 50.55",
		"test_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRegistryGather(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("runs_total", "Runs")
	g := NewGauge("offset_mm", "Offset")
	r.MustRegister(c)
	r.MustRegister(g)

	c.Inc(Labels{"result": "ok"})
	g.Set(nil, -0.21)

	out := r.Gather()
	for _, want := range []string{
		"# HELP runs_total Runs",
		"# TYPE runs_total counter",
		`runs_total{result="ok"} 1`,
		"# TYPE offset_mm gauge",
		"offset_mm -0.21",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("gather output missing %q:\n%s", want, out)
		}
	}

	// Registration order is preserved
	if strings.Index(out, "runs_total") > strings.Index(out, "offset_mm") {
		t.Error("metrics not rendered in registration order")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewCounter("dup_total", "First"))
	if err := r.Register(NewCounter("dup_total", "Second")); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestLabelEscaping(t *testing.T) {
	g := NewGauge("test_value", "A test gauge")
	g.Set(Labels{"msg": `quote " and \ back`}, 1)
	var sb strings.Builder
	g.Write(&sb)
	if !strings.Contains(sb.String(), `{msg="quote \" and \\ back"}`) {
		t.Errorf("labels not escaped: %s", sb.String())
	}
}

func TestCalibrationMetrics(t *testing.T) {
	m := NewCalibrationMetrics()
	m.RunsStarted.Inc(nil)
	m.RecordSuccess(2.0, 2.8, 1.09)
	m.RecordFailure("PROBE_NO_TRIGGER")

	out := m.Gather()
	for _, want := range []string{
		"auto_offset_z_runs_started_total 1",
		`auto_offset_z_runs_done_total{result="ok"} 1`,
		`auto_offset_z_runs_done_total{result="PROBE_NO_TRIGGER"} 1`,
		"auto_offset_z_last_offset_mm 1.09",
		"auto_offset_z_last_endstop_z_mm 2",
		"auto_offset_z_last_bed_z_mm 2.8",
		"auto_offset_z_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("gather output missing %q", want)
		}
	}
}
