// Prometheus text format metrics
//
// Counter, Gauge and Histogram primitives plus a registry that renders
// them in the Prometheus exposition format.
//
// Copyright (C) 2026  Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are metric labels as key-value pairs.
type Labels map[string]string

// labelKey generates a stable map key for a label set.
func labelKey(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

// formatLabels renders a label set in exposition format.
func formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeLabel(labels[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func copyLabels(labels Labels) Labels {
	result := make(Labels, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

// Metric is the interface shared by all metric types.
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

func writeHeader(sb *strings.Builder, name, help, typ string) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	values sync.Map // labelKey -> *counterValue
}

type counterValue struct {
	labels Labels
	value  uint64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string { return c.name }

// Inc increments the counter by 1.
func (c *Counter) Inc(labels Labels) {
	c.Add(labels, 1)
}

// Add increments the counter by delta.
func (c *Counter) Add(labels Labels, delta uint64) {
	val, _ := c.values.LoadOrStore(labelKey(labels), &counterValue{labels: labels})
	atomic.AddUint64(&val.(*counterValue).value, delta)
}

// Get returns the current value for a label set.
func (c *Counter) Get(labels Labels) uint64 {
	val, ok := c.values.Load(labelKey(labels))
	if !ok {
		return 0
	}
	return atomic.LoadUint64(&val.(*counterValue).value)
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c.name, c.help, "counter")
	c.values.Range(func(_, value interface{}) bool {
		cv := value.(*counterValue)
		fmt.Fprintf(sb, "%s%s %d\n", c.name, formatLabels(cv.labels),
			atomic.LoadUint64(&cv.value))
		return true
	})
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	name   string
	help   string
	values sync.Map // labelKey -> *gaugeValue
}

type gaugeValue struct {
	labels Labels
	mu     sync.Mutex
	value  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string { return g.name }

func (g *Gauge) load(labels Labels) *gaugeValue {
	val, _ := g.values.LoadOrStore(labelKey(labels), &gaugeValue{labels: labels})
	return val.(*gaugeValue)
}

// Set sets the gauge for a label set.
func (g *Gauge) Set(labels Labels, value float64) {
	gv := g.load(labels)
	gv.mu.Lock()
	gv.value = value
	gv.mu.Unlock()
}

// Add adds delta to the gauge.
func (g *Gauge) Add(labels Labels, delta float64) {
	gv := g.load(labels)
	gv.mu.Lock()
	gv.value += delta
	gv.mu.Unlock()
}

// Get returns the current value for a label set.
func (g *Gauge) Get(labels Labels) float64 {
	val, ok := g.values.Load(labelKey(labels))
	if !ok {
		return 0
	}
	gv := val.(*gaugeValue)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.value
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g.name, g.help, "gauge")
	g.values.Range(func(_, value interface{}) bool {
		gv := value.(*gaugeValue)
		gv.mu.Lock()
		v := gv.value
		gv.mu.Unlock()
		fmt.Fprintf(sb, "%s%s %s\n", g.name, formatLabels(gv.labels), formatFloat(v))
		return true
	})
}

// Histogram tracks the distribution of observations in cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	values  sync.Map // labelKey -> *histogramValue
}

type histogramValue struct {
	labels  Labels
	mu      sync.Mutex
	count   uint64
	sum     float64
	buckets []uint64
}

func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, buckets: sorted}
}

// DefaultBuckets suits operation latencies from milliseconds to tens of
// seconds; probing moves land in the upper range.
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
}

func (h *Histogram) Name() string { return h.name }

// Observe records a value.
func (h *Histogram) Observe(labels Labels, value float64) {
	val, _ := h.values.LoadOrStore(labelKey(labels), &histogramValue{
		labels:  labels,
		buckets: make([]uint64, len(h.buckets)),
	})
	hv := val.(*histogramValue)
	hv.mu.Lock()
	hv.count++
	hv.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			hv.buckets[i]++
		}
	}
	hv.mu.Unlock()
}

// Timer returns a function that observes the elapsed time when called.
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() {
		h.Observe(labels, time.Since(start).Seconds())
	}
}

// Count returns the observation count for a label set.
func (h *Histogram) Count(labels Labels) uint64 {
	val, ok := h.values.Load(labelKey(labels))
	if !ok {
		return 0
	}
	hv := val.(*histogramValue)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	return hv.count
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h.name, h.help, "histogram")
	h.values.Range(func(_, value interface{}) bool {
		hv := value.(*histogramValue)
		hv.mu.Lock()
		count := hv.count
		sum := hv.sum
		bucketCounts := make([]uint64, len(hv.buckets))
		copy(bucketCounts, hv.buckets)
		hv.mu.Unlock()

		cumulative := uint64(0)
		for i, bound := range h.buckets {
			cumulative += bucketCounts[i]
			bucketLabels := copyLabels(hv.labels)
			bucketLabels["le"] = formatFloat(bound)
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(bucketLabels), cumulative)
		}
		infLabels := copyLabels(hv.labels)
		infLabels["le"] = "+Inf"
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(infLabels), count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, formatLabels(hv.labels), formatFloat(sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, formatLabels(hv.labels), count)
		return true
	})
}

// Registry holds registered metrics in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric; duplicate names are an error.
func (r *Registry) Register(metric Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := metric.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = metric
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a metric and panics on error.
func (r *Registry) MustRegister(metric Metric) {
	if err := r.Register(metric); err != nil {
		panic(err)
	}
}

// Gather renders all metrics in Prometheus text format.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
