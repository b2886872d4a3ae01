// Package metrics provides in-memory runtime statistics for model and tool
// invocations.
package metrics

import (
	"math"
	"sync"
	"time"
)

// callMetrics holds aggregated metrics for one call kind.
type callMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token counts; only model calls populate these.
	InputTokens  int64
	OutputTokens int64
}

// CallSnapshot provides computed stats for one call kind.
type CallSnapshot struct {
	Count        int64   `json:"count"`
	Failures     int64   `json:"failures,omitempty"`
	TotalTimeMs  int64   `json:"total_time_ms"`
	AvgTimeMs    float64 `json:"avg_time_ms"`
	MinTimeMs    int64   `json:"min_time_ms"`
	MaxTimeMs    int64   `json:"max_time_ms"`
	InputTokens  int64   `json:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
}

// Snapshot is the full statistics view at a point in time.
type Snapshot struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	Cycles        *CallSnapshot           `json:"cycles,omitempty"`
	ModelCalls    map[string]CallSnapshot `json:"model_calls,omitempty"`
	ToolCalls     map[string]CallSnapshot `json:"tool_calls,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are safe for concurrent use.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	cycles    *callMetrics
	models    map[string]*callMetrics
	tools     map[string]*callMetrics
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		models:    make(map[string]*callMetrics),
		tools:     make(map[string]*callMetrics),
	}
}

func newCallMetrics() *callMetrics {
	return &callMetrics{MinTime: time.Duration(math.MaxInt64)}
}

func (m *callMetrics) record(elapsed time.Duration, failed bool) {
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += elapsed
	if elapsed < m.MinTime {
		m.MinTime = elapsed
	}
	if elapsed > m.MaxTime {
		m.MaxTime = elapsed
	}
}

// RecordModelCall records one model invocation in the given mode.
func (c *Collector) RecordModelCall(mode string, elapsed time.Duration, inputTokens, outputTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.models[mode]
	if !ok {
		m = newCallMetrics()
		c.models[mode] = m
	}
	m.record(elapsed, false)
	m.InputTokens += int64(inputTokens)
	m.OutputTokens += int64(outputTokens)
}

// RecordToolCall records one tool invocation.
func (c *Collector) RecordToolCall(name string, elapsed time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.tools[name]
	if !ok {
		m = newCallMetrics()
		c.tools[name] = m
	}
	m.record(elapsed, failed)
}

// RecordCycle records one complete question-answer cycle.
func (c *Collector) RecordCycle(elapsed time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycles == nil {
		c.cycles = newCallMetrics()
	}
	c.cycles.record(elapsed, failed)
}

// Snapshot returns the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Cycles:        snapshotCall(c.cycles),
	}
	if len(c.models) > 0 {
		snap.ModelCalls = make(map[string]CallSnapshot, len(c.models))
		for mode, m := range c.models {
			snap.ModelCalls[mode] = *snapshotCall(m)
		}
	}
	if len(c.tools) > 0 {
		snap.ToolCalls = make(map[string]CallSnapshot, len(c.tools))
		for name, m := range c.tools {
			snap.ToolCalls[name] = *snapshotCall(m)
		}
	}
	return snap
}

func snapshotCall(m *callMetrics) *CallSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &CallSnapshot{
		Count:        m.Count,
		Failures:     m.Failures,
		TotalTimeMs:  m.TotalTime.Milliseconds(),
		AvgTimeMs:    float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:    m.MinTime.Milliseconds(),
		MaxTimeMs:    m.MaxTime.Milliseconds(),
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
	}
}
