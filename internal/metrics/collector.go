// Package metrics provides in-memory statistics for pipeline runs.
package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Stage names for the collector.
const (
	StageSeed       = "seed"
	StageSync       = "sync"
	StagePreprocess = "preprocess"
	StageTrain      = "train"
	StagePredict    = "predict"
)

// Counter names for the collector.
const (
	CountUploads        = "uploads"
	CountUploadsSkipped = "uploads_skipped"
	CountDownloads      = "downloads"
	CountRows           = "feature_rows"
	CountDegradations   = "degradations"
	CountPredictions    = "predictions"
)

// StageMetrics holds aggregated timings for a single stage.
type StageMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// StageSnapshot provides computed stats from raw stage metrics.
type StageSnapshot struct {
	Stage       string
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
	LastSeconds float64
}

// Snapshot represents the collected statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Stages        []StageSnapshot
	Counters      map[string]int64
	Gauges        map[string]float64
}

// Collector aggregates in-memory run statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*StageMetrics
	last      map[string]time.Duration
	counters  map[string]int64
	gauges    map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		stages:    make(map[string]*StageMetrics),
		last:      make(map[string]time.Duration),
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
	}
}

// getOrCreate returns existing metrics or creates new ones for a stage.
// Caller must hold write lock.
func (c *Collector) getOrCreate(stage string) *StageMetrics {
	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.stages[stage] = m
	}
	return m
}

// RecordStage records one execution of a stage.
func (c *Collector) RecordStage(stage string, duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(stage)
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Failures++
	}
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
	c.last[stage] = duration
}

// Time runs fn and records it under stage.
func (c *Collector) Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.RecordStage(stage, time.Since(start), err)
	return err
}

// Add increments a named counter.
func (c *Collector) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

// Set records the latest value of a named gauge, such as a CV score.
func (c *Collector) Set(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = value
}

// snapshotStage creates a snapshot for a stage, returning nil if no data.
func snapshotStage(stage string, m *StageMetrics, last time.Duration) *StageSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &StageSnapshot{
		Stage:       stage,
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
		LastSeconds: last.Seconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics. Stages are
// sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Counters:      make(map[string]int64, len(c.counters)),
		Gauges:        make(map[string]float64, len(c.gauges)),
	}
	names := make([]string, 0, len(c.stages))
	for name := range c.stages {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if s := snapshotStage(name, c.stages[name], c.last[name]); s != nil {
			snap.Stages = append(snap.Stages, *s)
		}
	}
	for k, v := range c.counters {
		snap.Counters[k] = v
	}
	for k, v := range c.gauges {
		snap.Gauges[k] = v
	}
	return snap
}
