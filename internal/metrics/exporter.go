package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter turns a collector snapshot into Prometheus metrics for the node
// exporter textfile collector. Batch runs have no scrape endpoint, so the
// file is rewritten at the end of each run.
//
// Metrics:
//   - escalate_stage_runs_total{stage}
//   - escalate_stage_failures_total{stage}
//   - escalate_stage_last_duration_seconds{stage}
//   - escalate_events_total{name}
//   - escalate_gauge{name}
//   - escalate_last_run_timestamp_seconds
type Exporter struct {
	registry *prometheus.Registry

	stageRuns     *prometheus.GaugeVec
	stageFailures *prometheus.GaugeVec
	stageLast     *prometheus.GaugeVec
	events        *prometheus.GaugeVec
	gauges        *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// NewExporter registers the metrics on a private registry.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		registry: reg,
		stageRuns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escalate_stage_runs_total",
			Help: "Number of times each pipeline stage ran in this process",
		}, []string{"stage"}),
		stageFailures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escalate_stage_failures_total",
			Help: "Number of failed runs per pipeline stage",
		}, []string{"stage"}),
		stageLast: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escalate_stage_last_duration_seconds",
			Help: "Duration of the most recent run of each stage",
		}, []string{"stage"}),
		events: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escalate_events_total",
			Help: "Pipeline event counts such as uploads and feature rows",
		}, []string{"name"}),
		gauges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escalate_gauge",
			Help: "Latest value of pipeline measurements such as CV scores",
		}, []string{"name"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "escalate_last_run_timestamp_seconds",
			Help: "Unix time the metrics were last written",
		}),
	}
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Update copies a snapshot into the registered metrics.
func (e *Exporter) Update(snap Snapshot) {
	for _, s := range snap.Stages {
		e.stageRuns.WithLabelValues(s.Stage).Set(float64(s.Count))
		e.stageFailures.WithLabelValues(s.Stage).Set(float64(s.Failures))
		e.stageLast.WithLabelValues(s.Stage).Set(s.LastSeconds)
	}
	for name, v := range snap.Counters {
		e.events.WithLabelValues(name).Set(float64(v))
	}
	for name, v := range snap.Gauges {
		e.gauges.WithLabelValues(name).Set(v)
	}
	e.lastRun.SetToCurrentTime()
}

// WriteTextfile writes the collector's current state to path in the
// Prometheus text format.
func (e *Exporter) WriteTextfile(path string, c *Collector) error {
	e.Update(c.Snapshot())
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
