// Package metrics exposes batch run metrics in the Prometheus textfile format.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brensch/annualreview/internal/orchestrator"
)

const namespace = "annualreview"

// Collector holds the run metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	acquisitionAttempts prometheus.Counter
	stageEvents         *prometheus.CounterVec
	reportsGenerated    prometheus.Gauge
	lastRunSuccess      prometheus.Gauge
	lastRunTimestamp    prometheus.Gauge
	runDuration         prometheus.Gauge
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		acquisitionAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_attempts_total",
			Help:      "Number of dataset acquisition attempts made by the last run.",
		}),
		stageEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_events_total",
			Help:      "Stage events recorded by the last run.",
		}, []string{"stage", "event"}),
		reportsGenerated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reports_generated",
			Help:      "Reports produced by the last run.",
		}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run acquired a dataset, 0 otherwise.",
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Record implements orchestrator.Recorder.
func (c *Collector) Record(_ context.Context, ev orchestrator.Event) {
	c.stageEvents.WithLabelValues(ev.Stage, ev.Type).Inc()

	switch {
	case ev.Stage == orchestrator.StageAcquire && ev.Type == orchestrator.EventAttempt:
		c.acquisitionAttempts.Inc()
	case ev.Stage == orchestrator.StageGenerate && ev.Type == orchestrator.EventSuccess:
		c.reportsGenerated.Inc()
	case ev.Stage == orchestrator.StageRun && (ev.Type == orchestrator.EventSuccess || ev.Type == orchestrator.EventFailed):
		if ev.Type == orchestrator.EventSuccess {
			c.lastRunSuccess.Set(1)
		} else {
			c.lastRunSuccess.Set(0)
		}
		c.lastRunTimestamp.Set(float64(ev.At.Unix()))
		c.runDuration.Set(ev.Duration.Seconds())
	}
}

// WriteTextfile writes the metrics for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir %s: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
