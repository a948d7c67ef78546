// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records retry and stage telemetry for a pipeline run on a
// private Prometheus registry.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Stellven/KBSkills/internal/resilience"
)

const namespace = "kbskills"

// Recorder owns the run's collectors.
type Recorder struct {
	registry      *prometheus.Registry
	retries       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_total",
			Help:      "Retries of external calls by operation.",
		}, []string{"operation"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that ended in an error or a degraded result.",
		}, []string{"stage"}),
	}
	r.registry.MustRegister(r.retries, r.stageDuration, r.stageFailures)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveRetry counts one retry. Its signature matches resilience.Policy.Notify.
func (r *Recorder) ObserveRetry(ev resilience.RetryEvent) {
	r.retries.WithLabelValues(ev.Operation).Inc()
}

// ObserveStage records a stage's duration, and a failure when err is non-nil.
func (r *Recorder) ObserveStage(stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

// Summary renders the collected values as sorted human-readable lines.
func (r *Recorder) Summary() ([]string, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			label := ""
			if pairs := m.GetLabel(); len(pairs) > 0 {
				label = pairs[0].GetValue()
			}
			switch mf.GetName() {
			case namespace + "_retry_total":
				lines = append(lines, fmt.Sprintf("retries    %-16s %d", label, int(m.GetCounter().GetValue())))
			case namespace + "_stage_duration_seconds":
				h := m.GetHistogram()
				d := time.Duration(h.GetSampleSum() * float64(time.Second)).Round(time.Millisecond)
				lines = append(lines, fmt.Sprintf("stage      %-16s %s", label, d))
			case namespace + "_stage_failures_total":
				lines = append(lines, fmt.Sprintf("failures   %-16s %d", label, int(m.GetCounter().GetValue())))
			}
		}
	}
	sort.Strings(lines)
	return lines, nil
}
