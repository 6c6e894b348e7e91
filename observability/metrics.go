// Package observability exposes civicrun's Prometheus metrics registries:
// kernel envelope processing, maintenance sweeps, and the treasury budget
// gauge. The lazy-singleton-per-registry pattern mirrors the teacher's own
// metrics package.
package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type kernelMetrics struct {
	envelopes *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	rollbacks prometheus.Counter
}

var (
	kernelMetricsOnce sync.Once
	kernelRegistry    *kernelMetrics
)

// Kernel returns the lazily-initialised metrics registry tracking envelope
// execution.
func Kernel() *kernelMetrics {
	kernelMetricsOnce.Do(func() {
		kernelRegistry = &kernelMetrics{
			envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "civicrun",
				Subsystem: "kernel",
				Name:      "envelopes_total",
				Help:      "Count of executed envelopes segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "civicrun",
				Subsystem: "kernel",
				Name:      "execute_duration_seconds",
				Help:      "Latency distribution of Kernel.Execute calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "civicrun",
				Subsystem: "kernel",
				Name:      "rollbacks_total",
				Help:      "Count of rollback ring restorations performed.",
			}),
		}
		prometheus.MustRegister(kernelRegistry.envelopes, kernelRegistry.latency, kernelRegistry.rollbacks)
	})
	return kernelRegistry
}

// Observe records the outcome of one Execute call.
func (m *kernelMetrics) Observe(kind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	kind = labelKind(kind)
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.envelopes.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordRollback increments the rollback counter.
func (m *kernelMetrics) RecordRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

type maintenanceMetrics struct {
	escalated *prometheus.CounterVec
	expired   *prometheus.CounterVec
	sweeps    prometheus.Counter
}

var (
	maintenanceMetricsOnce sync.Once
	maintenanceRegistry    *maintenanceMetrics
)

// Maintenance returns the lazily-initialised metrics registry tracking
// periodic sweep activity.
func Maintenance() *maintenanceMetrics {
	maintenanceMetricsOnce.Do(func() {
		maintenanceRegistry = &maintenanceMetrics{
			escalated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "civicrun",
				Subsystem: "maintenance",
				Name:      "jobs_escalated_total",
				Help:      "Count of verification jobs whose pay was escalated, by role.",
			}, []string{"role"}),
			expired: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "civicrun",
				Subsystem: "maintenance",
				Name:      "jobs_expired_total",
				Help:      "Count of verification jobs that expired past deadline, by role.",
			}, []string{"role"}),
			sweeps: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "civicrun",
				Subsystem: "maintenance",
				Name:      "sweeps_total",
				Help:      "Count of maintenance sweeps run.",
			}),
		}
		prometheus.MustRegister(maintenanceRegistry.escalated, maintenanceRegistry.expired, maintenanceRegistry.sweeps)
	})
	return maintenanceRegistry
}

// RecordSweep records one completed sweep's counts.
func (m *maintenanceMetrics) RecordSweep(escalatedByRole, expiredByRole map[string]int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	for role, n := range escalatedByRole {
		m.escalated.WithLabelValues(labelKind(role)).Add(float64(n))
	}
	for role, n := range expiredByRole {
		m.expired.WithLabelValues(labelKind(role)).Add(float64(n))
	}
}

type treasuryMetrics struct {
	remaining *prometheus.GaugeVec
}

var (
	treasuryMetricsOnce sync.Once
	treasuryRegistry    *treasuryMetrics
)

// Treasury returns the lazily-initialised metrics registry tracking the
// weekly treasury budget.
func Treasury() *treasuryMetrics {
	treasuryMetricsOnce.Do(func() {
		treasuryRegistry = &treasuryMetrics{
			remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "civicrun",
				Subsystem: "treasury",
				Name:      "weekly_budget_remaining_cc",
				Help:      "Remaining treasury spend capacity in the current ISO week, by tracked reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(treasuryRegistry.remaining)
	})
	return treasuryRegistry
}

// SetRemaining updates the remaining-budget gauge for reason.
func (m *treasuryMetrics) SetRemaining(reason string, remainingCC int64) {
	if m == nil {
		return
	}
	m.remaining.WithLabelValues(labelKind(reason)).Set(float64(remainingCC))
}

func labelKind(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
