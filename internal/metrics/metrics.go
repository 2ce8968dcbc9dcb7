// Package metrics holds the engine's Prometheus collectors. Each Metrics
// value owns its registry so several engines can coexist in one process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storylock"

const (
	OutcomeUnlocked = "unlocked"
	OutcomeAlready  = "already_unlocked"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	Registry *prometheus.Registry

	unlockAttempts *prometheus.CounterVec
	checkFailures  *prometheus.CounterVec
	backendErrors  *prometheus.CounterVec
	previews       prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		unlockAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unlock_attempts_total",
				Help:      "Unlock attempts, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		checkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unlock_check_failures_total",
				Help:      "Failed unlock condition checks, partitioned by condition type.",
			},
			[]string{"type"},
		),
		backendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Tolerated backend failures, partitioned by operation.",
			},
			[]string{"op"},
		),
		previews: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "creator_previews_total",
				Help:      "Chapter bodies served to a creator through the grace window.",
			},
		),
	}
}

func (m *Metrics) UnlockAttempt(outcome string) {
	m.unlockAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CheckFailed(checkType string) {
	m.checkFailures.WithLabelValues(checkType).Inc()
}

func (m *Metrics) BackendError(op string) {
	m.backendErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Preview() {
	m.previews.Inc()
}
