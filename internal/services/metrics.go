package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the custom Prometheus metrics for the pattern lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PatternsGenerated  prometheus.Counter
	GenerationFailures prometheus.Counter
	PatternsEvicted    *prometheus.CounterVec
	Validations        *prometheus.CounterVec
	PatternLookups     *prometheus.CounterVec
	CleanupSkipped     prometheus.Counter
	CleanupLockErrors  prometheus.Counter
}

// NewMetrics registers the pattern metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PatternsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "prismx_patterns_generated_total",
			Help: "Total number of patterns generated and stored",
		}),

		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prismx_pattern_generation_failures_total",
			Help: "Total number of pattern generations that failed to persist",
		}),

		// reason: "retention" or "invalid"
		PatternsEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prismx_patterns_evicted_total",
			Help: "Total number of patterns deleted by retention cleanup or failed validation",
		}, []string{"reason"}),

		// result: "valid", "invalid", "missing", "error"
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prismx_pattern_validations_total",
			Help: "Total number of pattern validations by result",
		}, []string{"result"}),

		// result: "hit", "miss", "error"
		PatternLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prismx_pattern_lookups_total",
			Help: "Total number of pattern lookups by id",
		}, []string{"result"}),

		CleanupSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "prismx_retention_cleanup_skipped_total",
			Help: "Retention cleanup runs skipped because another run held the lock",
		}),

		CleanupLockErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prismx_retention_cleanup_lock_errors_total",
			Help: "Retention cleanup runs that went ahead unlocked because the lock backend failed",
		}),
	}
}

// RecordGenerated records a stored pattern
func (m *Metrics) RecordGenerated() {
	if m == nil {
		return
	}
	m.PatternsGenerated.Inc()
}

// RecordGenerationFailure records a pattern that could not be stored
func (m *Metrics) RecordGenerationFailure() {
	if m == nil {
		return
	}
	m.GenerationFailures.Inc()
}

// RecordEvicted records deleted patterns
func (m *Metrics) RecordEvicted(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PatternsEvicted.WithLabelValues(reason).Add(float64(n))
}

// RecordValidation records a validation outcome
func (m *Metrics) RecordValidation(result string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(result).Inc()
}

// RecordLookup records a lookup by id
func (m *Metrics) RecordLookup(result string) {
	if m == nil {
		return
	}
	m.PatternLookups.WithLabelValues(result).Inc()
}

// RecordCleanupSkipped records a cleanup run that lost the lock
func (m *Metrics) RecordCleanupSkipped() {
	if m == nil {
		return
	}
	m.CleanupSkipped.Inc()
}

// RecordCleanupLockError records a cleanup run that could not reach the lock
func (m *Metrics) RecordCleanupLockError() {
	if m == nil {
		return
	}
	m.CleanupLockErrors.Inc()
}
