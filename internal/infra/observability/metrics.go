package observability

import (
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Credit transition results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all Prometheus metrics for the admin BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	creditTransitions  *prometheus.CounterVec
	reconciledRequests *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admin_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		creditTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_credit_transitions_total",
				Help: "Credit request transitions by action and result.",
			},
			[]string{"action", "result"},
		),
		reconciledRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_credit_reconciled_total",
				Help: "Credit requests finished or reverted by the reconciler.",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrCreditTransition counts an approve/reject/process attempt.
func (m *Metrics) IncrCreditTransition(action, result string) {
	m.creditTransitions.WithLabelValues(action, result).Inc()
}

// IncrReconciled counts a reconciler outcome ("processed" or "reverted").
func (m *Metrics) IncrReconciled(outcome string) {
	m.reconciledRequests.WithLabelValues(outcome).Inc()
}

// GetWorkflowSnapshot returns the cumulative counters behind
// GET /v1/metrics/workflow.
func (m *Metrics) GetWorkflowSnapshot() *domain.WorkflowMetrics {
	failed := getCounterValue(m.creditTransitions, "approve", ResultFailure) +
		getCounterValue(m.creditTransitions, "reject", ResultFailure) +
		getCounterValue(m.creditTransitions, "process", ResultFailure)

	hits := getCounterValue(m.cacheHits, "analytics")
	misses := getCounterValue(m.cacheMisses, "analytics")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.WorkflowMetrics{
		Approved:           int64(getCounterValue(m.creditTransitions, "approve", ResultSuccess)),
		Rejected:           int64(getCounterValue(m.creditTransitions, "reject", ResultSuccess)),
		Processed:          int64(getCounterValue(m.creditTransitions, "process", ResultSuccess)),
		FailedTransitions:  int64(failed),
		WalletFailures:     int64(getCounterValue(m.externalErrors, "wallet")),
		Reconciled:         int64(getCounterValue(m.reconciledRequests, "processed") + getCounterValue(m.reconciledRequests, "reverted")),
		AnalyticsCacheRate: hitRate,
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
