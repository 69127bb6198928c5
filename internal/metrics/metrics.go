// Package metrics exposes reconciliation pass metrics in the Prometheus
// format.
//
// Hook mode runs one pass per process, so the counters are only useful in
// serve mode where the registry lives as long as the watcher.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ubuntu-core/serial-vault-charm/internal/state"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

const (
	namespace = "serial_vault_charm"
	subsystem = "reconciler"
)

// PassMetrics records finished passes and the persisted flags.
type PassMetrics struct {
	registry *prometheus.Registry

	// PassesTotal counts passes by trigger and outcome.
	PassesTotal *prometheus.CounterVec

	// PassDuration measures pass duration by trigger.
	PassDuration *prometheus.HistogramVec

	// ServiceFlag is 1 when the named flag (available, active) is set.
	ServiceFlag *prometheus.GaugeVec

	mu       sync.Mutex
	summary  Summary
	outcomes map[string]int64
}

// Summary is a point-in-time view of what the metrics have seen.
type Summary struct {
	TotalPasses  int64            `json:"total_passes"`
	ByOutcome    map[string]int64 `json:"by_outcome"`
	LastTrigger  string           `json:"last_trigger,omitempty"`
	LastOutcome  string           `json:"last_outcome,omitempty"`
	LastPassAt   time.Time        `json:"last_pass_at,omitempty"`
	FailureRate  float64          `json:"failure_rate"`
	LastDuration time.Duration    `json:"last_duration"`
}

// New registers the pass metrics on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *PassMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &PassMetrics{
		registry: reg,
		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "passes_total",
			Help:      "Reconciliation passes by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pass_duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"trigger"}),
		ServiceFlag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_flag",
			Help:      "Persisted service flags, 1 when set",
		}, []string{"flag"}),
		outcomes: make(map[string]int64),
	}
}

// ObservePass records one finished pass.
func (m *PassMetrics) ObservePass(trigger, outcome string, d time.Duration) {
	m.PassesTotal.WithLabelValues(trigger, outcome).Inc()
	m.PassDuration.WithLabelValues(trigger).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
	m.summary.TotalPasses++
	m.summary.LastTrigger = trigger
	m.summary.LastOutcome = outcome
	m.summary.LastPassAt = time.Now()
	m.summary.LastDuration = d

	if outcome == "failed" {
		logging.Debug("Metrics", "Pass %s failed (%d failures so far)", trigger, m.outcomes[outcome])
	}
}

// SetState mirrors the persisted flags into the flag gauge.
func (m *PassMetrics) SetState(st state.ServiceState) {
	m.ServiceFlag.WithLabelValues("available").Set(boolToFloat(st.Available))
	m.ServiceFlag.WithLabelValues("active").Set(boolToFloat(st.Active))
}

// Summary returns a copy of the summary.
func (m *PassMetrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.summary
	s.ByOutcome = make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		s.ByOutcome[k] = v
	}
	if s.TotalPasses > 0 {
		s.FailureRate = float64(m.outcomes["failed"]) / float64(s.TotalPasses)
	}
	return s
}

// Handler serves the registry.
func (m *PassMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the metrics are registered on.
func (m *PassMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
