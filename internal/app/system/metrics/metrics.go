// internal/app/system/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. Each instance owns its
// registry so tests can build as many as they like. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	CardTransitions   *prometheus.CounterVec
	AddressMutations  *prometheus.CounterVec
	Snapshots         prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotsDropped  prometheus.Counter
	Subscribers       prometheus.Gauge
	JobRuns           *prometheus.CounterVec
	NumberingRetries  prometheus.Counter
	AssignCompensated prometheus.Counter
}

// New creates a Metrics instance with all collectors registered, plus the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		CardTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "direcciones_card_transitions_total",
			Help: "Card state changes by operation (create, assign, return, update, delete)",
		}, []string{"op"}),
		AddressMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "direcciones_address_mutations_total",
			Help: "Address writes by operation (create, update, delete)",
		}, []string{"op"}),
		Snapshots: f.NewCounter(prometheus.CounterOpts{
			Name: "direcciones_snapshots_published_total",
			Help: "Full-card snapshots published to subscribers",
		}),
		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "direcciones_snapshot_build_duration_seconds",
			Help:    "Time spent loading and joining a full-card snapshot",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SnapshotsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "direcciones_snapshots_dropped_total",
			Help: "Pending snapshots discarded because a subscriber fell behind",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "direcciones_subscribers",
			Help: "Live fullCard subscriptions on this instance",
		}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "direcciones_job_runs_total",
			Help: "Background job runs by job and outcome",
		}, []string{"job", "outcome"}),
		NumberingRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "direcciones_card_numbering_retries_total",
			Help: "Card creations retried after losing a number to a concurrent creator",
		}),
		AssignCompensated: f.NewCounter(prometheus.CounterOpts{
			Name: "direcciones_assign_compensations_total",
			Help: "Batch assignments rolled back after a concurrent assignment",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// CardTransition records a successful card operation.
func (m *Metrics) CardTransition(op string) {
	if m == nil {
		return
	}
	m.CardTransitions.WithLabelValues(op).Inc()
}

// AddressMutation records a successful address write.
func (m *Metrics) AddressMutation(op string) {
	if m == nil {
		return
	}
	m.AddressMutations.WithLabelValues(op).Inc()
}

// ObserveSnapshot records a published snapshot and its build time.
// Call with time.Now() at the start of the build.
func (m *Metrics) ObserveSnapshot(start time.Time) {
	if m == nil {
		return
	}
	m.Snapshots.Inc()
	m.SnapshotDuration.Observe(time.Since(start).Seconds())
}

// SnapshotDropped records a snapshot discarded for a slow subscriber.
func (m *Metrics) SnapshotDropped() {
	if m == nil {
		return
	}
	m.SnapshotsDropped.Inc()
}

// SetSubscribers reports the number of live subscriptions.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// JobRun records a background job run.
func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(job, outcome).Inc()
}

// NumberingRetry records a card creation retried on a duplicate number.
func (m *Metrics) NumberingRetry() {
	if m == nil {
		return
	}
	m.NumberingRetries.Inc()
}

// AssignCompensation records a rolled back batch assignment.
func (m *Metrics) AssignCompensation() {
	if m == nil {
		return
	}
	m.AssignCompensated.Inc()
}
