package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the coordinator
type Metrics struct {
	// Lock manager metrics
	AcquiresTotal   *prometheus.CounterVec
	ReleasesTotal   *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	ExpiredLocks    prometheus.Counter
	LocksHeld       *prometheus.GaugeVec
	QueueDepth      prometheus.Gauge
	QueueRejections prometheus.Counter

	// Recreation workflow metrics
	RecreationsTotal       *prometheus.CounterVec
	RecreationPhaseSeconds *prometheus.HistogramVec
	RollbacksTotal         prometheus.Counter

	// Flow metrics
	ReconnectionsTotal *prometheus.CounterVec
	DeletionsTotal     *prometheus.CounterVec
	SyncRunsTotal      *prometheus.CounterVec
}

// New creates and registers coordinator metrics against the given registerer.
// Tests pass a fresh prometheus.NewRegistry to stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AcquiresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_lock_acquires_total",
				Help: "Total lock acquisition attempts by priority class and result",
			},
			[]string{"priority", "result"},
		),

		ReleasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_lock_releases_total",
				Help: "Total lock releases by result",
			},
			[]string{"result"},
		),

		EscalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_lock_escalations_total",
				Help: "Total forced preemptions of lower-priority locks",
			},
			[]string{"priority"},
		),

		ExpiredLocks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "indexcoord_locks_expired_total",
				Help: "Total locks reclaimed by the expiry sweep",
			},
		),

		LocksHeld: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexcoord_locks_held",
				Help: "Currently held locks by priority class",
			},
			[]string{"priority"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexcoord_queue_depth",
				Help: "Queued lock requests across all tenants",
			},
		),

		QueueRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "indexcoord_queue_rejections_total",
				Help: "Lock requests rejected because a tenant queue was full",
			},
		),

		RecreationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_recreations_total",
				Help: "Total partition recreation workflows by result",
			},
			[]string{"result"},
		),

		RecreationPhaseSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexcoord_recreation_phase_seconds",
				Help:    "Duration of each recreation workflow phase",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),

		RollbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "indexcoord_recreation_rollbacks_total",
				Help: "Total recreation workflows that rolled back",
			},
		),

		ReconnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_reconnections_total",
				Help: "Total tenant reconnection flows by result",
			},
			[]string{"result"},
		),

		DeletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_deletions_total",
				Help: "Total tenant deletion flows by result",
			},
			[]string{"result"},
		),

		SyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexcoord_sync_runs_total",
				Help: "Total sync runs by kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}
