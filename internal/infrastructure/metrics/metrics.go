package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	LedgerOperations *prometheus.CounterVec
	LedgerRejections *prometheus.CounterVec
	AccountBalance   *prometheus.GaugeVec

	// Sync metrics
	QueueDepth      prometheus.Gauge
	Replays         *prometheus.CounterVec
	ReplayDuration  *prometheus.HistogramVec
	DrainRuns       prometheus.Counter
	Retries         prometheus.Counter
	VersionConflict prometheus.Counter

	// Realtime metrics
	RealtimeEvents *prometheus.CounterVec
	Broadcasts     *prometheus.CounterVec
	Online         prometheus.Gauge

	// Cache metrics
	CacheFallbacks *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates the metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Ledger metrics
		LedgerOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_ledger_operations_total",
				Help: "Total balance ledger operations by type",
			},
			[]string{"operation"},
		),
		LedgerRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_ledger_rejections_total",
				Help: "Ledger operations rejected by validation",
			},
			[]string{"operation", "reason"},
		),
		AccountBalance: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgersync_account_balance",
				Help: "Last known account balance",
			},
			[]string{"account_id"},
		),

		// Sync metrics
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledgersync_sync_queue_depth",
			Help: "Number of mutations waiting for remote confirmation",
		}),
		Replays: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_sync_replays_total",
				Help: "Queued mutation replays by kind and result",
			},
			[]string{"kind", "result"},
		),
		ReplayDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgersync_sync_replay_duration_seconds",
				Help:    "Duration of a single mutation replay",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		DrainRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_sync_drain_runs_total",
			Help: "Total queue drains",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_retries_total",
			Help: "Total retries of transient remote failures",
		}),
		VersionConflict: f.NewCounter(prometheus.CounterOpts{
			Name: "ledgersync_account_version_conflicts_total",
			Help: "Compare-and-swap conflicts on account version",
		}),

		// Realtime metrics
		RealtimeEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_realtime_events_total",
				Help: "Change feed events merged into the local cache",
			},
			[]string{"collection", "op"},
		),
		Broadcasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_broadcasts_total",
				Help: "Cross-session broadcast events by name and direction",
			},
			[]string{"event", "direction"},
		),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledgersync_online",
			Help: "1 when the remote store is reachable",
		}),

		// Cache metrics
		CacheFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_cache_fallbacks_total",
				Help: "Reads served from the local cache because the remote failed",
			},
			[]string{"collection"},
		),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgersync_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Audit metrics
		AuditLogsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgersync_audit_logs_total",
				Help: "Total audit logs queued",
			},
			[]string{"action", "status"},
		),
	}
}
