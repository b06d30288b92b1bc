package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all GatherSpace metrics
const namespace = "gatherspace"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthStatus is a gauge that tracks overall server health status
// Values: 0 = unhealthy, 1 = degraded, 2 = healthy
var HealthStatus = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_status",
		Help:      "Overall server health status (0=unhealthy, 1=degraded, 2=healthy)",
	},
)

// Cache metrics

// CacheHitsTotal tracks analytics cache hits by key prefix
var CacheHitsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits",
	},
	[]string{"prefix"},
)

// CacheMissesTotal tracks analytics cache misses by key prefix
var CacheMissesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses",
	},
	[]string{"prefix"},
)

// CacheInvalidationsTotal tracks explicit cache invalidations by key prefix
var CacheInvalidationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_invalidations_total",
		Help:      "Total number of cache entries invalidated",
	},
	[]string{"prefix"},
)

// Notification metrics

// NotificationsCreatedTotal tracks notification deliveries by message kind and channel
var NotificationsCreatedTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_created_total",
		Help:      "Total number of notification ledger entries created",
	},
	[]string{"kind", "channel"},
)

// EmailsSentTotal tracks outbound emails by template and result
var EmailsSentTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Total number of email send attempts",
	},
	[]string{"template", "result"}, // result: success, error, disabled
)

// Registration metrics

// RegistrationsTotal tracks event registrations by kind
var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of event registrations created",
	},
	[]string{"kind"}, // kind: member, guest
)

// Event lifecycle metrics

// EventStatusTransitionsTotal tracks batch status updates by resulting status
var EventStatusTransitionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_status_transitions_total",
		Help:      "Total number of event status transitions applied by the updater",
	},
	[]string{"status"}, // status: upcoming, ongoing, completed
)

// Background job metrics

// JobFailuresTotal tracks background job errors and panics by job kind
var JobFailuresTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failures_total",
		Help:      "Total number of failed background job attempts",
	},
	[]string{"kind"},
)

// Export metrics

// ExportsGeneratedTotal tracks analytics exports by report and format
var ExportsGeneratedTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_generated_total",
		Help:      "Total number of analytics exports generated",
	},
	[]string{"report", "format"},
)

// ExportDuration tracks export generation latency
var ExportDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "export_duration_seconds",
		Help:      "Analytics export generation duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	},
	[]string{"report", "format"},
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Set application version info (value is always 1, info is in labels)
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
