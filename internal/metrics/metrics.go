package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all aggregator metrics.
const namespace = "aggregator"

// Registry is the global Prometheus registry for all metrics.
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes build version information as labels.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Build version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// ScrapesTotal counts completed scrapes by terminal outcome (spec §3/§7).
var ScrapesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrapes_total",
		Help:      "Total number of completed scrapes by outcome",
	},
	[]string{"organization", "outcome"},
)

// ScrapeDuration records total wall-clock time of one scrape (spec §3
// duration_total_seconds).
var ScrapeDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Total scrape duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	},
	[]string{"organization"},
)

// AnimalsProcessedTotal counts animals by the reconciliation result the
// Batch Processor / Session Manager assigned them (spec §3 dogs_added,
// dogs_updated, dogs_unchanged, dogs_skipped).
var AnimalsProcessedTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "animals_processed_total",
		Help:      "Total number of animals processed by result",
	},
	[]string{"organization", "result"}, // result: added|updated|unchanged|skipped
)

// BatchErrorsTotal counts structured batch errors by kind (spec §7 ErrorKind).
var BatchErrorsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_errors_total",
		Help:      "Total number of batch processor errors by kind",
	},
	[]string{"organization", "kind"},
)

// StaleTransitionsTotal counts Session Manager confidence demotions applied
// to previously-stored animals (spec §4.3).
var StaleTransitionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_transitions_total",
		Help:      "Total number of availability confidence transitions applied",
	},
	[]string{"organization", "confidence"},
)

// PartialFailureAlertsTotal counts partial-failure guard trips by severity
// (spec §4.3/§4.8).
var PartialFailureAlertsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "partial_failure_alerts_total",
		Help:      "Total number of partial-failure guard trips by severity",
	},
	[]string{"organization", "severity"},
)

// QualityScore is the most recently computed overall quality score for an
// organization (spec §4.9), 0-100.
var QualityScore = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quality_score",
		Help:      "Most recent overall data quality score (0-100) per organization",
	},
	[]string{"organization"},
)

// Init registers process-level collectors and stamps the build info gauge.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
