package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for an ingestion run
type Metrics struct {
	// Dependency-Track API metrics
	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Upload metrics
	BomUploads   *prometheus.CounterVec
	BomSizeBytes prometheus.Gauge

	// Polling metrics
	ProcessingPolls           prometheus.Counter
	MetricsPolls              prometheus.Counter
	ProcessingWaitSeconds     prometheus.Gauge
	MetricsRefreshWaitSeconds prometheus.Gauge

	// Project metrics
	ProjectUpdates          *prometheus.CounterVec
	ProjectVulnerabilities  *prometheus.GaugeVec
	ProjectPolicyViolations *prometheus.GaugeVec

	// Threshold metrics
	ThresholdEvaluations *prometheus.CounterVec

	// Run metrics
	RunOutcomes *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			APIRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dtrack_upload_api_requests_total",
					Help: "Total number of Dependency-Track API requests by operation and status code",
				},
				[]string{"operation", "code"},
			),
			APIRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "dtrack_upload_api_request_duration_seconds",
					Help:    "Duration of Dependency-Track API requests in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
				},
				[]string{"operation"},
			),

			BomUploads: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dtrack_upload_bom_uploads_total",
					Help: "Total number of BOM submissions by target mode",
				},
				[]string{"mode"}, // existing, create, create_child
			),
			BomSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dtrack_upload_bom_size_bytes",
				Help: "Size of the last submitted BOM in bytes",
			}),

			ProcessingPolls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dtrack_upload_processing_polls_total",
				Help: "Total number of BOM processing status polls",
			}),
			MetricsPolls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dtrack_upload_metrics_polls_total",
				Help: "Total number of metrics refresh polls",
			}),
			ProcessingWaitSeconds: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dtrack_upload_processing_wait_seconds",
				Help: "Time spent waiting for BOM processing to finish",
			}),
			MetricsRefreshWaitSeconds: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "dtrack_upload_metrics_refresh_wait_seconds",
				Help: "Time spent waiting for project metrics to catch up with the BOM import",
			}),

			ProjectUpdates: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dtrack_upload_project_updates_total",
					Help: "Total number of project metadata update decisions",
				},
				[]string{"result"}, // updated, unchanged
			),
			ProjectVulnerabilities: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dtrack_upload_project_vulnerabilities",
					Help: "Current number of project vulnerabilities by severity",
				},
				[]string{"severity"},
			),
			ProjectPolicyViolations: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dtrack_upload_project_policy_violations",
					Help: "Current number of project policy violations by state",
				},
				[]string{"state"},
			),

			ThresholdEvaluations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dtrack_upload_threshold_evaluations_total",
					Help: "Total number of threshold evaluations by result",
				},
				[]string{"result"}, // passed, violated
			),

			RunOutcomes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dtrack_upload_run_outcomes_total",
					Help: "Total number of runs by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return metricsInstance
}
