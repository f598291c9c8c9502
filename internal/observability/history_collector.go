package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HistorySource is the part of the run history the collector reads
type HistorySource interface {
	CountRunsByOutcome(ctx context.Context, projectID string) (map[string]int, error)
	LastRunAt(ctx context.Context, projectID, outcome string) (time.Time, error)
}

// HistoryCollector exposes the recorded run history of one project when the
// registry is gathered, so a pushed or textfile export carries trend data.
type HistoryCollector struct {
	source    HistorySource
	projectID string
	logger    *slog.Logger
	timeout   time.Duration

	runsDesc        *prometheus.Desc
	lastSuccessDesc *prometheus.Desc
}

// NewHistoryCollector creates a collector for the given project UUID
func NewHistoryCollector(source HistorySource, projectID string, logger *slog.Logger) *HistoryCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryCollector{
		source:    source,
		projectID: projectID,
		logger:    logger,
		timeout:   3 * time.Second,
		runsDesc: prometheus.NewDesc(
			"dtrack_upload_history_runs",
			"Number of recorded runs for the project by outcome",
			[]string{"outcome"},
			nil,
		),
		lastSuccessDesc: prometheus.NewDesc(
			"dtrack_upload_history_last_success_timestamp_seconds",
			"Start time of the most recent successful run for the project",
			nil,
			nil,
		),
	}
}

// Describe sends the metric descriptors to the provided channel
func (c *HistoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsDesc
	ch <- c.lastSuccessDesc
}

// Collect queries the history and sends current metrics to the provided channel
func (c *HistoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.collectRuns(ctx, ch)
	c.collectLastSuccess(ctx, ch)
}

func (c *HistoryCollector) collectRuns(ctx context.Context, ch chan<- prometheus.Metric) {
	counts, err := c.source.CountRunsByOutcome(ctx, c.projectID)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("run history metric collection timed out (likely database locked)", "error", err)
		} else {
			c.logger.Error("failed to collect run history metric", "error", err)
		}
		return
	}

	for outcome, count := range counts {
		ch <- prometheus.MustNewConstMetric(
			c.runsDesc,
			prometheus.GaugeValue,
			float64(count),
			outcome,
		)
	}
}

func (c *HistoryCollector) collectLastSuccess(ctx context.Context, ch chan<- prometheus.Metric) {
	at, err := c.source.LastRunAt(ctx, c.projectID, "succeeded")
	if err != nil {
		c.logger.Debug("no successful run to report", "error", err)
		return
	}
	if at.IsZero() {
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.lastSuccessDesc,
		prometheus.GaugeValue,
		float64(at.Unix()),
	)
}
