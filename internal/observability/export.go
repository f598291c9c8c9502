package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ExportConfig selects where run metrics are written
type ExportConfig struct {
	TextfilePath   string
	PushgatewayURL string
	Job            string
	Grouping       map[string]string
}

// Export writes the gathered metrics to every configured destination.
// Both destinations are attempted; the first error is returned.
func Export(ctx context.Context, cfg ExportConfig, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	var firstErr error

	if cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(cfg.TextfilePath, gatherer); err != nil {
			logger.Error("failed to write metrics textfile", "path", cfg.TextfilePath, "error", err)
			firstErr = fmt.Errorf("failed to write metrics textfile: %w", err)
		} else {
			logger.Debug("metrics written", "path", cfg.TextfilePath)
		}
	}

	if cfg.PushgatewayURL != "" {
		job := cfg.Job
		if job == "" {
			job = "dtrack_upload"
		}
		pusher := push.New(cfg.PushgatewayURL, job).Gatherer(gatherer)
		for name, value := range cfg.Grouping {
			if value != "" {
				pusher = pusher.Grouping(name, value)
			}
		}
		if err := pusher.PushContext(ctx); err != nil {
			logger.Error("failed to push metrics", "url", cfg.PushgatewayURL, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to push metrics: %w", err)
			}
		} else {
			logger.Debug("metrics pushed", "url", cfg.PushgatewayURL, "job", job)
		}
	}

	return firstErr
}
