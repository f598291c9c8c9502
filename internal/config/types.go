package config

import (
	"time"

	"github.com/daimoniac/dtrack-upload/internal/threshold"
)

// Config represents the complete task configuration
type Config struct {
	ConfigPath    string
	Server        ServerConfig
	Project       ProjectConfig
	BomFilePath   string
	Threshold     ThresholdConfig
	Polling       PollingConfig
	RunTimeout    time.Duration
	History       HistoryConfig
	Observability ObservabilityConfig
}

// ServerConfig configures the Dependency-Track connection
type ServerConfig struct {
	URL        string
	APIKey     string
	CAFilePath string
	Timeout    time.Duration
	// ServiceConnection is the task-host endpoint the URL and key came from, if any
	ServiceConnection string
}

// ProjectConfig identifies the target project and its desired metadata
type ProjectConfig struct {
	ID            string
	Name          string
	Version       string
	AutoCreate    bool
	ParentID      string
	ParentName    string
	ParentVersion string

	Description string
	Classifier  string
	SwidTagID   string
	Group       string
	Tags        []string
	// IsLatest is nil when the flag was not given
	IsLatest *bool
}

// ThresholdConfig configures the post-ingestion gate
type ThresholdConfig struct {
	Action    threshold.Action
	Values    threshold.Thresholds
	ReportAll bool
	Policy    threshold.PolicyConfig
}

// PollingConfig configures the processing and metrics wait loops
type PollingConfig struct {
	Interval time.Duration
	// MaxAttempts of 0 polls until the server answers
	MaxAttempts int
}

// HistoryConfig configures the local run history
type HistoryConfig struct {
	// Path of the SQLite database; empty disables history
	Path string
	// Limit is the number of runs the history command lists
	Limit int
	// Keep is the number of runs retained per project
	Keep int
}

// ObservabilityConfig configures logging and metrics export
type ObservabilityConfig struct {
	LogLevel        string
	LogFormat       string
	MetricsTextfile string
	PushgatewayURL  string
	PushJob         string
}
