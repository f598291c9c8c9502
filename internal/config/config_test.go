package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/threshold"
)

const testProjectID = "6f1b3c2e-0000-4000-8000-000000000001"

// isolate points DTRACK_CONFIG at a file in a temp dir and returns its path
func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dtrack.yml")
	t.Setenv("DTRACK_CONFIG", path)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	isolate(t)
	t.Setenv("INPUT_DTRACKURI", "https://dtrack.example.com/")
	t.Setenv("INPUT_DTRACKAPIKEY", "secret")
	t.Setenv("INPUT_BOMFILEPATH", "bom.json")
	t.Setenv("INPUT_DTRACKPROJNAME", "my app")
	t.Setenv("INPUT_DTRACKPROJVERSION", "1.0.0")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify defaults
	if cfg.Server.URL != "https://dtrack.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.Server.URL)
	}
	if cfg.Server.Timeout != 5*time.Minute {
		t.Errorf("Expected HTTP timeout 5m, got %v", cfg.Server.Timeout)
	}
	if cfg.Polling.Interval != 2*time.Second {
		t.Errorf("Expected poll interval 2s, got %v", cfg.Polling.Interval)
	}
	if cfg.Polling.MaxAttempts != 0 {
		t.Errorf("Expected unbounded polling, got %d", cfg.Polling.MaxAttempts)
	}
	if cfg.Threshold.Action != threshold.ActionNone {
		t.Errorf("Expected action none, got %s", cfg.Threshold.Action)
	}
	if cfg.Threshold.Values != threshold.None() {
		t.Errorf("Expected all thresholds disabled, got %+v", cfg.Threshold.Values)
	}
	if cfg.Project.IsLatest != nil {
		t.Errorf("Expected isLatest unset, got %v", *cfg.Project.IsLatest)
	}
	if cfg.Observability.LogFormat != "auto" {
		t.Errorf("Expected log format auto, got %s", cfg.Observability.LogFormat)
	}
	if cfg.History.Path != "" || cfg.History.Limit != 20 || cfg.History.Keep != 100 {
		t.Errorf("Unexpected history config %+v", cfg.History)
	}

	if err := cfg.ValidateUpload(); err != nil {
		t.Errorf("ValidateUpload failed: %v", err)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	isolate(t)
	t.Setenv("INPUT_DTRACKURI", "http://localhost:8081")
	t.Setenv("INPUT_DTRACKAPIKEY", "secret")
	t.Setenv("INPUT_DTRACKPROJID", testProjectID)
	t.Setenv("INPUT_DTRACKPROJTAGS", "team-a\n\n team-b \n")
	t.Setenv("INPUT_DTRACKPROJCLASSIFIER", "library")
	t.Setenv("INPUT_DTRACKISLATEST", "false")
	t.Setenv("INPUT_DTRACKPROJAUTOCREATE", "True")
	t.Setenv("INPUT_THRESHOLDACTION", "Error")
	t.Setenv("INPUT_THRESHOLDCRITICAL", "0")
	t.Setenv("INPUT_THRESHOLDPOLICYVIOLATIONSTOTAL", "3")
	t.Setenv("INPUT_THRESHOLDREPORTALL", "true")
	t.Setenv("POLL_INTERVAL", "10ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "5")
	t.Setenv("HTTP_TIMEOUT", "30s")
	t.Setenv("RUN_TIMEOUT", "15m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RUN_HISTORY_PATH", "runs.db")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Project.Tags) != 2 || cfg.Project.Tags[0] != "team-a" || cfg.Project.Tags[1] != "team-b" {
		t.Errorf("Expected tags [team-a team-b], got %q", cfg.Project.Tags)
	}
	if cfg.Project.Classifier != "LIBRARY" {
		t.Errorf("Expected classifier LIBRARY, got %s", cfg.Project.Classifier)
	}
	if cfg.Project.IsLatest == nil || *cfg.Project.IsLatest {
		t.Errorf("Expected isLatest explicitly false")
	}
	if !cfg.Project.AutoCreate {
		t.Error("Expected autoCreate true")
	}
	if cfg.Threshold.Action != threshold.ActionError {
		t.Errorf("Expected action error, got %s", cfg.Threshold.Action)
	}
	if cfg.Threshold.Values.Critical != 0 || cfg.Threshold.Values.PolicyViolationsTotal != 3 {
		t.Errorf("Unexpected thresholds %+v", cfg.Threshold.Values)
	}
	if cfg.Threshold.Values.High != threshold.Disabled {
		t.Errorf("Expected high disabled, got %d", cfg.Threshold.Values.High)
	}
	if !cfg.Threshold.ReportAll {
		t.Error("Expected report all")
	}
	if cfg.Polling.Interval != 10*time.Millisecond || cfg.Polling.MaxAttempts != 5 {
		t.Errorf("Unexpected polling config %+v", cfg.Polling)
	}
	if cfg.Server.Timeout != 30*time.Second || cfg.RunTimeout != 15*time.Minute {
		t.Errorf("Unexpected timeouts %v %v", cfg.Server.Timeout, cfg.RunTimeout)
	}
	if cfg.History.Path != "runs.db" {
		t.Errorf("Expected history path runs.db, got %s", cfg.History.Path)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := isolate(t)
	writeFile(t, path, `server:
  url: https://from-file.example.com
  timeout: 1m
project:
  name: file-app
  version: "1.0"
  tags: [a, b]
bom: file-bom.json
thresholds:
  action: warn
  critical: 2
  policy:
    expression: "critical + high < 5"
    failureMessage: too many
polling:
  interval: 3s
  maxAttempts: 7
history:
  path: file.db
  limit: 5
  keep: 10
`)
	t.Setenv("INPUT_DTRACKPROJVERSION", "2.0")
	t.Setenv("INPUT_DTRACKAPIKEY", "secret")

	cfg, err := Load(Inputs{InputBomFilePath: "flag-bom.json", InputProjectName: "   "})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "https://from-file.example.com" {
		t.Errorf("Expected URL from file, got %s", cfg.Server.URL)
	}
	if cfg.Server.Timeout != time.Minute {
		t.Errorf("Expected timeout from file, got %v", cfg.Server.Timeout)
	}
	if cfg.Project.Name != "file-app" {
		t.Errorf("Blank override must not clear the file value, got %q", cfg.Project.Name)
	}
	if cfg.Project.Version != "2.0" {
		t.Errorf("Expected env to override file version, got %s", cfg.Project.Version)
	}
	if cfg.BomFilePath != "flag-bom.json" {
		t.Errorf("Expected flag to override file bom, got %s", cfg.BomFilePath)
	}
	if len(cfg.Project.Tags) != 2 {
		t.Errorf("Expected file tags, got %q", cfg.Project.Tags)
	}
	if cfg.Threshold.Action != threshold.ActionWarn || cfg.Threshold.Values.Critical != 2 {
		t.Errorf("Unexpected threshold config %+v", cfg.Threshold)
	}
	if cfg.Threshold.Policy.Expression != "critical + high < 5" || cfg.Threshold.Policy.FailureMessage != "too many" {
		t.Errorf("Unexpected policy %+v", cfg.Threshold.Policy)
	}
	if cfg.Polling.Interval != 3*time.Second || cfg.Polling.MaxAttempts != 7 {
		t.Errorf("Unexpected polling config %+v", cfg.Polling)
	}
	if cfg.History.Path != "file.db" || cfg.History.Limit != 5 || cfg.History.Keep != 10 {
		t.Errorf("Unexpected history config %+v", cfg.History)
	}
}

func TestLoadServiceConnection(t *testing.T) {
	isolate(t)
	t.Setenv("INPUT_SERVICECONNECTION", "abc-123")
	t.Setenv("INPUT_DTRACKURI", "https://ignored.example.com")
	t.Setenv("INPUT_DTRACKAPIKEY", "ignored")
	t.Setenv("ENDPOINT_URL_abc-123", "https://endpoint.example.com/")
	t.Setenv("ENDPOINT_AUTH_PARAMETER_abc-123_PASSWORD", "endpoint-key")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "https://endpoint.example.com" {
		t.Errorf("Expected endpoint URL, got %s", cfg.Server.URL)
	}
	if cfg.Server.APIKey != "endpoint-key" {
		t.Errorf("Expected endpoint key, got %s", cfg.Server.APIKey)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{
			name: "non-numeric threshold",
			env:  map[string]string{"INPUT_THRESHOLDHIGH": "ten"},
		},
		{
			name: "invalid action",
			env:  map[string]string{"INPUT_THRESHOLDACTION": "explode"},
		},
		{
			name: "invalid boolean",
			env:  map[string]string{"INPUT_DTRACKISLATEST": "maybe"},
		},
		{
			name: "service connection without endpoint",
			env:  map[string]string{"INPUT_SERVICECONNECTION": "missing"},
		},
		{
			name: "malformed file",
			file: "server: [unclosed",
		},
		{
			name: "bad duration in file",
			file: "polling:\n  interval: soon\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := isolate(t)
			if tt.file != "" {
				writeFile(t, path, tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, errors.ErrConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	server := ServerConfig{URL: "https://dtrack.example.com", APIKey: "secret"}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:   "project by id",
			config: &Config{Server: server, Project: ProjectConfig{ID: testProjectID}},
		},
		{
			name:   "project by name and version",
			config: &Config{Server: server, Project: ProjectConfig{Name: "app", Version: "1"}},
		},
		{
			name:   "project by name only",
			config: &Config{Server: server, Project: ProjectConfig{Name: "app"}},
		},
		{
			name:   "auto-create with parent",
			config: &Config{Server: server, Project: ProjectConfig{Name: "app", Version: "1", AutoCreate: true, ParentName: "platform", ParentVersion: "2"}},
		},
		{
			name:    "missing URL",
			config:  &Config{Server: ServerConfig{APIKey: "secret"}, Project: ProjectConfig{ID: testProjectID}},
			wantErr: true,
		},
		{
			name:    "URL without scheme",
			config:  &Config{Server: ServerConfig{URL: "dtrack.example.com", APIKey: "secret"}, Project: ProjectConfig{ID: testProjectID}},
			wantErr: true,
		},
		{
			name:    "missing API key",
			config:  &Config{Server: ServerConfig{URL: "https://dtrack.example.com"}, Project: ProjectConfig{ID: testProjectID}},
			wantErr: true,
		},
		{
			name:    "no project identity",
			config:  &Config{Server: server},
			wantErr: true,
		},
		{
			name:    "auto-create without version",
			config:  &Config{Server: server, Project: ProjectConfig{Name: "app", AutoCreate: true}},
			wantErr: true,
		},
		{
			name:    "malformed project id",
			config:  &Config{Server: server, Project: ProjectConfig{ID: "not-a-uuid"}},
			wantErr: true,
		},
		{
			name:    "malformed parent id",
			config:  &Config{Server: server, Project: ProjectConfig{Name: "app", ParentID: "nope"}},
			wantErr: true,
		},
		{
			name:    "parent version without name",
			config:  &Config{Server: server, Project: ProjectConfig{Name: "app", ParentVersion: "2"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{URL: "https://dtrack.example.com", APIKey: "secret"},
		Project: ProjectConfig{ID: testProjectID},
	}
	if err := cfg.ValidateUpload(); err == nil {
		t.Error("expected an error without a BOM path")
	}
	cfg.BomFilePath = "bom.xml"
	if err := cfg.ValidateUpload(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateCreate(t *testing.T) {
	cfg := &Config{Server: ServerConfig{URL: "https://dtrack.example.com", APIKey: "secret"}}
	if err := cfg.ValidateCreate(); err == nil {
		t.Error("expected an error without a project name")
	}
	cfg.Project = ProjectConfig{Name: "app", AutoCreate: true}
	if err := cfg.ValidateCreate(); err != nil {
		t.Errorf("create needs no version, got %v", err)
	}
}

func TestDesired(t *testing.T) {
	latest := true
	cfg := &Config{Project: ProjectConfig{
		Description: "desc",
		Tags:        []string{"a"},
		IsLatest:    &latest,
	}}

	d := cfg.Desired()
	if d.Description == nil || *d.Description != "desc" {
		t.Errorf("expected description, got %v", d.Description)
	}
	if d.Classifier != nil || d.SwidTagID != nil || d.Group != nil {
		t.Error("unset fields must stay nil")
	}
	if d.IsLatest == nil || !*d.IsLatest {
		t.Error("expected isLatest true")
	}

	if !(&Config{}).Desired().IsEmpty() {
		t.Error("empty config must yield empty metadata")
	}
}

func TestLoadHistoryEnvClamped(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		keep  string
	}{
		{name: "zero", limit: "0", keep: "0"},
		{name: "negative", limit: "-3", keep: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv("RUN_HISTORY_LIMIT", tt.limit)
			t.Setenv("RUN_HISTORY_KEEP", tt.keep)

			cfg, err := Load(nil)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.History.Limit != defaultHistoryLimit || cfg.History.Keep != defaultHistoryKeep {
				t.Errorf("Expected default history limits, got %+v", cfg.History)
			}
		})
	}
}
