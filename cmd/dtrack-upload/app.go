package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daimoniac/dtrack-upload/internal/config"
	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/observability"
	"github.com/daimoniac/dtrack-upload/internal/statestore"
	"github.com/daimoniac/dtrack-upload/internal/taskhost"
	"github.com/daimoniac/dtrack-upload/internal/threshold"
	"github.com/daimoniac/dtrack-upload/internal/workflow"
)

// app carries what every command needs once the configuration is loaded
type app struct {
	command  string
	cfg      *config.Config
	logger   *slog.Logger
	reporter taskhost.Reporter
}

// setup loads and validates the configuration. Failures are reported to the
// task host before they are returned.
func setup(command string, flags *inputFlags, validate func(*config.Config) error) (*app, error) {
	reporter := taskhost.Detect(os.Stdout)

	cfg, err := config.Load(flags.overrides())
	if err != nil {
		reporter.Failed(fmt.Sprintf("failed to load configuration: %v", err))
		return nil, errReported
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	slog.SetDefault(logger)

	if validate != nil {
		if err := validate(cfg); err != nil {
			logger.Error("invalid configuration", "error", err)
			reporter.Failed(fmt.Sprintf("invalid configuration: %v", err))
			return nil, errReported
		}
	}

	logger.Info("starting dtrack-upload",
		"command", command,
		"version", version,
		"server", cfg.Server.URL,
		"config_path", cfg.ConfigPath,
		"task_host", reporter.Name(),
		"log_level", cfg.Observability.LogLevel)

	return &app{command: command, cfg: cfg, logger: logger, reporter: reporter}, nil
}

// fail reports an error that happened before a workflow could start
func (a *app) fail(err error) error {
	a.logger.Error("command failed", "command", a.command, "error", err)
	a.reporter.Failed(err.Error())
	return errReported
}

func (a *app) client() (*dtrack.Client, error) {
	var caCert []byte
	if path := a.cfg.Server.CAFilePath; path != "" {
		a.logger.Info("reading CA certificate", "path", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", path, err)
		}
		caCert = data
	}

	return dtrack.NewClient(dtrack.Config{
		BaseURL: a.cfg.Server.URL,
		APIKey:  a.cfg.Server.APIKey,
		CACert:  caCert,
		Timeout: a.cfg.Server.Timeout,
		Logger:  a.logger,
	})
}

func (a *app) evaluator() (*threshold.Evaluator, error) {
	evaluator := &threshold.Evaluator{
		Thresholds: a.cfg.Threshold.Values,
		ReportAll:  a.cfg.Threshold.ReportAll,
		Logger:     a.logger,
	}

	if a.cfg.Threshold.Policy.Expression != "" {
		policy, err := threshold.NewPolicyEngine(a.logger, a.cfg.Threshold.Policy)
		if err != nil {
			return nil, err
		}
		evaluator.Policy = policy
	}

	if a.cfg.Threshold.Action.Gates() && !evaluator.Enabled() {
		a.logger.Warn("threshold action set but no threshold or policy configured",
			"threshold_action", a.cfg.Threshold.Action)
	}
	return evaluator, nil
}

func (a *app) request(bom []byte) workflow.Request {
	p := a.cfg.Project
	return workflow.Request{
		ProjectID:      p.ID,
		ProjectName:    p.Name,
		ProjectVersion: p.Version,
		AutoCreate:     p.AutoCreate,
		ParentID:       p.ParentID,
		ParentName:     p.ParentName,
		ParentVersion:  p.ParentVersion,
		Metadata:       a.cfg.Desired(),
		Bom:            bom,
	}
}

// orchestrator builds the gateway, the evaluator and the orchestrator for one run
func (a *app) orchestrator(bom []byte) (*workflow.Orchestrator, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	evaluator, err := a.evaluator()
	if err != nil {
		return nil, err
	}

	return workflow.New(client, a.request(bom), workflow.Options{
		PollInterval:    a.cfg.Polling.Interval,
		MaxPollAttempts: a.cfg.Polling.MaxAttempts,
		Action:          a.cfg.Threshold.Action,
		Evaluator:       evaluator,
		Logger:          a.logger,
	}), nil
}

// runContext applies RUN_TIMEOUT
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// complete records, exports and reports a finished run and maps it to the
// command's error.
func (a *app) complete(ctx context.Context, result *workflow.Result, runErr error) error {
	if result == nil {
		result = &workflow.Result{Outcome: workflow.OutcomeFailed}
	}

	if store := a.openHistory(); store != nil {
		defer store.Close()
		if collector := a.recordHistory(ctx, store, result, runErr); collector != nil {
			defer prometheus.Unregister(collector)
		}
	}
	a.setOutputs(result)

	if err := observability.Export(ctx, observability.ExportConfig{
		TextfilePath:   a.cfg.Observability.MetricsTextfile,
		PushgatewayURL: a.cfg.Observability.PushgatewayURL,
		Job:            a.cfg.Observability.PushJob,
		Grouping: map[string]string{
			"project": a.cfg.Project.Name,
			"version": a.cfg.Project.Version,
		},
	}, prometheus.DefaultGatherer, a.logger); err != nil {
		a.logger.Warn("metrics export failed", "error", err)
	}

	switch result.Outcome {
	case workflow.OutcomeFailed:
		msg := "run failed"
		if runErr != nil {
			msg = runErr.Error()
		}
		a.reporter.Failed(msg)
		return errReported
	case workflow.OutcomeSucceededWithIssues:
		msg := "thresholds exceeded"
		if result.Violation != nil {
			msg = result.Violation.Error()
		}
		a.reporter.SucceededWithIssues(msg)
	default:
		a.reporter.Succeeded(fmt.Sprintf("%s finished for project %s", a.command, result.ProjectID))
	}
	return nil
}

func (a *app) setOutputs(result *workflow.Result) {
	outputs := []struct{ name, value string }{
		{"dtrackProjectId", result.ProjectID},
		{"dtrackToken", result.Token},
		{"dtrackOutcome", string(result.Outcome)},
	}
	for _, out := range outputs {
		if out.value == "" {
			continue
		}
		if err := a.reporter.SetOutput(out.name, out.value); err != nil {
			a.logger.Warn("failed to set task output", "name", out.name, "error", err)
		}
	}
}

// openHistory opens the run history when RUN_HISTORY_PATH is set
func (a *app) openHistory() *statestore.SQLiteStore {
	if a.cfg.History.Path == "" {
		return nil
	}
	store, err := statestore.NewSQLiteStore(a.cfg.History.Path)
	if err != nil {
		a.logger.Warn("failed to open run history", "path", a.cfg.History.Path, "error", err)
		return nil
	}
	return store
}

// recordHistory stores the run and returns the registered history collector,
// if any. History failures never change the run outcome.
func (a *app) recordHistory(ctx context.Context, store statestore.RunStore, result *workflow.Result, runErr error) prometheus.Collector {
	record := &statestore.RunRecord{
		Command:        a.command,
		ProjectID:      result.ProjectID,
		ProjectName:    a.cfg.Project.Name,
		ProjectVersion: a.cfg.Project.Version,
		Token:          result.Token,
		Outcome:        string(result.Outcome),
		Metrics:        result.Metrics,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
	}
	if runErr != nil {
		record.ErrorMessage = runErr.Error()
	}
	if result.Violation != nil {
		record.Violation = result.Violation.Error()
	}

	// the record should land even when the run was interrupted
	ctx = context.WithoutCancel(ctx)

	if err := store.RecordRun(ctx, record); err != nil {
		a.logger.Warn("failed to record run", "error", err)
		return nil
	}
	if err := store.CleanupExcessRuns(ctx, a.cfg.History.Keep); err != nil {
		a.logger.Warn("failed to clean up run history", "error", err)
	}
	a.logger.Debug("run recorded", "run_id", record.ID, "path", a.cfg.History.Path)

	if result.ProjectID == "" {
		return nil
	}
	collector := observability.NewHistoryCollector(store, result.ProjectID, a.logger)
	if err := prometheus.Register(collector); err != nil {
		a.logger.Debug("history collector not registered", "error", err)
		return nil
	}
	return collector
}
