package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/observability"
	"github.com/daimoniac/dtrack-upload/internal/project"
	"github.com/daimoniac/dtrack-upload/internal/threshold"
)

// DefaultPollInterval is the delay before every processing or metrics poll
const DefaultPollInterval = 2 * time.Second

// minIsLatestVersion is the first server release that understands isLatest
var minIsLatestVersion = semver.MustParse("4.12.0")

// Options tune a run
type Options struct {
	PollInterval time.Duration
	// MaxPollAttempts caps each polling loop; 0 polls until the server answers
	MaxPollAttempts int
	Action          threshold.Action
	// Evaluator may be nil when no threshold is configured
	Evaluator *threshold.Evaluator
	Logger    *slog.Logger
}

// Orchestrator drives a single ingestion run. Build a new one per run; it
// keeps the run's project id, token and snapshot as fields.
type Orchestrator struct {
	gateway Gateway
	request Request
	opts    Options
	updater *project.Updater
	logger  *slog.Logger
	metrics *observability.Metrics

	// run state
	target    dtrack.Target
	projectID string
	token     string
	snapshot  *dtrack.Metrics
}

// New creates an orchestrator for one request
func New(gateway Gateway, request Request, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Action == "" {
		opts.Action = threshold.ActionNone
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		gateway: gateway,
		request: request,
		opts:    opts,
		updater: project.NewUpdater(gateway, logger),
		logger:  logger,
		metrics: observability.GetMetrics(),
	}
}

// gated reports whether the processing/metrics chain has to run
func (o *Orchestrator) gated() bool {
	return o.opts.Action.Gates() && o.opts.Evaluator != nil && o.opts.Evaluator.Enabled()
}

// Run executes the full upload workflow: resolve, submit, update metadata,
// then, when thresholds gate the run, wait for processing and fresh metrics
// and evaluate them.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	o.logger.Info("starting upload workflow",
		"project", o.request.projectLabel(),
		"auto_create", o.request.AutoCreate,
		"bom_size_bytes", len(o.request.Bom),
		"threshold_action", o.opts.Action)

	err := o.execute(ctx, result)
	return o.finish("upload", result, err)
}

func (o *Orchestrator) execute(ctx context.Context, result *Result) error {
	// Phase 1: Resolve target project (and parent)
	if err := o.resolveTarget(ctx); err != nil {
		return err
	}

	o.checkServerVersion(ctx)

	// Phase 2: Submit BOM
	if err := o.submitBom(ctx); err != nil {
		return err
	}
	result.ProjectID = o.projectID
	result.Token = o.token

	// Phase 3: Metadata update
	updated, err := o.updateMetadata(ctx)
	if err != nil {
		return err
	}
	result.Updated = updated

	if !o.gated() {
		o.logger.Info("no threshold gate configured, skipping processing wait",
			"project_id", o.projectID,
			"token", o.token)
		return nil
	}

	// Phase 4: Wait for BOM processing
	if err := o.waitProcessing(ctx); err != nil {
		return err
	}

	// Phase 5: Wait for metrics to catch up with the import
	if err := o.waitMetricsRefresh(ctx); err != nil {
		return err
	}

	// Phase 6: Fetch metrics
	if err := o.fetchMetrics(ctx); err != nil {
		return err
	}
	result.Metrics = o.snapshot

	// Phase 7: Evaluate thresholds
	if err := o.evaluate(); err != nil {
		if !errors.Is(err, errors.ErrThresholdViolation) {
			return err
		}
		result.Violation = err
	}
	return nil
}

// finish derives the outcome from the run error and the threshold action
func (o *Orchestrator) finish(workflow string, result *Result, err error) (*Result, error) {
	result.FinishedAt = time.Now()
	if result.Metrics == nil {
		result.Metrics = o.snapshot
	}

	switch {
	case err != nil:
		result.Outcome = OutcomeFailed
	case result.Violation != nil && o.opts.Action == threshold.ActionError:
		result.Outcome = OutcomeFailed
		err = result.Violation
	case result.Violation != nil:
		result.Outcome = OutcomeSucceededWithIssues
	default:
		result.Outcome = OutcomeSucceeded
	}
	o.metrics.RunOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	if err != nil {
		o.logger.Error("workflow failed",
			"workflow", workflow,
			"project", o.request.projectLabel(),
			"project_id", result.ProjectID,
			"outcome", result.Outcome,
			"duration", result.Duration(),
			"error", err)
		return result, err
	}

	o.logger.Info("workflow completed",
		"workflow", workflow,
		"project_id", result.ProjectID,
		"token", result.Token,
		"outcome", result.Outcome,
		"duration", result.Duration())
	return result, nil
}

// resolveTarget decides how the BOM is addressed. Auto-create only resolves
// the parent; otherwise the project itself must resolve.
func (o *Orchestrator) resolveTarget(ctx context.Context) error {
	req := &o.request

	if req.AutoCreate {
		parent, err := o.resolveParent(ctx)
		if err != nil {
			return err
		}
		if parent.IsZero() {
			o.target = dtrack.NewProjectTarget(req.ProjectName, req.ProjectVersion, req.isLatest())
		} else {
			o.target = dtrack.NewChildProjectTarget(req.ProjectName, req.ProjectVersion, parent, req.isLatest())
		}
		o.logger.Debug("target resolved", "mode", o.target.Kind.String(), "target", o.target.String())
		return nil
	}

	projectID := req.ProjectID
	if projectID == "" {
		id, err := o.lookupProject(ctx, req.ProjectName, req.ProjectVersion, "resolve project")
		if err != nil {
			return err
		}
		projectID = id
	}

	o.projectID = projectID
	o.target = dtrack.ExistingProject(projectID)
	o.logger.Debug("target resolved", "mode", o.target.Kind.String(), "project_id", projectID)
	return nil
}

// resolveParent returns the parent reference for a child project. A parent
// given by name is resolved to its UUID before anything is submitted.
func (o *Orchestrator) resolveParent(ctx context.Context) (dtrack.Parent, error) {
	req := &o.request
	switch {
	case req.ParentID != "":
		return dtrack.Parent{UUID: req.ParentID}, nil
	case req.ParentName != "":
		id, err := o.lookupProject(ctx, req.ParentName, req.ParentVersion, "resolve parent")
		if errors.Is(err, errors.ErrAmbiguousProject) {
			return dtrack.Parent{}, errors.Wrap(errors.ErrProjectNotFound, "resolve parent", dtrack.Parent{Name: req.ParentName, Version: req.ParentVersion}.String(), err)
		}
		if err != nil {
			return dtrack.Parent{}, err
		}
		o.logger.Info("parent project resolved",
			"parent_name", req.ParentName,
			"parent_version", req.ParentVersion,
			"parent_id", id)
		return dtrack.Parent{UUID: id, Name: req.ParentName, Version: req.ParentVersion}, nil
	default:
		return dtrack.Parent{}, nil
	}
}

// lookupProject resolves a UUID and turns "no match" into ErrProjectNotFound
func (o *Orchestrator) lookupProject(ctx context.Context, name, version, op string) (string, error) {
	label := name
	if version != "" {
		label = name + "@" + version
	}

	id, err := o.gateway.LookupProjectID(ctx, name, version)
	if err != nil {
		if errors.Is(err, errors.ErrProjectNotFound) || errors.Is(err, errors.ErrAmbiguousProject) {
			return "", err
		}
		return "", errors.Wrap(errors.ErrProjectNotFound, op, label, err)
	}
	if id == "" {
		return "", &errors.OperationError{Kind: errors.ErrProjectNotFound, Op: op, Target: label}
	}
	return id, nil
}

// checkServerVersion warns when isLatest is requested from a server that
// predates it. Failing to read the version is not fatal.
func (o *Orchestrator) checkServerVersion(ctx context.Context) {
	if o.request.Metadata.IsLatest == nil {
		return
	}
	version, err := o.gateway.ServerVersion(ctx)
	if err != nil {
		o.logger.Debug("could not determine server version", "error", err)
		return
	}
	if version.LessThan(minIsLatestVersion) {
		o.logger.Warn("server does not support isLatest, flag will be ignored",
			"server_version", version.String(),
			"required_version", minIsLatestVersion.String())
	}
}

// submitBom uploads the BOM. After an auto-create the new project is
// resolved by name and version, since the upload only returns a token.
func (o *Orchestrator) submitBom(ctx context.Context) error {
	o.logger.Info("uploading BOM",
		"mode", o.target.Kind.String(),
		"target", o.target.String(),
		"size_bytes", len(o.request.Bom))

	token, err := o.gateway.SubmitBom(ctx, o.target, o.request.Bom)
	if err != nil {
		return err
	}
	o.token = token
	o.metrics.BomUploads.WithLabelValues(o.target.Kind.String()).Inc()
	o.metrics.BomSizeBytes.Set(float64(len(o.request.Bom)))

	o.logger.Info("BOM uploaded", "token", token, "target", o.target.String())

	if o.target.Kind == dtrack.TargetExisting {
		return nil
	}

	id, err := o.lookupProject(ctx, o.request.ProjectName, o.request.ProjectVersion, "resolve created project")
	if err != nil {
		return err
	}
	o.projectID = id
	o.logger.Info("project resolved after upload", "project_id", id)
	return nil
}

// updateMetadata applies the requested metadata, sending only changed fields
func (o *Orchestrator) updateMetadata(ctx context.Context) (bool, error) {
	_, updated, err := o.updater.Update(ctx, o.projectID, o.request.Metadata)
	return updated, err
}

// waitProcessing polls the token until the server finishes ingesting the
// BOM. Any poll error ends the run.
func (o *Orchestrator) waitProcessing(ctx context.Context) error {
	start := time.Now()
	o.logger.Info("waiting for BOM processing", "token", o.token, "interval", o.opts.PollInterval)

	for attempt := 1; ; attempt++ {
		if err := sleep(ctx, o.opts.PollInterval); err != nil {
			return errors.Wrap(errors.ErrPoll, "wait for processing", o.token, err)
		}

		o.metrics.ProcessingPolls.Inc()
		processing, err := o.gateway.PollProcessing(ctx, o.token)
		if err != nil {
			return err
		}
		o.logger.Debug("polled processing status", "token", o.token, "attempt", attempt, "processing", processing)

		if !processing {
			break
		}
		if o.opts.MaxPollAttempts > 0 && attempt >= o.opts.MaxPollAttempts {
			return errors.Wrap(errors.ErrPoll, "wait for processing", o.token,
				fmt.Errorf("still processing after %d polls", attempt))
		}
	}

	waited := time.Since(start)
	o.metrics.ProcessingWaitSeconds.Set(waited.Seconds())
	o.logger.Info("BOM processing finished", "token", o.token, "duration", waited)
	return nil
}

// waitMetricsRefresh reads lastBomImport once, then polls metrics until
// lastOccurrence has caught up with it.
func (o *Orchestrator) waitMetricsRefresh(ctx context.Context) error {
	start := time.Now()

	info, err := o.gateway.GetProject(ctx, o.projectID)
	if err != nil {
		return errors.Wrap(errors.ErrMetricsFetch, "wait for metrics refresh", o.projectID, err)
	}
	lastBomImport := info.LastBomImport

	o.logger.Info("waiting for metrics refresh",
		"project_id", o.projectID,
		"last_bom_import", lastBomImport.Time())

	var lastOccurrence dtrack.Timestamp
	for attempt := 1; ; attempt++ {
		if err := sleep(ctx, o.opts.PollInterval); err != nil {
			return errors.Wrap(errors.ErrMetricsFetch, "wait for metrics refresh", o.projectID, err)
		}

		o.metrics.MetricsPolls.Inc()
		snapshot, err := o.gateway.GetCurrentMetrics(ctx, o.projectID)
		if err != nil {
			return err
		}
		lastOccurrence = snapshot.LastOccurrence
		o.logger.Debug("polled metrics",
			"project_id", o.projectID,
			"attempt", attempt,
			"last_occurrence", lastOccurrence.Time())

		if lastOccurrence >= lastBomImport {
			break
		}
		if o.opts.MaxPollAttempts > 0 && attempt >= o.opts.MaxPollAttempts {
			return errors.Wrap(errors.ErrMetricsFetch, "wait for metrics refresh", o.projectID,
				fmt.Errorf("metrics still older than last BOM import after %d polls", attempt))
		}
	}

	waited := time.Since(start)
	o.metrics.MetricsRefreshWaitSeconds.Set(waited.Seconds())
	o.logger.Info("metrics refreshed",
		"project_id", o.projectID,
		"last_bom_import", lastBomImport.Time(),
		"last_occurrence", lastOccurrence.Time(),
		"duration", waited)
	return nil
}

// fetchMetrics reads the snapshot the thresholds are evaluated against
func (o *Orchestrator) fetchMetrics(ctx context.Context) error {
	snapshot, err := o.gateway.GetCurrentMetrics(ctx, o.projectID)
	if err != nil {
		return err
	}
	o.snapshot = snapshot
	o.recordSnapshot(snapshot)

	o.logger.Info("project metrics",
		"project_id", o.projectID,
		"critical", snapshot.Critical,
		"high", snapshot.High,
		"medium", snapshot.Medium,
		"low", snapshot.Low,
		"unassigned", snapshot.Unassigned,
		"suppressed", snapshot.Suppressed,
		"policy_violations_fail", snapshot.PolicyViolationsFail,
		"policy_violations_warn", snapshot.PolicyViolationsWarn,
		"policy_violations_info", snapshot.PolicyViolationsInfo,
		"policy_violations_total", snapshot.PolicyViolationsTotal)
	return nil
}

// evaluate checks the snapshot against the configured thresholds
func (o *Orchestrator) evaluate() error {
	o.logger.Debug("evaluating thresholds", "project_id", o.projectID, "report_all", o.opts.Evaluator.ReportAll)
	return o.opts.Evaluator.Evaluate(o.snapshot)
}

func (o *Orchestrator) recordSnapshot(m *dtrack.Metrics) {
	o.metrics.ProjectVulnerabilities.WithLabelValues("critical").Set(float64(m.Critical))
	o.metrics.ProjectVulnerabilities.WithLabelValues("high").Set(float64(m.High))
	o.metrics.ProjectVulnerabilities.WithLabelValues("medium").Set(float64(m.Medium))
	o.metrics.ProjectVulnerabilities.WithLabelValues("low").Set(float64(m.Low))
	o.metrics.ProjectVulnerabilities.WithLabelValues("unassigned").Set(float64(m.Unassigned))
	o.metrics.ProjectVulnerabilities.WithLabelValues("suppressed").Set(float64(m.Suppressed))
	o.metrics.ProjectPolicyViolations.WithLabelValues("fail").Set(float64(m.PolicyViolationsFail))
	o.metrics.ProjectPolicyViolations.WithLabelValues("warn").Set(float64(m.PolicyViolationsWarn))
	o.metrics.ProjectPolicyViolations.WithLabelValues("info").Set(float64(m.PolicyViolationsInfo))
	o.metrics.ProjectPolicyViolations.WithLabelValues("total").Set(float64(m.PolicyViolationsTotal))
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
