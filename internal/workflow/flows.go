package workflow

import (
	"context"
	"time"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
)

// RunUpdate only applies the requested metadata to an existing project,
// addressed by id or by name and version.
func (o *Orchestrator) RunUpdate(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}
	o.logger.Info("starting project update", "project", o.request.projectLabel())

	err := o.executeUpdate(ctx, result)
	return o.finish("update-project", result, err)
}

func (o *Orchestrator) executeUpdate(ctx context.Context, result *Result) error {
	if err := o.resolveExisting(ctx); err != nil {
		return err
	}
	result.ProjectID = o.projectID

	updated, err := o.updateMetadata(ctx)
	if err != nil {
		return err
	}
	result.Updated = updated
	return nil
}

// RunMetrics reads the current metrics of an existing project and evaluates
// them against the thresholds without uploading or waiting.
func (o *Orchestrator) RunMetrics(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}
	o.logger.Info("starting metrics check", "project", o.request.projectLabel())

	err := o.executeMetrics(ctx, result)
	return o.finish("metrics", result, err)
}

func (o *Orchestrator) executeMetrics(ctx context.Context, result *Result) error {
	if err := o.resolveExisting(ctx); err != nil {
		return err
	}
	result.ProjectID = o.projectID

	if err := o.fetchMetrics(ctx); err != nil {
		return err
	}
	result.Metrics = o.snapshot

	if !o.gated() {
		return nil
	}
	if err := o.evaluate(); err != nil {
		if !errors.Is(err, errors.ErrThresholdViolation) {
			return err
		}
		result.Violation = err
	}
	return nil
}

// RunCreate creates the project explicitly, below its parent when one is
// given, with the requested metadata set at creation time.
func (o *Orchestrator) RunCreate(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}
	o.logger.Info("starting project creation", "project", o.request.projectLabel())

	err := o.executeCreate(ctx, result)
	return o.finish("create-project", result, err)
}

func (o *Orchestrator) executeCreate(ctx context.Context, result *Result) error {
	req := &o.request

	parent, err := o.resolveParent(ctx)
	if err != nil {
		return err
	}

	o.checkServerVersion(ctx)

	newProject := dtrack.NewProject{
		Name:     req.ProjectName,
		Version:  req.ProjectVersion,
		Tags:     tagsOf(req.Metadata.Tags),
		IsLatest: req.isLatest(),
		Active:   true,
	}
	if req.Metadata.Description != nil {
		newProject.Description = *req.Metadata.Description
	}
	if req.Metadata.Classifier != nil {
		newProject.Classifier = *req.Metadata.Classifier
	}
	if req.Metadata.SwidTagID != nil {
		newProject.SwidTagID = *req.Metadata.SwidTagID
	}
	if req.Metadata.Group != nil {
		newProject.Group = *req.Metadata.Group
	}
	if !parent.IsZero() {
		newProject.Parent = &dtrack.ProjectRef{UUID: parent.UUID}
	}

	id, err := o.gateway.CreateProject(ctx, newProject)
	if err != nil {
		return err
	}
	o.projectID = id
	result.ProjectID = id
	o.logger.Info("project created",
		"project_id", id,
		"name", newProject.Name,
		"version", newProject.Version,
		"parent_id", parent.UUID)

	return nil
}

// resolveExisting resolves a project that must already exist
func (o *Orchestrator) resolveExisting(ctx context.Context) error {
	if o.request.ProjectID != "" {
		o.projectID = o.request.ProjectID
		return nil
	}
	id, err := o.lookupProject(ctx, o.request.ProjectName, o.request.ProjectVersion, "resolve project")
	if err != nil {
		return err
	}
	o.projectID = id
	return nil
}

func tagsOf(names []string) []dtrack.Tag {
	if len(names) == 0 {
		return nil
	}
	tags := make([]dtrack.Tag, 0, len(names))
	for _, name := range names {
		if name != "" {
			tags = append(tags, dtrack.Tag{Name: name})
		}
	}
	return tags
}
