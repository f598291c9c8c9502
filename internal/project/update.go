package project

import (
	"context"
	"log/slog"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
	"github.com/daimoniac/dtrack-upload/internal/observability"
)

// Store is the slice of the Dependency-Track API the updater needs
type Store interface {
	GetProject(ctx context.Context, projectID string) (*dtrack.Project, error)
	UpdateProject(ctx context.Context, projectID string, patch dtrack.ProjectPatch) (*dtrack.Project, error)
}

// Updater applies desired metadata to a project, sending only what changed
type Updater struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewUpdater creates an Updater
func NewUpdater(store Store, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		store:   store,
		logger:  logger,
		metrics: observability.GetMetrics(),
	}
}

// Update brings the project in line with desired. It returns the resulting
// project (nil when nothing was requested) and whether a PATCH was sent.
// Without any desired metadata it makes no call at all.
func (u *Updater) Update(ctx context.Context, projectID string, desired Desired) (*dtrack.Project, bool, error) {
	if desired.IsEmpty() {
		u.logger.Debug("no project metadata requested, skipping update", "project_id", projectID)
		return nil, false, nil
	}

	current, err := u.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrProjectUpdate, "update project", projectID, err)
	}

	patch, changes := Diff(current, desired)
	if len(changes) == 0 {
		u.logger.Info("project metadata already up to date",
			"project_id", projectID,
			"name", current.Name,
			"version", current.Version)
		u.metrics.ProjectUpdates.WithLabelValues("unchanged").Inc()
		return current, false, nil
	}

	for _, change := range changes {
		u.logger.Info("updating project field",
			"project_id", projectID,
			"field", change.Field,
			"from", change.From,
			"to", change.To)
	}

	updated, err := u.store.UpdateProject(ctx, projectID, patch)
	if err != nil {
		return nil, false, err
	}
	u.metrics.ProjectUpdates.WithLabelValues("updated").Inc()

	u.logger.Info("project metadata updated",
		"project_id", projectID,
		"name", updated.Name,
		"version", updated.Version,
		"tags", updated.TagNames(),
		"is_latest", updated.IsLatest)

	return updated, true, nil
}
