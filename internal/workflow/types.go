package workflow

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/project"
)

// Gateway is the Dependency-Track API surface a run uses. *dtrack.Client
// implements it.
type Gateway interface {
	LookupProjectID(ctx context.Context, name, version string) (string, error)
	GetProject(ctx context.Context, projectID string) (*dtrack.Project, error)
	SubmitBom(ctx context.Context, target dtrack.Target, bom []byte) (string, error)
	PollProcessing(ctx context.Context, token string) (bool, error)
	GetCurrentMetrics(ctx context.Context, projectID string) (*dtrack.Metrics, error)
	UpdateProject(ctx context.Context, projectID string, patch dtrack.ProjectPatch) (*dtrack.Project, error)
	CreateProject(ctx context.Context, newProject dtrack.NewProject) (string, error)
	ServerVersion(ctx context.Context) (*semver.Version, error)
}

var _ Gateway = (*dtrack.Client)(nil)

// Request describes one ingestion run
type Request struct {
	// ProjectID targets an existing project directly
	ProjectID string

	ProjectName    string
	ProjectVersion string
	AutoCreate     bool

	// Parent of an auto-created project, by UUID or by name and version
	ParentID      string
	ParentName    string
	ParentVersion string

	// Metadata is applied after submission. Metadata.IsLatest also feeds the
	// isLatest field of auto-create submissions.
	Metadata project.Desired

	Bom []byte
}

// isLatest returns the requested flag, false when not given
func (r *Request) isLatest() bool {
	return r.Metadata.IsLatest != nil && *r.Metadata.IsLatest
}

func (r *Request) projectLabel() string {
	if r.ProjectID != "" {
		return r.ProjectID
	}
	if r.ProjectVersion == "" {
		return r.ProjectName
	}
	return r.ProjectName + "@" + r.ProjectVersion
}

// Outcome is the final state of a run
type Outcome string

const (
	OutcomeSucceeded           Outcome = "succeeded"
	OutcomeSucceededWithIssues Outcome = "succeeded_with_issues"
	OutcomeFailed              Outcome = "failed"
)

// Result summarizes a run. It is returned even when the run fails, carrying
// whatever was known at that point.
type Result struct {
	ProjectID string
	Token     string
	Metrics   *dtrack.Metrics
	// Violation is set when thresholds were exceeded, whatever the action
	Violation  error
	Updated    bool
	Outcome    Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of the run
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
