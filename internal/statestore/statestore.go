package statestore

import (
	"context"
	"time"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
	"github.com/daimoniac/dtrack-upload/internal/errors"
)

// ErrRunNotFound is returned by GetLastRun when no run was recorded for the project.
// Callers should use errors.Is() to check for this specific error.
var ErrRunNotFound = errors.New("run not found")

// RunStore defines the interface for persisting and querying task runs
type RunStore interface {
	// RecordRun saves one run and sets record.ID
	RecordRun(ctx context.Context, record *RunRecord) error

	// GetLastRun retrieves the most recent run for a project UUID
	GetLastRun(ctx context.Context, projectID string) (*RunRecord, error)

	// ListRuns returns runs newest first
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// CountRunsByOutcome counts the runs of a project UUID per outcome
	CountRunsByOutcome(ctx context.Context, projectID string) (map[string]int, error)

	// LastRunAt returns the start of the newest run with the given outcome
	LastRunAt(ctx context.Context, projectID, outcome string) (time.Time, error)

	// CleanupExcessRuns keeps only the most recent runs of every project
	CleanupExcessRuns(ctx context.Context, maxRunsToKeep int) error

	Close() error
}

// RunRecord is one invocation of a command against a project
type RunRecord struct {
	ID             int64  `json:"id"`
	Command        string `json:"command"`
	ProjectID      string `json:"projectId,omitempty"`
	ProjectName    string `json:"projectName,omitempty"`
	ProjectVersion string `json:"projectVersion,omitempty"`
	Token          string `json:"token,omitempty"`
	Outcome        string `json:"outcome"`
	ErrorMessage   string `json:"error,omitempty"`
	// Violation is the threshold report, set whatever the action was
	Violation  string          `json:"violation,omitempty"`
	Metrics    *dtrack.Metrics `json:"metrics,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// Duration returns the wall time of the run
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunFilter defines criteria for listing runs
type RunFilter struct {
	ProjectID string
	Outcome   string
	Limit     int
	Offset    int
}
